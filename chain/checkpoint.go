// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zcoldwallet/zcoldwallet/netparams"
)

// CheckpointResolver finds a trusted starting point for scanning, either
// from the compiled-in checkpoint table or from the indexer.
type CheckpointResolver struct {
	indexer Indexer
	params  *netparams.Params
}

// NewCheckpointResolver returns a resolver querying indexer for a chain with
// the passed parameters.
func NewCheckpointResolver(indexer Indexer,
	params *netparams.Params) *CheckpointResolver {

	return &CheckpointResolver{indexer: indexer, params: params}
}

// Resolve returns the checkpoint for an explicit height if one is set,
// otherwise for a block mined around midnight UTC of the passed date, and
// otherwise for the current chain tip.
func (r *CheckpointResolver) Resolve(ctx context.Context,
	height fn.Option[uint32], date fn.Option[time.Time]) (
	*netparams.Checkpoint, error) {

	switch {
	case height.IsSome():
		return r.AtHeight(ctx, height.UnwrapOr(0))

	case date.IsSome():
		h, err := r.FindHeight(ctx, date.UnwrapOr(time.Time{}))
		if err != nil {
			return nil, err
		}
		return r.AtHeight(ctx, h)

	default:
		tip, err := r.indexer.LatestBlock(ctx)
		if err != nil {
			return nil, err
		}
		return r.AtHeight(ctx, uint32(tip.Height))
	}
}

// AtHeight returns the checkpoint at height. The compiled-in table is
// consulted first and the indexer's tree state is used otherwise.
func (r *CheckpointResolver) AtHeight(ctx context.Context,
	height uint32) (*netparams.Checkpoint, error) {

	if cp, ok := r.params.LookupCheckpoint(height); ok {
		log.Debugf("Using compiled-in checkpoint at height %d", height)
		return &cp, nil
	}

	state, err := r.indexer.TreeState(ctx, uint64(height))
	if err != nil {
		return nil, fmt.Errorf("unable to fetch tree state at height "+
			"%d: %w", height, err)
	}

	// The indexer reports the hash in display order, NewHashFromStr
	// reverses it into internal order.
	hash, err := chainhash.NewHashFromStr(state.Hash)
	if err != nil {
		return nil, fmt.Errorf("invalid block hash %q in tree state: %w",
			state.Hash, err)
	}

	return &netparams.Checkpoint{
		Height:      uint32(state.Height),
		Hash:        hash[:],
		Time:        state.Time,
		SaplingTree: state.SaplingTree,
	}, nil
}

// FindHeight binary searches the chain between the shielded pool activation
// height and the tip for a block whose timestamp matches midnight UTC of the
// passed date. Block timestamps are not strictly monotonic, so the result is
// only a height close to the date that is safe to rescan from.
func (r *CheckpointResolver) FindHeight(ctx context.Context,
	date time.Time) (uint32, error) {

	tip, err := r.indexer.LatestBlock(ctx)
	if err != nil {
		return 0, err
	}

	y, m, d := date.Date()
	target := uint32(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix())

	low := uint64(r.params.SaplingActivationHeight)
	high := tip.Height
	for low < high {
		mid := (low + high) / 2
		block, err := r.indexer.Block(ctx, mid)
		if err != nil {
			return 0, fmt.Errorf("unable to fetch block %d: %w", mid,
				err)
		}

		switch {
		case target < block.Time:
			if mid == 0 {
				return 0, nil
			}
			high = mid - 1
		case target > block.Time:
			low = mid + 1
		default:
			log.Debugf("Block %d matches date %s", block.Height,
				date.Format(time.DateOnly))
			return uint32(block.Height), nil
		}
	}

	if high < uint64(r.params.SaplingActivationHeight) {
		high = uint64(r.params.SaplingActivationHeight)
	}

	log.Debugf("Date search for %s ended at height %d",
		date.Format(time.DateOnly), high)

	return uint32(high), nil
}
