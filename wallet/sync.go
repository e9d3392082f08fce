// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zcoldwallet/zcoldwallet/chain"
	"github.com/zcoldwallet/zcoldwallet/shielded"
	"github.com/zcoldwallet/zcoldwallet/walletdb"
	"golang.org/x/sync/errgroup"
)

// cacheBatchSize is the number of blocks written to the cache per
// transaction while syncing.
const cacheBatchSize = 100

var (
	// ErrPrevHashMismatch is returned when a cached block does not extend
	// the last scanned block. The note index cannot be rewound, so the
	// account has to be initialized again.
	ErrPrevHashMismatch = errors.New("cached block does not extend the " +
		"scanned chain")

	// ErrBlockGap is returned when the cache is missing a block above the
	// scanned height.
	ErrBlockGap = errors.New("gap in cached blocks")
)

// SyncStart returns the height the next sync starts at: one past the
// highest cached block, or one past the highest scanned block for an empty
// cache.
func (w *Wallet) SyncStart(ctx context.Context) (uint32, error) {
	cached, err := w.store.MaxCachedHeight(ctx)
	if err != nil {
		return 0, err
	}
	if cached.IsSome() {
		return cached.UnwrapOr(0) + 1, nil
	}

	_, last, err := w.scanRange(ctx)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// Sync fetches the blocks from the start height up to the reorg margin
// below the chain tip into the block cache and scans them. It returns the
// number of blocks fetched.
func (w *Wallet) Sync(ctx context.Context,
	startOverride fn.Option[uint32]) (uint32, error) {

	if w.indexer == nil {
		return 0, ErrNoIndexer
	}

	start := startOverride.UnwrapOr(0)
	if startOverride.IsNone() {
		var err error
		if start, err = w.SyncStart(ctx); err != nil {
			return 0, err
		}
	}

	tip, err := w.indexer.LatestBlock(ctx)
	if err != nil {
		return 0, err
	}

	var synced uint32
	if tip.Height >= uint64(w.cfg.ReorgMargin) {
		end := min(tip.Height-uint64(w.cfg.ReorgMargin),
			uint64(start)+uint64(w.cfg.MaxBlocks))
		if end >= uint64(start) {
			log.Infof("Syncing blocks %d-%d (tip %d)", start, end,
				tip.Height)
			synced, err = w.fetchBlocks(ctx, uint64(start), end)
			if err != nil {
				return synced, err
			}
		}
	}
	if synced == 0 {
		log.Infof("No new blocks below height %d", tip.Height-
			min(tip.Height, uint64(w.cfg.ReorgMargin)))
	}

	if _, err := w.Scan(ctx); err != nil {
		return synced, err
	}
	return synced, nil
}

// fetchBlocks streams the blocks in [start, end] into the cache.
func (w *Wallet) fetchBlocks(ctx context.Context, start,
	end uint64) (uint32, error) {

	g, gctx := errgroup.WithContext(ctx)
	blocks := make(chan walletdb.CachedBlock, cacheBatchSize)

	g.Go(func() error {
		defer close(blocks)
		return w.indexer.BlockRange(gctx, start, end,
			func(b *chain.CompactBlock) error {
				data, err := b.Marshal()
				if err != nil {
					return err
				}
				select {
				case blocks <- walletdb.CachedBlock{
					Height: uint32(b.Height),
					Data:   data,
				}:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
	})

	var synced uint32
	g.Go(func() error {
		batch := make([]walletdb.CachedBlock, 0, cacheBatchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			err := w.store.PutCompactBlocks(gctx, batch)
			if err != nil {
				return err
			}
			synced += uint32(len(batch))
			log.Debugf("Cached blocks up to %d",
				batch[len(batch)-1].Height)
			batch = batch[:0]
			return nil
		}
		for b := range blocks {
			batch = append(batch, b)
			if len(batch) == cacheBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	err := g.Wait()
	return synced, err
}

// scanAccount is the key material scanning needs for one account.
type scanAccount struct {
	id  uint32
	ivk btcec.ModNScalar
	nk  *btcec.PublicKey
}

// scanState is the tree and witness state carried from block to block.
type scanState struct {
	height uint32
	hash   []byte
	tree   *shielded.CommitmentTree

	// witnesses of unspent notes by position.
	witnesses map[uint64]*shielded.IncrementalWitness

	// nullifiers of unspent notes.
	nullifiers map[[32]byte]uint64
}

// loadScanState restores the state after the block at height.
func (w *Wallet) loadScanState(ctx context.Context,
	height uint32) (*scanState, error) {

	block, err := w.store.Block(ctx, height)
	if err != nil {
		return nil, err
	}
	tree, err := shielded.ReadCommitmentTree(
		bytes.NewReader(block.SaplingTree),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot read tree at height %d: %w",
			height, err)
	}

	s := &scanState{
		height:     height,
		hash:       block.Hash,
		tree:       tree,
		witnesses:  make(map[uint64]*shielded.IncrementalWitness),
		nullifiers: make(map[[32]byte]uint64),
	}

	witnesses, err := w.store.Witnesses(ctx, height)
	if err != nil {
		return nil, err
	}
	for _, wi := range witnesses {
		wit, err := shielded.ParseIncrementalWitness(wi.Witness)
		if err != nil {
			return nil, fmt.Errorf("cannot read witness of note "+
				"%d: %w", wi.Position, err)
		}
		s.witnesses[wi.Position] = wit
	}

	notes, err := w.store.UnspentNotes(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		s.nullifiers[n.Nullifier] = n.Position
	}

	return s, nil
}

// Scan trial-decrypts every cached block above the scanned height and
// records the received and spent notes. Scanning an already scanned height
// is a no-op. It returns the number of blocks scanned.
func (w *Wallet) Scan(ctx context.Context) (uint32, error) {
	_, last, err := w.scanRange(ctx)
	if err != nil {
		return 0, err
	}

	keys, err := w.viewingKeys(ctx)
	if err != nil {
		return 0, err
	}
	accounts := make([]scanAccount, 0, len(keys))
	for id, efvk := range keys {
		accounts = append(accounts, scanAccount{
			id:  id,
			ivk: efvk.Fvk.IVK(),
			nk:  efvk.Fvk.Nk,
		})
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].id < accounts[j].id
	})

	state, err := w.loadScanState(ctx, last)
	if err != nil {
		return 0, err
	}

	var scanned uint32
	err = w.store.ForEachCompactBlock(ctx, last,
		func(cb walletdb.CachedBlock) error {
			var block chain.CompactBlock
			if err := block.Unmarshal(cb.Data); err != nil {
				return fmt.Errorf("cannot decode cached block "+
					"%d: %w", cb.Height, err)
			}

			params, err := w.scanBlock(state, accounts, &block)
			if err != nil {
				return err
			}
			if err := w.store.ApplyBlock(ctx, *params); err != nil {
				return err
			}

			state.height = params.Block.Height
			state.hash = params.Block.Hash
			scanned++
			return nil
		})
	if err != nil {
		return scanned, err
	}

	if scanned > 0 {
		log.Infof("Scanned %d %s up to height %d", scanned,
			pickNoun(int(scanned), "block", "blocks"), state.height)
	}
	return scanned, nil
}

// scanBlock advances the state over one block and returns what has to be
// recorded for it.
func (w *Wallet) scanBlock(state *scanState, accounts []scanAccount,
	block *chain.CompactBlock) (*walletdb.ApplyBlockParams, error) {

	height := uint32(block.Height)
	if height != state.height+1 {
		return nil, fmt.Errorf("%w: expected block %d, found %d",
			ErrBlockGap, state.height+1, height)
	}
	if !bytes.Equal(block.PrevHash, state.hash) {
		return nil, fmt.Errorf("%w at height %d", ErrPrevHashMismatch,
			height)
	}

	params := &walletdb.ApplyBlockParams{}
	for _, tx := range block.Vtx {
		for _, spend := range tx.Spends {
			var nf [32]byte
			copy(nf[:], spend.Nf)
			pos, ok := state.nullifiers[nf]
			if !ok {
				continue
			}
			log.Debugf("Note %d spent at height %d", pos, height)
			params.Spent = append(params.Spent, nf)
			delete(state.nullifiers, nf)
			delete(state.witnesses, pos)
		}

		for i, out := range tx.Outputs {
			var cmu shielded.Node
			copy(cmu[:], out.Cmu)

			if err := state.tree.Append(cmu); err != nil {
				return nil, err
			}
			for _, wit := range state.witnesses {
				if err := wit.Append(cmu); err != nil {
					return nil, err
				}
			}

			epk, err := btcec.ParsePubKey(out.Epk)
			if err != nil {
				continue
			}
			for _, acct := range accounts {
				note, ok := shielded.TryCompactNoteDecryption(
					w.cfg.Params, height, &acct.ivk, epk,
					cmu, out.Ciphertext,
				)
				if !ok {
					continue
				}

				wit := shielded.NewIncrementalWitness(state.tree)
				pos := wit.Position()
				nf := note.Nullifier(acct.nk, pos)
				state.witnesses[pos] = wit
				state.nullifiers[nf] = pos

				params.NewNotes = append(params.NewNotes,
					walletdb.NoteInfo{
						Account:     acct.id,
						Position:    pos,
						Height:      height,
						TxIndex:     uint32(tx.Index),
						OutputIndex: uint32(i),
						Diversifier: note.Diversifier,
						Value:       btcutil.Amount(note.Value),
						Rseed:       note.Rseed,
						Nullifier:   nf,
					})

				log.Infof("Received note %d of %d at height %d",
					pos, note.Value, height)
				break
			}
		}
	}

	var tree bytes.Buffer
	if err := state.tree.Serialize(&tree); err != nil {
		return nil, err
	}
	params.Block = walletdb.BlockInfo{
		Height:      height,
		Hash:        block.Hash,
		Time:        block.Time,
		SaplingTree: tree.Bytes(),
	}

	for pos, wit := range state.witnesses {
		params.Witnesses = append(params.Witnesses, walletdb.WitnessInfo{
			Position: pos,
			Witness:  wit.Bytes(),
		})
	}
	sort.Slice(params.Witnesses, func(i, j int) bool {
		return params.Witnesses[i].Position < params.Witnesses[j].Position
	})

	return params, nil
}
