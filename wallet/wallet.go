// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet is the engine of a cold shielded wallet. The online side
// syncs compact blocks, tracks notes and prepares unsigned transactions.
// The offline side signs them, either with a single spending key or as a
// threshold group exchanging artifacts in rounds.
package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zcoldwallet/zcoldwallet/chain"
	"github.com/zcoldwallet/zcoldwallet/netparams"
	"github.com/zcoldwallet/zcoldwallet/shielded"
	"github.com/zcoldwallet/zcoldwallet/walletdb"
)

// ErrNoIndexer is returned by operations that need the chain indexer when
// the wallet was opened without one.
var ErrNoIndexer = errors.New("wallet has no chain indexer")

// Wallet is the online half of the wallet. It owns the block cache and note
// index of one account directory and must not be shared between processes.
type Wallet struct {
	cfg     *Config
	store   walletdb.Store
	indexer chain.Indexer
}

// New returns a wallet over store. The indexer may be nil for operations
// that do not talk to the network.
func New(cfg *Config, store walletdb.Store,
	indexer chain.Indexer) (*Wallet, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Wallet{cfg: cfg, store: store, indexer: indexer}, nil
}

// Config returns the configuration of the wallet.
func (w *Wallet) Config() *Config {
	return w.cfg
}

// InitAccount seeds the note index with a viewing key and the checkpoint
// scanning starts after. The checkpoint is the one at height when set,
// otherwise the one closest to birthday, otherwise the chain tip.
func (w *Wallet) InitAccount(ctx context.Context, viewingKey string,
	height fn.Option[uint32], birthday fn.Option[time.Time]) (
	*netparams.Checkpoint, error) {

	params := w.cfg.Params
	_, err := shielded.DecodeExtendedFullViewingKey(
		params.HRPSaplingExtendedFullViewingKey, viewingKey,
	)
	if err != nil {
		return nil, &DecodeError{What: "viewing key", Input: viewingKey,
			Err: err}
	}
	if w.indexer == nil {
		return nil, ErrNoIndexer
	}

	resolver := chain.NewCheckpointResolver(w.indexer, params)
	cp, err := resolver.Resolve(ctx, height, birthday)
	if err != nil {
		return nil, err
	}

	// The tree is stored in binary form but must parse as a frontier.
	tree, err := hex.DecodeString(cp.SaplingTree)
	if err == nil {
		_, err = shielded.ParseCommitmentTree(tree)
	}
	if err != nil {
		return nil, &DecodeError{What: "sapling tree",
			Input: cp.SaplingTree, Err: err}
	}

	err = w.store.InitAccount(ctx, walletdb.InitAccountParams{
		ID:         DefaultAccount,
		ViewingKey: viewingKey,
		Block: walletdb.BlockInfo{
			Height:      cp.Height,
			Hash:        cp.Hash,
			Time:        cp.Time,
			SaplingTree: tree,
		},
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Initialized account %d at height %d", DefaultAccount,
		cp.Height)

	return cp, nil
}

// scanRange returns the lowest and highest scanned heights.
func (w *Wallet) scanRange(ctx context.Context) (uint32, uint32, error) {
	rng, err := w.store.ScanRange(ctx)
	if err != nil {
		return 0, 0, err
	}
	if rng.IsNone() {
		return 0, 0, &AccountNotInitializedError{}
	}
	r := rng.UnwrapOr([2]uint32{})
	return r[0], r[1], nil
}

// anchor returns the target height of a new transaction and the height of
// the tree state its spends prove against.
func (w *Wallet) anchor(ctx context.Context) (uint32, uint32, error) {
	first, last, err := w.scanRange(ctx)
	if err != nil {
		return 0, 0, err
	}
	target := last + 1
	anchor := first
	if target > first+AnchorOffset {
		anchor = target - AnchorOffset
	}
	return target, anchor, nil
}

// Balance returns the unspent value of the account and the part of it that
// is spendable at the current anchor.
func (w *Wallet) Balance(ctx context.Context) (*walletdb.Balance, error) {
	_, anchor, err := w.anchor(ctx)
	if err != nil {
		return nil, err
	}
	return w.store.Balance(ctx, walletdb.BalanceQuery{
		Account:      DefaultAccount,
		AnchorHeight: anchor,
	})
}

// ListNotes returns every note received by the account.
func (w *Wallet) ListNotes(ctx context.Context) ([]walletdb.NoteInfo, error) {
	if _, _, err := w.scanRange(ctx); err != nil {
		return nil, err
	}
	return w.store.ListNotes(ctx, DefaultAccount)
}

// CheckAddress decodes a payment address of the configured network.
func CheckAddress(cfg *Config, addr string) (*shielded.PaymentAddress,
	error) {

	to, err := shielded.DecodePaymentAddress(
		cfg.Params.HRPSaplingPaymentAddress, addr,
	)
	if err != nil {
		return nil, &DecodeError{What: "address", Input: addr, Err: err}
	}
	return to, nil
}

// viewingKeys decodes the viewing keys of every account.
func (w *Wallet) viewingKeys(ctx context.Context) (
	map[uint32]*shielded.ExtendedFullViewingKey, error) {

	accounts, err := w.store.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, &AccountNotInitializedError{}
	}

	keys := make(map[uint32]*shielded.ExtendedFullViewingKey, len(accounts))
	for _, a := range accounts {
		efvk, err := shielded.DecodeExtendedFullViewingKey(
			w.cfg.Params.HRPSaplingExtendedFullViewingKey,
			a.ViewingKey,
		)
		if err != nil {
			return nil, &DecodeError{What: "viewing key",
				Input: a.ViewingKey, Err: err}
		}
		keys[a.ID] = efvk
	}
	return keys, nil
}
