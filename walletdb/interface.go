// Copyright (c) 2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package walletdb provides the relational block cache and note index of
// the wallet. The same schema and queries run on SQLite and Postgres.
package walletdb

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zcoldwallet/zcoldwallet/shielded"
)

// ============================================================================
// Data Types & Method Parameters
// ============================================================================

// CachedBlock is a raw compact block stored in the block cache.
type CachedBlock struct {
	Height uint32

	// Data is the encoded compact block.
	Data []byte
}

// AccountInfo describes an account of the note index.
type AccountInfo struct {
	ID uint32

	// ViewingKey is the encoded extended full viewing key.
	ViewingKey string

	// Birthday is the checkpoint height the account was seeded from.
	Birthday uint32
}

// InitAccountParams contains the parameters for seeding a new account.
type InitAccountParams struct {
	ID         uint32
	ViewingKey string

	// Block is the checkpoint block scanning starts after.
	Block BlockInfo
}

// BlockInfo is a scanned block together with the commitment tree state at
// its end.
type BlockInfo struct {
	Height uint32

	// Hash is in internal byte order.
	Hash []byte

	Time uint32

	// SaplingTree is the serialized commitment tree after the block.
	SaplingTree []byte
}

// NoteInfo is a received note.
type NoteInfo struct {
	Account uint32

	// Position is the position of the note commitment in the tree. It
	// identifies the note.
	Position uint64

	// Height is the height of the block the note was mined in.
	Height      uint32
	TxIndex     uint32
	OutputIndex uint32

	Diversifier shielded.Diversifier
	Value       btcutil.Amount
	Rseed       shielded.Rseed
	Nullifier   [32]byte

	// SpentHeight is set once a spend of the note has been scanned.
	SpentHeight fn.Option[uint32]

	// Witness is the serialized incremental witness at the anchor height.
	// It is only filled by SelectSpendableNotes.
	Witness []byte
}

// WitnessInfo is the serialized witness of a note at a height.
type WitnessInfo struct {
	Position uint64
	Witness  []byte
}

// ApplyBlockParams is the outcome of scanning one block.
type ApplyBlockParams struct {
	Block BlockInfo

	// NewNotes are the notes received in the block.
	NewNotes []NoteInfo

	// Spent are the nullifiers revealed in the block.
	Spent [][32]byte

	// Witnesses are the witnesses of all unspent notes after the block.
	Witnesses []WitnessInfo
}

// CoinSelection is the order in which spendable notes are picked.
type CoinSelection uint8

const (
	// SelectLargest picks notes by descending value.
	SelectLargest CoinSelection = iota

	// SelectOldest picks notes by ascending position.
	SelectOldest
)

// SelectNotesQuery asks for unspent notes covering a target value.
type SelectNotesQuery struct {
	Account      uint32
	AnchorHeight uint32
	Target       btcutil.Amount
	Strategy     CoinSelection
}

// BalanceQuery asks for the balance of an account.
type BalanceQuery struct {
	Account      uint32
	AnchorHeight uint32
}

// Balance is the value of the unspent notes of an account.
type Balance struct {
	// Total includes notes that are not yet spendable at the anchor.
	Total btcutil.Amount

	// Spendable is the value of unspent notes mined at or below the
	// anchor height.
	Spendable btcutil.Amount
}

// ============================================================================
// Store Interfaces
// ============================================================================

// BlockCache stores raw compact blocks by height.
type BlockCache interface {
	// PutCompactBlocks stores blocks, replacing any block already cached
	// at the same height.
	PutCompactBlocks(ctx context.Context, blocks []CachedBlock) error

	// MaxCachedHeight returns the height of the highest cached block, or
	// None for an empty cache.
	MaxCachedHeight(ctx context.Context) (fn.Option[uint32], error)

	// ForEachCompactBlock calls f for every cached block above height in
	// height order.
	ForEachCompactBlock(ctx context.Context, height uint32,
		f func(CachedBlock) error) error
}

// NoteIndex stores accounts, scanned blocks and received notes.
type NoteIndex interface {
	// InitAccount creates an account and its checkpoint block.
	InitAccount(ctx context.Context, params InitAccountParams) error

	// Accounts lists the accounts ordered by id.
	Accounts(ctx context.Context) ([]AccountInfo, error)

	// ScanRange returns the lowest and highest scanned heights, or None
	// before any account has been initialized.
	ScanRange(ctx context.Context) (fn.Option[[2]uint32], error)

	// Block returns the scanned block at height.
	Block(ctx context.Context, height uint32) (*BlockInfo, error)

	// Witnesses returns the witnesses of unspent notes at height.
	Witnesses(ctx context.Context, height uint32) ([]WitnessInfo, error)

	// UnspentNotes returns every unspent note ordered by position.
	UnspentNotes(ctx context.Context) ([]NoteInfo, error)

	// ApplyBlock atomically records a scanned block.
	ApplyBlock(ctx context.Context, params ApplyBlockParams) error

	// SelectSpendableNotes returns unspent notes mined at or below the
	// anchor height, with their witnesses at the anchor height, in the
	// strategy's order until their value covers the target. The result
	// may not cover the target if the account lacks funds.
	SelectSpendableNotes(ctx context.Context, query SelectNotesQuery) (
		[]NoteInfo, error)

	// Balance sums the unspent notes of an account.
	Balance(ctx context.Context, query BalanceQuery) (*Balance, error)

	// ListNotes returns every note of an account ordered by position.
	ListNotes(ctx context.Context, account uint32) ([]NoteInfo, error)
}

// Store is the complete wallet database.
type Store interface {
	BlockCache
	NoteIndex

	// CreateSchema creates the tables if they do not exist.
	CreateSchema(ctx context.Context) error

	// Close closes the database.
	Close() error
}
