// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

// Checkpoint is a trusted (height, hash, time, tree state) tuple that can be
// used to seed an account without asking the indexer for the tree state.
type Checkpoint struct {
	Height uint32

	// Hash is the block hash in internal byte order (reversed from the
	// display order used by block explorers and the indexer).
	Hash []byte

	Time uint32

	// SaplingTree is the hex encoded commitment tree frontier as of the
	// end of the block.
	SaplingTree string
}

// Params is used to group parameters for the shielded networks supported by
// the wallet.
type Params struct {
	Name string

	// SaplingActivationHeight is the first height at which shielded notes
	// may exist. It is the lower bound of the checkpoint date search.
	SaplingActivationHeight uint32

	// CanopyActivationHeight is the height from which notes must use the
	// post ZIP-212 rseed format.
	CanopyActivationHeight uint32

	SaplingBranchID uint32
	CanopyBranchID  uint32

	HRPSaplingExtendedSpendingKey    string
	HRPSaplingExtendedFullViewingKey string
	HRPSaplingPaymentAddress         string
	CoinType                         uint32
	DefaultLightnodeURL              string

	// Checkpoints is a table of known-good tree states, ordered by
	// height.
	Checkpoints []Checkpoint
}

// BranchID returns the consensus branch id in effect at the passed height.
func (p *Params) BranchID(height uint32) uint32 {
	if height >= p.CanopyActivationHeight {
		return p.CanopyBranchID
	}
	return p.SaplingBranchID
}

// IsZIP212Active reports whether notes created at the passed height use the
// post ZIP-212 rseed format.
func (p *Params) IsZIP212Active(height uint32) bool {
	return height >= p.CanopyActivationHeight
}

// LookupCheckpoint returns the compiled-in checkpoint at exactly the passed
// height, if any.
func (p *Params) LookupCheckpoint(height uint32) (Checkpoint, bool) {
	for _, c := range p.Checkpoints {
		if c.Height == height {
			return c, true
		}
	}
	return Checkpoint{}, false
}

// emptySaplingTree is the serialization of a commitment tree with no leaves:
// no left node, no right node and no parents.
const emptySaplingTree = "000000"

// MainNetParams contains parameters specific to the main network.
//
// No checkpoints are compiled in; tree states are fetched from the indexer.
var MainNetParams = Params{
	Name:                             "mainnet",
	SaplingActivationHeight:          419200,
	CanopyActivationHeight:           1046400,
	SaplingBranchID:                  0x76b809bb,
	CanopyBranchID:                   0xe9ff75a6,
	HRPSaplingExtendedSpendingKey:    "secret-extended-key-main",
	HRPSaplingExtendedFullViewingKey: "zxviews",
	HRPSaplingPaymentAddress:         "zs",
	CoinType:                         133,
	DefaultLightnodeURL:              "https://mainnet.lightwalletd.com:9067",
}

// TestNetParams contains parameters specific to the test network.
var TestNetParams = Params{
	Name:                             "testnet",
	SaplingActivationHeight:          280000,
	CanopyActivationHeight:           1028500,
	SaplingBranchID:                  0x76b809bb,
	CanopyBranchID:                   0xe9ff75a6,
	HRPSaplingExtendedSpendingKey:    "secret-extended-key-test",
	HRPSaplingExtendedFullViewingKey: "zxviewtestsapling",
	HRPSaplingPaymentAddress:         "ztestsapling",
	CoinType:                         1,
	DefaultLightnodeURL:              "http://127.0.0.1:9067",
}

// SimNetParams contains parameters for a local simulation network whose
// genesis carries an empty commitment tree.
var SimNetParams = Params{
	Name:                             "simnet",
	SaplingActivationHeight:          1,
	CanopyActivationHeight:           1,
	SaplingBranchID:                  0x76b809bb,
	CanopyBranchID:                   0xe9ff75a6,
	HRPSaplingExtendedSpendingKey:    "secret-extended-key-regtest",
	HRPSaplingExtendedFullViewingKey: "zxviewregtestsapling",
	HRPSaplingPaymentAddress:         "zregtestsapling",
	CoinType:                         1,
	DefaultLightnodeURL:              "http://127.0.0.1:9067",
	Checkpoints: []Checkpoint{
		{
			Height:      1,
			Hash:        make([]byte, 32),
			Time:        1296688602,
			SaplingTree: emptySaplingTree,
		},
	},
}
