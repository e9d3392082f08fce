// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package frost

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/zeebo/blake3"
)

// nonceKeyContext is the blake3 key derivation context for the per-share
// nonce hashing key.
const nonceKeyContext = "zcoldwallet 2024-05-01 frost signing nonces"

// SigningNonces are the secret nonces generated by a signer in the
// preprocessing round. They must be used for exactly one signature share.
type SigningNonces struct {
	Index      uint32
	Hiding     btcec.ModNScalar
	Binding    btcec.ModNScalar
	Randomizer btcec.ModNScalar

	consumed bool
}

// Consumed reports whether the nonces already produced a signature share.
func (n *SigningNonces) Consumed() bool {
	return n.consumed
}

// Zero clears the secret scalars and marks the nonces as consumed.
func (n *SigningNonces) Zero() {
	n.Hiding.Zero()
	n.Binding.Zero()
	n.Randomizer.Zero()
	n.consumed = true
}

// Commitments recomputes the public commitments of the nonces.
func (n *SigningNonces) Commitments() SigningCommitments {
	return SigningCommitments{
		Index:           n.Index,
		Hiding:          scalarBase(&n.Hiding),
		Binding:         scalarBase(&n.Binding),
		Randomizer:      scalarBase(&n.Randomizer),
		RandomizerNonce: n.Randomizer,
	}
}

// SigningCommitments are the public commitments a signer publishes for one
// signing attempt. RandomizerNonce is the signer's public contribution to
// the key rerandomizer.
type SigningCommitments struct {
	Index           uint32
	Hiding          *btcec.PublicKey
	Binding         *btcec.PublicKey
	Randomizer      *btcec.PublicKey
	RandomizerNonce btcec.ModNScalar
}

// Equal reports whether two commitments are identical.
func (c *SigningCommitments) Equal(o *SigningCommitments) bool {
	return c.Index == o.Index &&
		c.Hiding.IsEqual(o.Hiding) &&
		c.Binding.IsEqual(o.Binding) &&
		c.Randomizer.IsEqual(o.Randomizer) &&
		c.RandomizerNonce.Equals(&o.RandomizerNonce)
}

// Preprocess generates one set of signing nonces and their commitments for
// the passed share. The nonces are hedged: they are derived from a key bound
// to the secret share, the caller supplied context and fresh randomness, so
// a weak random source alone does not reveal them.
func Preprocess(share *SecretShare, context []byte,
	rand io.Reader) (*SigningNonces, *SigningCommitments, error) {

	var a [32]byte
	if _, err := io.ReadFull(rand, a[:]); err != nil {
		return nil, nil, err
	}

	shareBytes := share.Value.Bytes()
	hashKey := make([]byte, 32)
	blake3.DeriveKey(nonceKeyContext, shareBytes[:], hashKey)
	hasher, err := blake3.NewKeyed(hashKey)
	if err != nil {
		return nil, nil, err
	}

	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], share.Index)
	_, _ = hasher.Write(idx[:])
	_, _ = hasher.Write(context)
	_, _ = hasher.Write(a[:])
	digest := hasher.Digest()

	nonces := &SigningNonces{Index: share.Index}
	for _, s := range []*btcec.ModNScalar{
		&nonces.Hiding, &nonces.Binding, &nonces.Randomizer,
	} {
		sc, err := randomScalar(digest)
		if err != nil {
			return nil, nil, err
		}
		*s = *sc
	}

	commitments := nonces.Commitments()

	return nonces, &commitments, nil
}

// sortCommitments returns a copy of the commitments ordered by signer index
// and checks for duplicates and inconsistent randomizers.
func sortCommitments(list []SigningCommitments) ([]SigningCommitments,
	error) {

	if len(list) == 0 {
		return nil, ErrEmptyCommitments
	}

	sorted := make([]SigningCommitments, len(list))
	copy(sorted, list)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Index < sorted[j].Index
	})

	for i := range sorted {
		if i > 0 && sorted[i].Index == sorted[i-1].Index {
			return nil, ErrDuplicateCommitment
		}
		c := &sorted[i]
		if c.Hiding == nil || c.Binding == nil || c.Randomizer == nil {
			return nil, ErrMissingCommitment
		}
		if !scalarBase(&c.RandomizerNonce).IsEqual(c.Randomizer) {
			return nil, ErrInvalidRandomizer
		}
	}

	return sorted, nil
}

// encodeCommitments serializes the sorted commitment list for hashing.
func encodeCommitments(sorted []SigningCommitments) []byte {
	buf := make([]byte, 0, len(sorted)*(4+33+33))
	for i := range sorted {
		var idx [4]byte
		binary.BigEndian.PutUint32(idx[:], sorted[i].Index)
		buf = append(buf, idx[:]...)
		buf = append(buf, sorted[i].Hiding.SerializeCompressed()...)
		buf = append(buf, sorted[i].Binding.SerializeCompressed()...)
	}
	return buf
}

// Randomizer derives the key rerandomizer alpha from a commitment set. Every
// signer's randomizer nonce contributes, so no single participant controls
// the rerandomized key.
func Randomizer(commitments []SigningCommitments) (*btcec.ModNScalar,
	error) {

	sorted, err := sortCommitments(commitments)
	if err != nil {
		return nil, err
	}

	msgs := [][]byte{encodeCommitments(sorted)}
	for i := range sorted {
		r := sorted[i].RandomizerNonce.Bytes()
		msgs = append(msgs, r[:])
	}

	return hashToScalar(tagRandomizer, msgs...), nil
}
