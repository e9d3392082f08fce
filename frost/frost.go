// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package frost implements two-round threshold Schnorr signatures (FROST)
// over secp256k1 with signing-key rerandomization.
//
// A trusted dealer splits a signing key into n shares so that any t of them
// can jointly sign. Each signing attempt is split into a preprocessing step,
// in which every signer publishes commitments to fresh nonces, and a signing
// step, in which every signer produces a signature share over the message
// bound to the full commitment set. The aggregator combines the shares into a
// single BIP-340 signature which verifies against the group key tweaked by a
// randomizer derived from the commitment set.
//
// The rerandomized key is rk = Y + alpha*G, where Y is the group key and alpha
// is a hash of every signer's published randomizer nonce. The same alpha is
// handed to the proving system so that the spend description commits to rk.
package frost

import (
	"encoding/binary"
	"errors"
	"io"
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var (
	// ErrInvalidThreshold is returned by the dealer when the threshold is
	// zero or larger than the number of signers.
	ErrInvalidThreshold = errors.New("threshold must be between 1 and " +
		"the number of signers")

	// ErrNoncesConsumed is returned when a set of signing nonces that has
	// already produced a signature share is used again. Reusing nonces
	// across two messages leaks the signer's secret share.
	ErrNoncesConsumed = errors.New("signing nonces already consumed")

	// ErrNonceMismatch is returned when a signer's nonces do not match the
	// commitments published under its index.
	ErrNonceMismatch = errors.New("signing nonces do not match the " +
		"published commitments")

	// ErrMissingCommitment is returned when a signer or a signature share
	// has no commitment in the signing package.
	ErrMissingCommitment = errors.New("no commitment for signer")

	// ErrDuplicateCommitment is returned when a signer appears twice in a
	// commitment set.
	ErrDuplicateCommitment = errors.New("duplicate commitment for signer")

	// ErrMissingShare is returned when a committed signer did not provide
	// a signature share.
	ErrMissingShare = errors.New("missing signature share")

	// ErrInvalidRandomizer is returned when a published randomizer point
	// does not match its randomizer nonce.
	ErrInvalidRandomizer = errors.New("randomizer point does not match " +
		"randomizer nonce")

	// ErrInvalidSignature is returned when the aggregated signature does
	// not verify against the rerandomized group key.
	ErrInvalidSignature = errors.New("aggregated signature is invalid")

	// ErrInvalidMessage is returned when the message is not a 32 byte
	// digest.
	ErrInvalidMessage = errors.New("message must be a 32 byte digest")

	// ErrInvalidShare is wrapped by InvalidShareError.
	ErrInvalidShare = errors.New("invalid signature share")

	// ErrEmptyCommitments is returned for a signing package without any
	// commitments.
	ErrEmptyCommitments = errors.New("signing package has no commitments")
)

// InvalidShareError identifies the signer whose share failed verification.
type InvalidShareError struct {
	Index uint32
}

// Error satisfies the error interface.
func (e *InvalidShareError) Error() string {
	return ErrInvalidShare.Error() + " from signer " +
		strconv.FormatUint(uint64(e.Index), 10)
}

// Unwrap lets errors.Is match ErrInvalidShare.
func (e *InvalidShareError) Unwrap() error {
	return ErrInvalidShare
}

// Hash tags used for domain separation.
var (
	tagRandomizer = []byte("FROST-secp256k1/rerandomize")
	tagBinding    = []byte("FROST-secp256k1/rho")
	tagChallenge  = []byte("BIP0340/challenge")
)

// randomScalar reads a uniformly random non-zero scalar from rand.
func randomScalar(rand io.Reader) (*btcec.ModNScalar, error) {
	var buf [32]byte
	for {
		if _, err := io.ReadFull(rand, buf[:]); err != nil {
			return nil, err
		}
		var s btcec.ModNScalar
		overflow := s.SetBytes(&buf)
		if overflow == 0 && !s.IsZero() {
			return &s, nil
		}
	}
}

// hashToScalar reduces a tagged hash of msgs to a scalar.
func hashToScalar(tag []byte, msgs ...[]byte) *btcec.ModNScalar {
	h := chainhash.TaggedHash(tag, msgs...)
	var s btcec.ModNScalar
	s.SetByteSlice(h[:])
	return &s
}

// isInfinity reports whether an affine point is the point at infinity.
func isInfinity(p *btcec.JacobianPoint) bool {
	return (p.X.IsZero() && p.Y.IsZero()) || p.Z.IsZero()
}

// toPublicKey converts a Jacobian point to a public key.
func toPublicKey(p *btcec.JacobianPoint) *btcec.PublicKey {
	p.ToAffine()
	return btcec.NewPublicKey(&p.X, &p.Y)
}

// scalarBase returns k*G as a public key.
func scalarBase(k *btcec.ModNScalar) *btcec.PublicKey {
	var p btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(k, &p)
	return toPublicKey(&p)
}

// scalarFromIndex returns a signer index as a scalar.
func scalarFromIndex(i uint32) *btcec.ModNScalar {
	var s btcec.ModNScalar
	var buf [32]byte
	binary.BigEndian.PutUint32(buf[28:], i)
	s.SetBytes(&buf)
	return &s
}

// lagrangeCoefficient returns the Lagrange coefficient at zero of signer i
// within the passed signer set.
func lagrangeCoefficient(i uint32, signers []uint32) *btcec.ModNScalar {
	num := new(btcec.ModNScalar).SetInt(1)
	den := new(btcec.ModNScalar).SetInt(1)
	xi := scalarFromIndex(i)
	for _, j := range signers {
		if j == i {
			continue
		}
		xj := scalarFromIndex(j)
		num.Mul(xj)

		// den *= (xj - xi)
		diff := new(btcec.ModNScalar).NegateVal(xi)
		diff.Add(xj)
		den.Mul(diff)
	}
	den.InverseNonConst()
	return num.Mul(den)
}

// rerandomizeKey returns group + alpha*G.
func rerandomizeKey(group *btcec.PublicKey,
	alpha *btcec.ModNScalar) (*btcec.PublicKey, error) {

	var y, a, rk btcec.JacobianPoint
	group.AsJacobian(&y)
	btcec.ScalarBaseMultNonConst(alpha, &a)
	btcec.AddNonConst(&y, &a, &rk)
	rk.ToAffine()
	if isInfinity(&rk) {
		return nil, errors.New("rerandomized key is the point at infinity")
	}
	return btcec.NewPublicKey(&rk.X, &rk.Y), nil
}

// RerandomizeKey returns the public key group + alpha*G that a signature
// produced with randomizer alpha verifies against.
func RerandomizeKey(group *btcec.PublicKey,
	alpha *btcec.ModNScalar) (*btcec.PublicKey, error) {

	return rerandomizeKey(group, alpha)
}

// hasOddY reports whether the key has an odd y coordinate.
func hasOddY(pub *btcec.PublicKey) bool {
	return pub.SerializeCompressed()[0] == 0x03
}
