// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package frost

import (
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// SecretShare is the output of the dealer for a single signer. It must be
// delivered to exactly that signer and never leave its device.
type SecretShare struct {
	// Index is the signer's non-zero identifier.
	Index uint32

	// Value is the signer's share of the group signing key.
	Value btcec.ModNScalar

	// Public is Value*G, the signer's verification share.
	Public *btcec.PublicKey

	// GroupPublic is the group verification key.
	GroupPublic *btcec.PublicKey

	// Commitment holds the Feldman commitments to the dealer polynomial,
	// constant term first, letting the signer check its share.
	Commitment []*btcec.PublicKey
}

// PublicKeyPackage is the non-secret output of the dealer distributed to
// every signer and to the aggregator.
type PublicKeyPackage struct {
	SignerPubKeys map[uint32]*btcec.PublicKey
	GroupPublic   *btcec.PublicKey
}

// Threshold returns the number of shares needed to sign, recovered from the
// commitment length.
func (s *SecretShare) Threshold() int {
	return len(s.Commitment)
}

// Verify checks the share against the dealer's polynomial commitments:
// Value*G must equal sum(C_k * index^k).
func (s *SecretShare) Verify() error {
	if len(s.Commitment) == 0 {
		return errors.New("share carries no polynomial commitment")
	}

	x := scalarFromIndex(s.Index)
	pow := new(btcec.ModNScalar).SetInt(1)

	var sum btcec.JacobianPoint
	for _, c := range s.Commitment {
		var cj, term btcec.JacobianPoint
		c.AsJacobian(&cj)
		btcec.ScalarMultNonConst(pow, &cj, &term)

		var next btcec.JacobianPoint
		btcec.AddNonConst(&sum, &term, &next)
		sum = next
		pow.Mul(x)
	}

	var want btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(&s.Value, &want)

	sum.ToAffine()
	want.ToAffine()
	if !sum.X.Equals(&want.X) || !sum.Y.Equals(&want.Y) {
		return fmt.Errorf("share %d does not match the dealer "+
			"commitment", s.Index)
	}
	if !s.Public.IsEqual(btcec.NewPublicKey(&want.X, &want.Y)) {
		return fmt.Errorf("share %d verification key mismatch",
			s.Index)
	}
	if !s.GroupPublic.IsEqual(s.Commitment[0]) {
		return fmt.Errorf("share %d group key mismatch", s.Index)
	}

	return nil
}

// KeygenWithDealer splits a freshly generated signing key into n shares with
// threshold t using Shamir secret sharing with Feldman commitments. Signer
// indices are 1..n.
func KeygenWithDealer(n, t int, rand io.Reader) ([]*SecretShare,
	*PublicKeyPackage, error) {

	if t < 1 || t > n {
		return nil, nil, ErrInvalidThreshold
	}

	// coeffs[0] is the group signing key.
	coeffs := make([]*btcec.ModNScalar, t)
	for i := range coeffs {
		c, err := randomScalar(rand)
		if err != nil {
			return nil, nil, err
		}
		coeffs[i] = c
	}
	defer func() {
		for _, c := range coeffs {
			c.Zero()
		}
	}()

	commitment := make([]*btcec.PublicKey, t)
	for i, c := range coeffs {
		commitment[i] = scalarBase(c)
	}

	pkg := &PublicKeyPackage{
		SignerPubKeys: make(map[uint32]*btcec.PublicKey, n),
		GroupPublic:   commitment[0],
	}

	shares := make([]*SecretShare, 0, n)
	for i := 1; i <= n; i++ {
		idx := uint32(i)
		value := evalPolynomial(coeffs, scalarFromIndex(idx))

		share := &SecretShare{
			Index:       idx,
			Value:       *value,
			Public:      scalarBase(value),
			GroupPublic: commitment[0],
			Commitment:  commitment,
		}
		pkg.SignerPubKeys[idx] = share.Public
		shares = append(shares, share)
	}

	log.Debugf("Dealt %d-of-%d key shares", t, n)

	return shares, pkg, nil
}

// evalPolynomial evaluates the polynomial with the passed coefficients at x
// using Horner's rule.
func evalPolynomial(coeffs []*btcec.ModNScalar,
	x *btcec.ModNScalar) *btcec.ModNScalar {

	var result btcec.ModNScalar
	for i := len(coeffs) - 1; i >= 0; i-- {
		result.Mul(x)
		result.Add(coeffs[i])
	}
	return &result
}
