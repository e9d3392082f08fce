// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package frost

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// SigningPackage binds a message to the commitment set of one signing
// attempt.
type SigningPackage struct {
	Commitments []SigningCommitments
	Message     []byte
}

// SignatureShare is a signer's partial signature.
type SignatureShare struct {
	Index uint32
	Z     btcec.ModNScalar
}

// signingState holds the values every participant derives identically from
// a signing package.
type signingState struct {
	sorted  []SigningCommitments
	signers []uint32
	rhos    map[uint32]*btcec.ModNScalar

	// groupR is R = sum(D_i + rho_i*E_i), negated when its y is odd.
	groupR btcec.JacobianPoint

	// rNegated is set when R had an odd y coordinate.
	rNegated bool

	alpha     *btcec.ModNScalar
	rk        *btcec.PublicKey
	kNegated  bool
	challenge *btcec.ModNScalar
}

// newSigningState computes the binding factors, group commitment,
// rerandomized key and challenge of a signing package.
func newSigningState(pkg *SigningPackage,
	group *btcec.PublicKey) (*signingState, error) {

	if len(pkg.Message) != 32 {
		return nil, ErrInvalidMessage
	}

	sorted, err := sortCommitments(pkg.Commitments)
	if err != nil {
		return nil, err
	}
	encoded := encodeCommitments(sorted)

	st := &signingState{
		sorted: sorted,
		rhos:   make(map[uint32]*btcec.ModNScalar, len(sorted)),
	}

	var r btcec.JacobianPoint
	for i := range sorted {
		c := &sorted[i]
		st.signers = append(st.signers, c.Index)

		var idx [4]byte
		binary.BigEndian.PutUint32(idx[:], c.Index)
		rho := hashToScalar(tagBinding, idx[:], pkg.Message, encoded)
		st.rhos[c.Index] = rho

		term := commitmentShare(c, rho)
		var next btcec.JacobianPoint
		btcec.AddNonConst(&r, &term, &next)
		r = next
	}
	r.ToAffine()
	if isInfinity(&r) {
		return nil, fmt.Errorf("group commitment is the point at " +
			"infinity")
	}
	if r.Y.IsOdd() {
		r.Y.Negate(1).Normalize()
		st.rNegated = true
	}
	st.groupR = r

	st.alpha, err = Randomizer(sorted)
	if err != nil {
		return nil, err
	}
	st.rk, err = rerandomizeKey(group, st.alpha)
	if err != nil {
		return nil, err
	}
	st.kNegated = hasOddY(st.rk)

	rx := r.X.Bytes()
	st.challenge = hashToScalar(
		tagChallenge, rx[:], schnorr.SerializePubKey(st.rk),
		pkg.Message,
	)

	return st, nil
}

// commitmentShare returns D_i + rho_i*E_i.
func commitmentShare(c *SigningCommitments,
	rho *btcec.ModNScalar) btcec.JacobianPoint {

	var d, e, re, sum btcec.JacobianPoint
	c.Hiding.AsJacobian(&d)
	c.Binding.AsJacobian(&e)
	btcec.ScalarMultNonConst(rho, &e, &re)
	btcec.AddNonConst(&d, &re, &sum)
	return sum
}

// Sign produces the signer's share over the signing package. The nonces are
// zeroed and marked consumed afterwards, whether or not signing succeeded
// past the consistency checks.
func Sign(share *SecretShare, nonces *SigningNonces,
	pkg *SigningPackage) (*SignatureShare, error) {

	if nonces.consumed {
		return nil, ErrNoncesConsumed
	}
	if nonces.Index != share.Index {
		return nil, ErrNonceMismatch
	}

	var own *SigningCommitments
	for i := range pkg.Commitments {
		if pkg.Commitments[i].Index == share.Index {
			own = &pkg.Commitments[i]
			break
		}
	}
	if own == nil {
		return nil, ErrMissingCommitment
	}
	published := nonces.Commitments()
	if !published.Equal(own) {
		return nil, ErrNonceMismatch
	}

	st, err := newSigningState(pkg, share.GroupPublic)
	if err != nil {
		return nil, err
	}

	// Nonces are spent from here on.
	defer nonces.Zero()

	// z_i = gR*(d + rho*e) + lambda*gK*s*c
	k := new(btcec.ModNScalar).Set(&nonces.Binding)
	k.Mul(st.rhos[share.Index]).Add(&nonces.Hiding)
	if st.rNegated {
		k.Negate()
	}

	lambda := lagrangeCoefficient(share.Index, st.signers)
	sc := new(btcec.ModNScalar).Set(&share.Value)
	sc.Mul(lambda).Mul(st.challenge)
	if st.kNegated {
		sc.Negate()
	}

	z := k.Add(sc)

	log.Tracef("Signer %d produced share over %d commitments",
		share.Index, len(st.sorted))

	return &SignatureShare{Index: share.Index, Z: *z}, nil
}

// VerifyShare checks a single signature share against the signer's
// verification share.
func VerifyShare(pkg *SigningPackage, pub *PublicKeyPackage,
	sigShare *SignatureShare) error {

	st, err := newSigningState(pkg, pub.GroupPublic)
	if err != nil {
		return err
	}
	return st.verifyShare(pub, sigShare)
}

func (st *signingState) verifyShare(pub *PublicKeyPackage,
	sigShare *SignatureShare) error {

	rho, ok := st.rhos[sigShare.Index]
	if !ok {
		return ErrMissingCommitment
	}
	y, ok := pub.SignerPubKeys[sigShare.Index]
	if !ok {
		return &InvalidShareError{Index: sigShare.Index}
	}

	var c *SigningCommitments
	for i := range st.sorted {
		if st.sorted[i].Index == sigShare.Index {
			c = &st.sorted[i]
		}
	}

	// gR*(D_i + rho_i*E_i)
	ri := commitmentShare(c, rho)
	ri.ToAffine()
	if st.rNegated {
		ri.Y.Negate(1).Normalize()
	}

	// lambda_i*gK*c*Y_i
	lambda := lagrangeCoefficient(sigShare.Index, st.signers)
	lambda.Mul(st.challenge)
	if st.kNegated {
		lambda.Negate()
	}
	var yj, cy, want btcec.JacobianPoint
	y.AsJacobian(&yj)
	btcec.ScalarMultNonConst(lambda, &yj, &cy)
	btcec.AddNonConst(&ri, &cy, &want)
	want.ToAffine()

	var got btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(&sigShare.Z, &got)
	got.ToAffine()

	if !got.X.Equals(&want.X) || !got.Y.Equals(&want.Y) {
		return &InvalidShareError{Index: sigShare.Index}
	}
	return nil
}

// Aggregate combines the signature shares of every committed signer into a
// BIP-340 signature valid under the rerandomized group key. Each share is
// verified first so that a faulty signer is identified.
func Aggregate(pkg *SigningPackage, pub *PublicKeyPackage,
	shares []SignatureShare) (*schnorr.Signature, error) {

	st, err := newSigningState(pkg, pub.GroupPublic)
	if err != nil {
		return nil, err
	}

	byIndex := make(map[uint32]*SignatureShare, len(shares))
	for i := range shares {
		if _, ok := st.rhos[shares[i].Index]; !ok {
			return nil, fmt.Errorf("share from signer %d: %w",
				shares[i].Index, ErrMissingCommitment)
		}
		byIndex[shares[i].Index] = &shares[i]
	}

	var z btcec.ModNScalar
	for _, idx := range st.signers {
		s, ok := byIndex[idx]
		if !ok {
			return nil, fmt.Errorf("signer %d: %w", idx,
				ErrMissingShare)
		}
		if err := st.verifyShare(pub, s); err != nil {
			return nil, err
		}
		z.Add(&s.Z)
	}

	// The rerandomizer contributes gK*alpha*c.
	ac := new(btcec.ModNScalar).Set(st.alpha)
	ac.Mul(st.challenge)
	if st.kNegated {
		ac.Negate()
	}
	z.Add(ac)

	sig := schnorr.NewSignature(&st.groupR.X, &z)
	if !sig.Verify(pkg.Message, st.rk) {
		return nil, ErrInvalidSignature
	}

	log.Debugf("Aggregated %d signature shares", len(st.signers))

	return sig, nil
}

// RerandomizedKey returns the public key that signatures over the passed
// commitment set verify against.
func RerandomizedKey(commitments []SigningCommitments,
	group *btcec.PublicKey) (*btcec.PublicKey, error) {

	alpha, err := Randomizer(commitments)
	if err != nil {
		return nil, err
	}
	return rerandomizeKey(group, alpha)
}
