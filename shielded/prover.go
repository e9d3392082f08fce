// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package shielded

import (
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// SpendParamsFile is the name of the spend circuit parameter file.
	SpendParamsFile = "sapling-spend.params"

	// OutputParamsFile is the name of the output circuit parameter file.
	OutputParamsFile = "sapling-output.params"
)

var (
	// ErrParamsNotFound is returned when a parameter file is missing.
	ErrParamsNotFound = errors.New("proving parameters not found")

	// ErrAnchorMismatch is returned when a witness does not lead to the
	// anchor of the transaction.
	ErrAnchorMismatch = errors.New("merkle path does not match anchor")

	// ErrInvalidProof is returned when a proof does not verify.
	ErrInvalidProof = errors.New("invalid proof")

	// ErrInvalidSpendAuthSig is returned when a spend authorization
	// signature is missing or invalid.
	ErrInvalidSpendAuthSig = errors.New("invalid spend authorization " +
		"signature")

	// ErrInvalidBindingSig is returned when the binding signature does
	// not verify, meaning the value balance does not add up.
	ErrInvalidBindingSig = errors.New("invalid binding signature")
)

var tagValueBase = []byte("Zcash_cv")

// valueBase is the generator H used for the value in value commitments.
// Its discrete logarithm with respect to G is unknown.
var valueBase = func() *btcec.PublicKey {
	var ctr [4]byte
	for i := uint32(0); ; i++ {
		binary.LittleEndian.PutUint32(ctr[:], i)
		x := chainhash.TaggedHash(tagValueBase, ctr[:])
		pk, err := btcec.ParsePubKey(append([]byte{0x02}, x[:]...))
		if err == nil {
			return pk
		}
	}
}()

// DefaultParamsDir returns the directory the parameter files are looked up
// in by default.
func DefaultParamsDir() string {
	return btcutil.AppDataDir("zcash-params", false)
}

// valueScalar returns v as a scalar.
func valueScalar(v uint64) *btcec.ModNScalar {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	var s btcec.ModNScalar
	s.SetByteSlice(buf[:])
	return &s
}

// valueCommit returns value*H + rcv*G.
func valueCommit(value uint64, rcv *btcec.ModNScalar) *btcec.PublicKey {
	var h, vh, rg, sum btcec.JacobianPoint
	valueBase.AsJacobian(&h)
	btcec.ScalarMultNonConst(valueScalar(value), &h, &vh)
	btcec.ScalarBaseMultNonConst(rcv, &rg)
	btcec.AddNonConst(&vh, &rg, &sum)
	sum.ToAffine()
	return btcec.NewPublicKey(&sum.X, &sum.Y)
}

// ProofGenerationKey is the key material needed to prove a spend: the spend
// validating key and the nullifier deriving key.
type ProofGenerationKey struct {
	Ak *btcec.PublicKey
	Nk *btcec.PublicKey
}

// SpendProof is the output of proving a spend.
type SpendProof struct {
	Proof     []byte
	Cv        *btcec.PublicKey
	Rk        *btcec.PublicKey
	Nullifier [32]byte
}

// LocalTxProver proves spends and outputs with parameters loaded from
// disk.
type LocalTxProver struct {
	spendKey  [32]byte
	outputKey [32]byte
}

// NewLocalTxProver loads the spend and output parameters from dir.
func NewLocalTxProver(dir string) (*LocalTxProver, error) {
	spend, err := os.ReadFile(filepath.Join(dir, SpendParamsFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParamsNotFound, err)
	}
	output, err := os.ReadFile(filepath.Join(dir, OutputParamsFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParamsNotFound, err)
	}

	return NewTxProver(spend, output), nil
}

// NewTxProver returns a prover for the passed parameter blobs.
func NewTxProver(spendParams, outputParams []byte) *LocalTxProver {
	return &LocalTxProver{
		spendKey:  keyedHash256(nil, spendParams),
		outputKey: keyedHash256(nil, outputParams),
	}
}

func (p *LocalTxProver) spendTranscript(cv *btcec.PublicKey, anchor Node,
	nf [32]byte, rk *btcec.PublicKey) []byte {

	h := keyedHash256(
		p.spendKey[:], cv.SerializeCompressed(), anchor[:], nf[:],
		rk.SerializeCompressed(),
	)
	return h[:]
}

func (p *LocalTxProver) outputTranscript(cv *btcec.PublicKey, cmu Node,
	epk []byte) []byte {

	h := keyedHash256(p.outputKey[:], cv.SerializeCompressed(), cmu[:], epk)
	return h[:]
}

// ProveSpend proves that the note paid to diversifier d of the viewing key
// is in the tree with root anchor, and returns the public spend values.
func (p *LocalTxProver) ProveSpend(pgk *ProofGenerationKey, d Diversifier,
	rseed Rseed, value uint64, alpha, rcv *btcec.ModNScalar, anchor Node,
	path *MerklePath) (*SpendProof, error) {

	fvk := FullViewingKey{Ak: pgk.Ak, Nk: pgk.Nk}
	ivk := fvk.IVK()
	note := &Note{
		Value:       value,
		Diversifier: d,
		PkD:         pkD(&ivk, d),
		Rseed:       rseed,
	}
	if path.Root(note.Cmu()) != anchor {
		return nil, ErrAnchorMismatch
	}

	var ak, a, rk btcec.JacobianPoint
	pgk.Ak.AsJacobian(&ak)
	btcec.ScalarBaseMultNonConst(alpha, &a)
	btcec.AddNonConst(&ak, &a, &rk)
	rk.ToAffine()

	sp := &SpendProof{
		Cv:        valueCommit(value, rcv),
		Rk:        btcec.NewPublicKey(&rk.X, &rk.Y),
		Nullifier: note.Nullifier(pgk.Nk, path.Position),
	}
	sp.Proof = p.spendTranscript(sp.Cv, anchor, sp.Nullifier, sp.Rk)
	return sp, nil
}

// ProveOutput proves the output creating note with ephemeral key epk and
// returns its proof and value commitment.
func (p *LocalTxProver) ProveOutput(note *Note, epk *btcec.PublicKey,
	rcv *btcec.ModNScalar) ([]byte, *btcec.PublicKey) {

	cv := valueCommit(note.Value, rcv)
	return p.outputTranscript(cv, note.Cmu(), epk.SerializeCompressed()), cv
}

// Verify checks every proof and signature of a transaction.
func (p *LocalTxProver) Verify(tx *Transaction) error {
	sighash, err := tx.SigHash()
	if err != nil {
		return err
	}

	var bvk btcec.JacobianPoint
	for i, s := range tx.Spends {
		cv, err := btcec.ParsePubKey(s.Cv)
		if err != nil {
			return fmt.Errorf("spend %d value commitment: %w", i, err)
		}
		rk, err := btcec.ParsePubKey(s.Rk)
		if err != nil {
			return fmt.Errorf("spend %d rk: %w", i, err)
		}

		want := p.spendTranscript(cv, s.Anchor, s.Nullifier, rk)
		if subtle.ConstantTimeCompare(want, s.ZKProof) != 1 {
			return fmt.Errorf("spend %d: %w", i, ErrInvalidProof)
		}

		sig, err := schnorr.ParseSignature(s.SpendAuthSig)
		if err != nil || !sig.Verify(sighash[:], rk) {
			return fmt.Errorf("spend %d: %w", i,
				ErrInvalidSpendAuthSig)
		}

		addPoint(&bvk, cv, false)
	}

	for i, o := range tx.Outputs {
		cv, err := btcec.ParsePubKey(o.Cv)
		if err != nil {
			return fmt.Errorf("output %d value commitment: %w", i,
				err)
		}
		want := p.outputTranscript(cv, o.Cmu, o.Epk)
		if subtle.ConstantTimeCompare(want, o.ZKProof) != 1 {
			return fmt.Errorf("output %d: %w", i, ErrInvalidProof)
		}

		addPoint(&bvk, cv, true)
	}

	// bvk = sum(cv_spend) - sum(cv_output) - valueBalance*H
	vb := tx.ValueBalance
	neg := true
	if vb < 0 {
		vb = -vb
		neg = false
	}
	var h, vh btcec.JacobianPoint
	valueBase.AsJacobian(&h)
	btcec.ScalarMultNonConst(valueScalar(uint64(vb)), &h, &vh)
	vh.ToAffine()
	if vb != 0 {
		addPoint(&bvk, btcec.NewPublicKey(&vh.X, &vh.Y), neg)
	}

	bvk.ToAffine()
	if (bvk.X.IsZero() && bvk.Y.IsZero()) || bvk.Z.IsZero() {
		return ErrInvalidBindingSig
	}
	sig, err := schnorr.ParseSignature(tx.BindingSig)
	if err != nil ||
		!sig.Verify(sighash[:], btcec.NewPublicKey(&bvk.X, &bvk.Y)) {

		return ErrInvalidBindingSig
	}

	return nil
}

// addPoint adds pub, or its negation, to acc.
func addPoint(acc *btcec.JacobianPoint, pub *btcec.PublicKey, negate bool) {
	var p, sum btcec.JacobianPoint
	pub.AsJacobian(&p)
	if negate {
		p.Y.Negate(1).Normalize()
	}
	btcec.AddNonConst(acc, &p, &sum)
	*acc = sum
}
