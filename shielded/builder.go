// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package shielded

import (
	"errors"
	"fmt"
	"io"
	mrand "math/rand/v2"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/zcoldwallet/zcoldwallet/netparams"
)

// DefaultFee is the fixed fee paid by every transaction.
const DefaultFee = btcutil.Amount(10000)

// DefaultExpiryDelta is the number of blocks after the target height a
// transaction stays valid.
const DefaultExpiryDelta = 20

var (
	// ErrChangeIsNegative is returned when the spends do not cover the
	// outputs and the fee.
	ErrChangeIsNegative = errors.New("change is negative")

	// ErrNoSpends is returned when building a transaction without
	// spends.
	ErrNoSpends = errors.New("transaction has no spends")

	// ErrMixedModes is returned when single-signer and multi-sign spends
	// are combined in one builder.
	ErrMixedModes = errors.New("cannot mix spend signing modes")
)

type spendInfo struct {
	// extsk is nil for spends authorized by a threshold group.
	extsk *ExtendedSpendingKey

	efvk    *ExtendedFullViewingKey
	alpha   btcec.ModNScalar
	d       Diversifier
	note    *Note
	anchor  Node
	path    *MerklePath
	logical int
}

type outputInfo struct {
	ovk     OutgoingViewingKey
	to      PaymentAddress
	value   uint64
	memo    Memo
	logical int
}

// Builder assembles a shielded transaction.
type Builder struct {
	params *netparams.Params
	height uint32
	rand   io.Reader
	fee    btcutil.Amount

	spends  []spendInfo
	outputs []outputInfo

	anchor *Node
	multi  *bool
}

// NewBuilder returns a builder for a transaction mined at height. The
// randomness source is used for every blinding factor.
func NewBuilder(params *netparams.Params, height uint32,
	rand io.Reader) *Builder {

	return &Builder{
		params: params,
		height: height,
		rand:   rand,
		fee:    DefaultFee,
	}
}

// SetFee overrides the default fee.
func (b *Builder) SetFee(fee btcutil.Amount) {
	b.fee = fee
}

func (b *Builder) addSpend(s spendInfo) error {
	anchor := s.path.Root(s.note.Cmu())
	if b.anchor != nil && *b.anchor != anchor {
		return ErrAnchorMismatch
	}

	multi := s.extsk == nil
	if b.multi != nil && *b.multi != multi {
		return ErrMixedModes
	}

	b.anchor = &anchor
	b.multi = &multi
	s.anchor = anchor
	s.logical = len(b.spends)
	b.spends = append(b.spends, s)
	return nil
}

// AddSaplingSpend adds a spend authorized by extsk.
func (b *Builder) AddSaplingSpend(extsk *ExtendedSpendingKey, d Diversifier,
	note *Note, path *MerklePath) error {

	alpha, err := randScalar(b.rand)
	if err != nil {
		return err
	}
	return b.addSpend(spendInfo{
		extsk: extsk,
		efvk:  extsk.ToExtendedFullViewingKey(),
		alpha: *alpha,
		d:     d,
		note:  note,
		path:  path,
	})
}

// AddSaplingSpendMulti adds a spend whose authorization is produced outside
// the builder under the key rk = ak + alpha*G.
func (b *Builder) AddSaplingSpendMulti(efvk *ExtendedFullViewingKey,
	alpha *btcec.ModNScalar, d Diversifier, note *Note,
	path *MerklePath) error {

	return b.addSpend(spendInfo{
		efvk:  efvk,
		alpha: *alpha,
		d:     d,
		note:  note,
		path:  path,
	})
}

// AddSaplingOutput adds an output paying value to addr, recoverable with
// ovk.
func (b *Builder) AddSaplingOutput(ovk OutgoingViewingKey,
	to *PaymentAddress, value btcutil.Amount, memo *Memo) error {

	if value < 0 {
		return fmt.Errorf("negative output value %d", value)
	}
	o := outputInfo{
		ovk:     ovk,
		to:      *to,
		value:   uint64(value),
		memo:    EmptyMemo,
		logical: len(b.outputs),
	}
	if memo != nil {
		o.memo = *memo
	}
	b.outputs = append(b.outputs, o)
	return nil
}

// MultiSignResult is a proved transaction whose spend authorization
// signatures are left empty.
type MultiSignResult struct {
	Tx      *Transaction
	SigHash [32]byte

	// SpendIndices[i] is the position in Tx.Spends of the i-th spend
	// added to the builder.
	SpendIndices []int

	// OutputIndices[i] is the position in Tx.Outputs of the i-th output
	// added to the builder.
	OutputIndices []int
}

// Build returns a fully proved and signed transaction. All spends must have
// been added with AddSaplingSpend.
func (b *Builder) Build(prover *LocalTxProver) (*Transaction, error) {
	if b.multi != nil && *b.multi {
		return nil, ErrMixedModes
	}
	res, err := b.build(prover)
	if err != nil {
		return nil, err
	}

	for i, s := range b.spends {
		pos := res.SpendIndices[i]
		key := new(btcec.ModNScalar).Set(&s.extsk.Expsk.Ask)
		key.Add(&s.alpha)
		keyBytes := key.Bytes()
		priv, _ := btcec.PrivKeyFromBytes(keyBytes[:])
		key.Zero()

		sig, err := schnorr.Sign(priv, res.SigHash[:])
		priv.Zero()
		if err != nil {
			return nil, err
		}
		res.Tx.Spends[pos].SpendAuthSig = sig.Serialize()
	}

	return res.Tx, nil
}

// PrepareMultiSign returns a proved transaction without spend authorization
// signatures together with its sighash and the positions the spends and
// outputs were shuffled to.
func (b *Builder) PrepareMultiSign(prover *LocalTxProver) (*MultiSignResult,
	error) {

	if b.multi != nil && !*b.multi {
		return nil, ErrMixedModes
	}
	return b.build(prover)
}

func (b *Builder) build(prover *LocalTxProver) (*MultiSignResult, error) {
	if len(b.spends) == 0 {
		return nil, ErrNoSpends
	}

	var in, out uint64
	for _, s := range b.spends {
		in += s.note.Value
	}
	for _, o := range b.outputs {
		out += o.value
	}
	fee := uint64(b.fee)
	if in < out+fee {
		return nil, fmt.Errorf("%w: inputs %d, outputs %d, fee %d",
			ErrChangeIsNegative, in, out, fee)
	}

	// Change returns to the default address of the first spend.
	if change := in - out - fee; change > 0 {
		first := b.spends[0].efvk
		addr := first.DefaultAddress()
		err := b.AddSaplingOutput(
			first.Fvk.Ovk, &addr, btcutil.Amount(change), nil,
		)
		if err != nil {
			return nil, err
		}
	}

	spends, err := b.shuffledSpends()
	if err != nil {
		return nil, err
	}
	outputs, err := b.shuffledOutputs()
	if err != nil {
		return nil, err
	}

	res := &MultiSignResult{
		Tx: &Transaction{
			Version:      TxVersion,
			BranchID:     b.params.BranchID(b.height),
			ExpiryHeight: b.height + DefaultExpiryDelta,
			ValueBalance: int64(fee),
		},
		SpendIndices:  make([]int, len(spends)),
		OutputIndices: make([]int, len(outputs)),
	}

	// bsk = sum(rcv_spend) - sum(rcv_output)
	var bsk btcec.ModNScalar

	for pos, s := range spends {
		rcv, err := randScalar(b.rand)
		if err != nil {
			return nil, err
		}
		pgk := &ProofGenerationKey{Ak: s.efvk.Fvk.Ak, Nk: s.efvk.Fvk.Nk}
		sp, err := prover.ProveSpend(
			pgk, s.d, s.note.Rseed, s.note.Value, &s.alpha, rcv,
			s.anchor, s.path,
		)
		if err != nil {
			return nil, err
		}
		bsk.Add(rcv)

		res.Tx.Spends = append(res.Tx.Spends, SpendDescription{
			Cv:        sp.Cv.SerializeCompressed(),
			Anchor:    s.anchor,
			Nullifier: sp.Nullifier,
			Rk:        sp.Rk.SerializeCompressed(),
			ZKProof:   sp.Proof,
		})
		res.SpendIndices[s.logical] = pos
	}

	for pos, o := range outputs {
		desc, rcv, err := b.buildOutput(prover, &o)
		if err != nil {
			return nil, err
		}
		bsk.Add(new(btcec.ModNScalar).NegateVal(rcv))

		res.Tx.Outputs = append(res.Tx.Outputs, *desc)
		res.OutputIndices[o.logical] = pos
	}

	res.SigHash, err = res.Tx.SigHash()
	if err != nil {
		return nil, err
	}

	bskBytes := bsk.Bytes()
	bskPriv, _ := btcec.PrivKeyFromBytes(bskBytes[:])
	bsk.Zero()
	bindingSig, err := schnorr.Sign(bskPriv, res.SigHash[:])
	bskPriv.Zero()
	if err != nil {
		return nil, err
	}
	res.Tx.BindingSig = bindingSig.Serialize()

	log.Debugf("Built transaction with %d spends and %d outputs",
		len(spends), len(outputs))

	return res, nil
}

func (b *Builder) buildOutput(prover *LocalTxProver,
	o *outputInfo) (*OutputDescription, *btcec.ModNScalar, error) {

	rseed := Rseed{AfterZIP212: b.params.IsZIP212Active(b.height)}
	var esk *btcec.ModNScalar
	if rseed.AfterZIP212 {
		if _, err := io.ReadFull(b.rand, rseed.Bytes[:]); err != nil {
			return nil, nil, err
		}
		e, _ := rseed.Esk()
		esk = &e
	} else {
		rcm, err := randScalar(b.rand)
		if err != nil {
			return nil, nil, err
		}
		rseed.Bytes = rcm.Bytes()
		if esk, err = randScalar(b.rand); err != nil {
			return nil, nil, err
		}
	}

	note := NewNote(&o.to, o.value, rseed)

	hd := gd(note.Diversifier)
	hd.Mul(esk)
	epk := scalarBase(&hd)

	rcv, err := randScalar(b.rand)
	if err != nil {
		return nil, nil, err
	}
	proof, cv := prover.ProveOutput(note, epk, rcv)

	enc, err := encryptNote(note, esk, &o.memo, o.ovk, cv.SerializeCompressed())
	if err != nil {
		return nil, nil, err
	}
	esk.Zero()

	return &OutputDescription{
		Cv:            cv.SerializeCompressed(),
		Cmu:           note.Cmu(),
		Epk:           enc.epk.SerializeCompressed(),
		EncCiphertext: enc.encCiphertext,
		OutCiphertext: enc.outCiphertext,
		ZKProof:       proof,
	}, rcv, nil
}

// BuildOutput creates a standalone output description paying value to addr,
// as used by shielded coinbase outputs. Its value commitment is not covered
// by any binding signature.
func BuildOutput(params *netparams.Params, height uint32,
	prover *LocalTxProver, ovk OutgoingViewingKey, to *PaymentAddress,
	value btcutil.Amount, rand io.Reader) (*OutputDescription, error) {

	b := NewBuilder(params, height, rand)
	if err := b.AddSaplingOutput(ovk, to, value, nil); err != nil {
		return nil, err
	}
	desc, _, err := b.buildOutput(prover, &b.outputs[0])
	return desc, err
}

// shuffler returns a permutation source seeded from the builder's
// randomness.
func (b *Builder) shuffler() (*mrand.Rand, error) {
	var seed [32]byte
	if _, err := io.ReadFull(b.rand, seed[:]); err != nil {
		return nil, err
	}
	return mrand.New(mrand.NewChaCha8(seed)), nil
}

func (b *Builder) shuffledSpends() ([]spendInfo, error) {
	r, err := b.shuffler()
	if err != nil {
		return nil, err
	}
	s := append([]spendInfo(nil), b.spends...)
	r.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
	return s, nil
}

func (b *Builder) shuffledOutputs() ([]outputInfo, error) {
	r, err := b.shuffler()
	if err != nil {
		return nil, err
	}
	o := append([]outputInfo(nil), b.outputs...)
	r.Shuffle(len(o), func(i, j int) { o[i], o[j] = o[j], o[i] })
	return o, nil
}

// randScalar reads a uniformly random non-zero scalar.
func randScalar(rand io.Reader) (*btcec.ModNScalar, error) {
	var buf [32]byte
	for {
		if _, err := io.ReadFull(rand, buf[:]); err != nil {
			return nil, err
		}
		var s btcec.ModNScalar
		if s.SetBytes(&buf) == 0 && !s.IsZero() {
			return &s, nil
		}
	}
}
