// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"
	"github.com/zcoldwallet/zcoldwallet/frost"
	"github.com/zcoldwallet/zcoldwallet/shielded"
)

// The threshold path runs in rounds. Each round is a function from public
// artifacts and the caller's private state to new artifacts, so the rounds
// can run on different machines exchanging files:
//
//  1. every signer runs MakeCommitments on its copy of the proposal and
//     keeps the returned nonces
//  2. a coordinator merges the copies with MergeCommitments and proves the
//     transaction with PreMultiSign
//  3. every signer that committed runs MultiSignOne with its nonces and
//     its signing ledger
//  4. an aggregator runs Combine on the signature shares

var (
	// ErrSessionMismatch is returned when artifacts of different signing
	// sessions are combined.
	ErrSessionMismatch = errors.New("artifacts belong to different " +
		"signing sessions")

	// ErrProposalMismatch is returned when merging copies of different
	// proposals.
	ErrProposalMismatch = errors.New("transactions differ outside of " +
		"their commitments")

	// ErrConflictingCommitment is returned when a signer published two
	// different commitments for the same input.
	ErrConflictingCommitment = errors.New("conflicting commitments from " +
		"the same signer")

	// ErrAlreadyCommitted is returned when a signer commits twice to the
	// same proposal.
	ErrAlreadyCommitted = errors.New("signer already committed")

	// ErrNoCommitments is returned when proving an input nobody committed
	// to.
	ErrNoCommitments = errors.New("input has no commitments")

	// ErrShareCount is returned when an artifact does not carry one entry
	// per input.
	ErrShareCount = errors.New("wrong number of entries for the inputs")

	// ErrRkMismatch is returned when the commitments of an input do not
	// rerandomize the group key to the key the input was proved with.
	ErrRkMismatch = errors.New("rerandomized key does not match the " +
		"proved spend")

	// ErrNonceReuse is returned when a signer's nonces for a session are
	// asked to sign a second, different signature hash.
	ErrNonceReuse = errors.New("session already signed a different " +
		"transaction")

	// ErrNoLedger is returned when signing without a signing ledger.
	ErrNoLedger = errors.New("signing ledger is required")

	// ErrSignerMismatch is returned when an artifact belongs to another
	// signer.
	ErrSignerMismatch = errors.New("artifact belongs to another signer")
)

// nonceContext binds the nonces of an input to its signing session.
func nonceContext(tx *Tx, input int) []byte {
	var b [20]byte
	copy(b[:16], tx.Session[:])
	binary.BigEndian.PutUint32(b[16:], uint32(input))
	return b[:]
}

// copyTx returns a copy of tx whose commitment lists can be modified.
func copyTx(tx *Tx) *Tx {
	c := *tx
	c.Inputs = make([]TxIn, len(tx.Inputs))
	for i, in := range tx.Inputs {
		c.Inputs[i] = in
		c.Inputs[i].Multisigs = append(
			[]SigningShare{}, in.Multisigs...,
		)
	}
	if tx.Output != nil {
		out := *tx.Output
		c.Output = &out
	}
	return &c
}

// MakeCommitments is the first round. It generates fresh nonces for every
// input of the proposal and returns a copy carrying the signer's public
// commitments. The nonces are secret and bound to the proposal's session.
func MakeCommitments(cfg *Config, share *frost.SecretShare,
	tx *Tx) (*Tx, *SignerNonces, error) {

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if err := share.Verify(); err != nil {
		return nil, nil, &DecodeError{What: "secret share",
			Input: fmt.Sprint(share.Index), Err: err}
	}

	out := copyTx(tx)
	nonces := &SignerNonces{
		Session: tx.Session,
		Index:   share.Index,
		Nonces:  make([]*frost.SigningNonces, 0, len(tx.Inputs)),
	}
	for i := range out.Inputs {
		in := &out.Inputs[i]
		for _, m := range in.Multisigs {
			if m.Index == share.Index {
				return nil, nil, &TxParseError{
					Artifact: "transaction",
					Err: fmt.Errorf("%w: signer %d, "+
						"input %d", ErrAlreadyCommitted,
						share.Index, i),
				}
			}
		}

		n, c, err := frost.Preprocess(share, nonceContext(tx, i),
			cfg.Rand)
		if err != nil {
			return nil, nil, err
		}
		nonces.Nonces = append(nonces.Nonces, n)
		in.Multisigs = append(in.Multisigs, SigningShare{
			Index:      share.Index,
			Commitment: *c,
		})
	}

	log.Infof("Signer %d committed to %d %s", share.Index,
		len(out.Inputs), pickNoun(len(out.Inputs), "input", "inputs"))

	return out, nonces, nil
}

// sameInput reports whether two inputs spend the same note.
func sameInput(a, b *TxIn) bool {
	return a.Diversifier == b.Diversifier && a.FVK == b.FVK &&
		a.Amount == b.Amount && a.Z212 == b.Z212 &&
		a.Rseed == b.Rseed && a.Witness == b.Witness
}

// sameProposal reports whether two copies only differ by commitments.
func sameProposal(a, b *Tx) bool {
	if a.Height != b.Height || a.Session != b.Session ||
		len(a.Inputs) != len(b.Inputs) {

		return false
	}
	if (a.Output == nil) != (b.Output == nil) {
		return false
	}
	if a.Output != nil && *a.Output != *b.Output {
		return false
	}
	for i := range a.Inputs {
		if !sameInput(&a.Inputs[i], &b.Inputs[i]) {
			return false
		}
	}
	return true
}

// MergeCommitments unions the commitments of the copies of a proposal. The
// copies must be identical apart from their commitments. Commitments are
// identified by signer index and sorted by it.
func MergeCommitments(txs ...*Tx) (*Tx, error) {
	if len(txs) == 0 {
		return nil, &TxParseError{Artifact: "transaction",
			Err: errors.New("nothing to merge")}
	}

	merged := copyTx(txs[0])
	for _, tx := range txs[1:] {
		if !sameProposal(merged, tx) {
			return nil, &TxParseError{Artifact: "transaction",
				Err: ErrProposalMismatch}
		}
	}

	for i := range merged.Inputs {
		byIndex := make(map[uint32]SigningShare)
		for _, tx := range txs {
			for _, m := range tx.Inputs[i].Multisigs {
				prev, ok := byIndex[m.Index]
				if ok && !prev.Commitment.Equal(&m.Commitment) {
					return nil, &TxParseError{
						Artifact: "transaction",
						Err: fmt.Errorf("%w: signer "+
							"%d, input %d",
							ErrConflictingCommitment,
							m.Index, i),
					}
				}
				byIndex[m.Index] = m
			}
		}

		shares := make([]SigningShare, 0, len(byIndex))
		for _, m := range byIndex {
			shares = append(shares, m)
		}
		sort.Slice(shares, func(a, b int) bool {
			return shares[a].Index < shares[b].Index
		})
		merged.Inputs[i].Multisigs = shares
	}

	return merged, nil
}

// commitments returns the commitment set of an input.
func (in *TxIn) commitments() []frost.SigningCommitments {
	c := make([]frost.SigningCommitments, 0, len(in.Multisigs))
	for _, m := range in.Multisigs {
		c = append(c, m.Commitment)
	}
	return c
}

// PreMultiSign is the second round. It proves the merged proposal with
// every spend rerandomized by its commitment set and returns the proved
// transaction without spend authorization signatures. No secret is needed.
func PreMultiSign(cfg *Config, tx *Tx) (*TxBin, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	params := cfg.Params

	if tx.Output == nil {
		return nil, &TxParseError{Artifact: "transaction", Err: errNoOutput}
	}

	prover, err := cfg.prover()
	if err != nil {
		return nil, err
	}

	builder := shielded.NewBuilder(params, tx.Height, cfg.Rand)
	builder.SetFee(cfg.Fee)

	commitments := make([][]frost.SigningCommitments, len(tx.Inputs))
	for i := range tx.Inputs {
		in := &tx.Inputs[i]
		if len(in.Multisigs) == 0 {
			return nil, &TxParseError{Artifact: "transaction",
				Err: fmt.Errorf("%w: input %d",
					ErrNoCommitments, i)}
		}
		commitments[i] = in.commitments()

		alpha, err := frost.Randomizer(commitments[i])
		if err != nil {
			return nil, &TxParseError{Artifact: "transaction",
				Err: fmt.Errorf("input %d: %w", i, err)}
		}

		s, err := in.decode(params)
		if err != nil {
			return nil, err
		}
		err = builder.AddSaplingSpendMulti(s.efvk, alpha, s.d, s.note,
			s.path)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}

	to, value, ovk, err := tx.Output.decode(params)
	if err != nil {
		return nil, err
	}
	if err := builder.AddSaplingOutput(ovk, to, value, nil); err != nil {
		return nil, err
	}

	res, err := builder.PrepareMultiSign(prover)
	if err != nil {
		return nil, err
	}
	raw, err := res.Tx.Bytes()
	if err != nil {
		return nil, err
	}

	log.Infof("Proved transaction with %d %s for threshold signing",
		len(tx.Inputs), pickNoun(len(tx.Inputs), "spend", "spends"))

	return &TxBin{
		Session:       tx.Session,
		Bytes:         hex.EncodeToString(raw),
		SigHash:       hex.EncodeToString(res.SigHash[:]),
		Commitments:   commitments,
		SpendIndices:  res.SpendIndices,
		OutputIndices: res.OutputIndices,
	}, nil
}

// sigHash decodes the signature hash of the proved transaction.
func (b *TxBin) sigHash() ([]byte, error) {
	var h [32]byte
	if err := decodeHex("sighash", b.SigHash, h[:]); err != nil {
		return nil, &TxParseError{Artifact: "txbin", Err: err}
	}
	return h[:], nil
}

// MultiSignOne is the third round. It signs every input of the proved
// transaction with the signer's share and the nonces of its first round
// commitments. The nonces are consumed and can never sign again, and the
// ledger refuses any session that already signed a different signature
// hash. The session is recorded in the ledger before signing starts, so
// the caller must persist the ledger before publishing the shares.
func MultiSignOne(bin *TxBin, nonces *SignerNonces, share *frost.SecretShare,
	ledger *SigningLedger) (*SignatureShares, error) {

	if ledger == nil {
		return nil, ErrNoLedger
	}
	if nonces.Consumed() {
		return nil, frost.ErrNoncesConsumed
	}
	if nonces.Session != bin.Session {
		return nil, &TxParseError{Artifact: "nonces",
			Err: ErrSessionMismatch}
	}
	if nonces.Index != share.Index {
		return nil, &TxParseError{Artifact: "nonces",
			Err: frost.ErrNonceMismatch}
	}
	if len(nonces.Nonces) != len(bin.Commitments) {
		return nil, &TxParseError{Artifact: "nonces",
			Err: ErrShareCount}
	}
	if ledger.Index != share.Index {
		return nil, &TxParseError{Artifact: "signing ledger",
			Err: ErrSignerMismatch}
	}

	msg, err := bin.sigHash()
	if err != nil {
		return nil, err
	}

	// The same nonces over the same signature hash give the same shares.
	// Over any other hash they would leak the secret share.
	sigHash := hex.EncodeToString(msg)
	if signed, ok := ledger.Signed[bin.Session]; ok && signed != sigHash {
		return nil, ErrNonceReuse
	}
	if ledger.Signed == nil {
		ledger.Signed = make(map[uuid.UUID]string)
	}
	ledger.Signed[bin.Session] = sigHash

	shares := &SignatureShares{
		Session: bin.Session,
		Index:   share.Index,
		Shares:  make([]frost.SignatureShare, 0, len(bin.Commitments)),
	}
	for i, comms := range bin.Commitments {
		pkg := &frost.SigningPackage{Commitments: comms, Message: msg}
		sig, err := frost.Sign(share, nonces.Nonces[i], pkg)
		if err != nil {
			// Signing stopped halfway, so none of the nonces
			// may be used again.
			for _, n := range nonces.Nonces {
				n.Zero()
			}
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		shares.Shares = append(shares.Shares, *sig)
	}

	log.Infof("Signer %d signed %d %s", share.Index, len(shares.Shares),
		pickNoun(len(shares.Shares), "input", "inputs"))

	return shares, nil
}

// Combine is the last round. It aggregates the signature shares of every
// input, verifies the result against the input's rerandomized key and
// injects it into the proved transaction. Nothing is returned unless every
// input verifies.
func Combine(bin *TxBin, pub *frost.PublicKeyPackage,
	shares []*SignatureShares) ([]byte, error) {

	msg, err := bin.sigHash()
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(bin.Bytes)
	if err != nil {
		return nil, &TxParseError{Artifact: "txbin", Err: err}
	}
	tx, err := shielded.ParseTransaction(raw)
	if err != nil {
		return nil, &TxParseError{Artifact: "txbin", Err: err}
	}
	if len(bin.SpendIndices) != len(bin.Commitments) ||
		len(tx.Spends) != len(bin.Commitments) {

		return nil, &TxParseError{Artifact: "txbin", Err: ErrShareCount}
	}

	signers := make([]uint32, 0, len(shares))
	for _, s := range shares {
		if s.Session != bin.Session {
			return nil, &TxParseError{Artifact: "signature shares",
				Err: ErrSessionMismatch}
		}
		if len(s.Shares) != len(bin.Commitments) {
			return nil, &TxParseError{Artifact: "signature shares",
				Err: ErrShareCount}
		}
		signers = append(signers, s.Index)
	}

	for i, comms := range bin.Commitments {
		fail := func(err error) error {
			return &AggregationError{Input: i, Signers: signers,
				Err: err}
		}

		pos := bin.SpendIndices[i]
		if pos < 0 || pos >= len(tx.Spends) {
			return nil, &TxParseError{Artifact: "txbin",
				Err: fmt.Errorf("spend index %d out of range",
					pos)}
		}

		rk, err := frost.RerandomizedKey(comms, pub.GroupPublic)
		if err != nil {
			return nil, fail(err)
		}
		if !bytes.Equal(rk.SerializeCompressed(), tx.Spends[pos].Rk) {
			return nil, fail(ErrRkMismatch)
		}

		inputShares := make([]frost.SignatureShare, 0, len(shares))
		for _, s := range shares {
			inputShares = append(inputShares, s.Shares[i])
		}

		pkg := &frost.SigningPackage{Commitments: comms, Message: msg}
		sig, err := frost.Aggregate(pkg, pub, inputShares)
		if err != nil {
			return nil, fail(err)
		}
		tx.Spends[pos].SpendAuthSig = sig.Serialize()
	}

	signed, err := tx.Bytes()
	if err != nil {
		return nil, err
	}

	log.Infof("Aggregated signatures of %d %s from signers %v",
		len(bin.Commitments), pickNoun(len(bin.Commitments), "input",
			"inputs"), signers)

	return signed, nil
}

// MultisigGen runs the dealer ceremony of a t-of-n group and derives the
// group's viewing key and default address. The secret shares must each be
// handed to exactly one signer.
func MultisigGen(cfg *Config, n, t int) (*GroupKey, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	params := cfg.Params

	shares, pub, err := frost.KeygenWithDealer(n, t, cfg.Rand)
	if err != nil {
		return nil, err
	}

	var seed [32]byte
	if _, err := io.ReadFull(cfg.Rand, seed[:]); err != nil {
		return nil, err
	}
	efvk := shielded.NewGroupViewingKey(pub.GroupPublic, seed[:])
	clear(seed[:])

	vk, err := shielded.EncodeExtendedFullViewingKey(
		params.HRPSaplingExtendedFullViewingKey, efvk,
	)
	if err != nil {
		return nil, err
	}
	addr := efvk.DefaultAddress()
	encoded, err := shielded.EncodePaymentAddress(
		params.HRPSaplingPaymentAddress, &addr,
	)
	if err != nil {
		return nil, err
	}

	log.Infof("Generated %d-of-%d group key", t, n)

	return &GroupKey{
		Shares:     shares,
		PublicKeys: pub,
		ViewingKey: vk,
		Address:    encoded,
	}, nil
}
