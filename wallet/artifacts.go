// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
	"github.com/zcoldwallet/zcoldwallet/frost"
	"github.com/zcoldwallet/zcoldwallet/netparams"
	"github.com/zcoldwallet/zcoldwallet/shielded"
)

// The artifacts below are exchanged between the online and offline devices
// and between the participants of a threshold signing session. They are
// plain JSON and carry no secrets except SignerNonces.

// Tx is an unsigned transaction proposal. It names the notes to spend and
// the payment to make, and carries no proofs or signatures.
type Tx struct {
	// Height is the height the transaction targets.
	Height uint32 `json:"height"`

	// Session identifies the signing attempt. Threshold nonces are bound
	// to it.
	Session uuid.UUID `json:"session"`

	Inputs []TxIn `json:"inputs"`
	Output *TxOut `json:"output"`
}

// TxIn is a note to spend.
type TxIn struct {
	Diversifier string `json:"diversifier"`

	// FVK is the encoded extended full viewing key that received the
	// note.
	FVK string `json:"fvk"`

	Amount uint64 `json:"amount"`

	// Z212 is set for notes that use the post ZIP-212 rseed format.
	Z212 bool `json:"z212"`

	Rseed string `json:"rseed"`

	// Witness is the hex serialized incremental witness of the note at
	// the anchor height.
	Witness string `json:"witness"`

	// Multisigs collects the commitments of the threshold signers.
	Multisigs []SigningShare `json:"multisigs"`
}

// TxOut is the payment of a proposal.
type TxOut struct {
	Addr   string `json:"addr"`
	Amount uint64 `json:"amount"`

	// OVK is the hex outgoing viewing key the output is recoverable
	// with.
	OVK string `json:"ovk"`
}

// SigningShare is a signer's contribution to one input.
type SigningShare struct {
	Index      uint32                   `json:"index"`
	Commitment frost.SigningCommitments `json:"commitment"`
	Signature  *frost.SignatureShare    `json:"signature,omitempty"`
}

// TxBin is a proved transaction whose spend authorization signatures are
// missing, together with what the signers need to produce them.
type TxBin struct {
	Session uuid.UUID `json:"session"`

	// Bytes is the hex serialized transaction.
	Bytes string `json:"bytes"`

	// SigHash is the hex signature hash every share signs.
	SigHash string `json:"sighash"`

	// Commitments[i] is the commitment set of the i-th input of the
	// proposal.
	Commitments [][]frost.SigningCommitments `json:"commitments"`

	// SpendIndices[i] is the position of the i-th input in the
	// transaction.
	SpendIndices []int `json:"spend_indices"`

	// OutputIndices[i] is the position of the i-th output in the
	// transaction. The payment is output 0 and change, if any, output 1.
	OutputIndices []int `json:"output_indices"`
}

// SignerNonces are the secret nonces one signer generated for every input
// of a session. They are never shared and are consumed by MultiSignOne.
type SignerNonces struct {
	Session uuid.UUID              `json:"session"`
	Index   uint32                 `json:"index"`
	Nonces  []*frost.SigningNonces `json:"nonces"`
}

// Consumed reports whether the nonces already produced signature shares.
func (n *SignerNonces) Consumed() bool {
	for _, nonce := range n.Nonces {
		if nonce.Consumed() {
			return true
		}
	}
	return false
}

// SignatureShares are the partial signatures of one signer, one per input.
type SignatureShares struct {
	Session uuid.UUID              `json:"session"`
	Index   uint32                 `json:"index"`
	Shares  []frost.SignatureShare `json:"shares"`
}

// SigningLedger is the signer's record of the signature hash it signed in
// each session. It is kept next to the secret share rather than with the
// nonces, so a stale copy of a nonces file cannot sign a second
// transaction.
type SigningLedger struct {
	Index  uint32               `json:"index"`
	Signed map[uuid.UUID]string `json:"signed"`
}

// NewSigningLedger returns an empty ledger for signer index.
func NewSigningLedger(index uint32) *SigningLedger {
	return &SigningLedger{
		Index:  index,
		Signed: make(map[uuid.UUID]string),
	}
}

// GeneratedKey is a freshly generated single-signer account.
type GeneratedKey struct {
	Mnemonic    string `json:"mnemonic"`
	SpendingKey string `json:"spending_key"`
	ViewingKey  string `json:"viewing_key"`
	Address     string `json:"address"`
}

// GroupKey is the outcome of a threshold key ceremony.
type GroupKey struct {
	// Shares[i] is the secret share of signer i+1. Each must be handed to
	// exactly one signer.
	Shares []*frost.SecretShare `json:"-"`

	PublicKeys *frost.PublicKeyPackage `json:"pubkeys"`
	ViewingKey string                  `json:"viewing_key"`
	Address    string                  `json:"address"`
}

// Checkpoint is the JSON form of a checkpoint, with the hash in display
// order.
type Checkpoint struct {
	Height      uint32 `json:"height"`
	Hash        string `json:"hash"`
	Time        uint32 `json:"time"`
	SaplingTree string `json:"sapling_tree"`
}

// NewCheckpoint returns the JSON form of cp.
func NewCheckpoint(cp *netparams.Checkpoint) *Checkpoint {
	hash := make([]byte, len(cp.Hash))
	for i, b := range cp.Hash {
		hash[len(hash)-1-i] = b
	}
	return &Checkpoint{
		Height:      cp.Height,
		Hash:        hex.EncodeToString(hash),
		Time:        cp.Time,
		SaplingTree: cp.SaplingTree,
	}
}

// Checkpoint converts back to the internal form.
func (c *Checkpoint) Checkpoint() (*netparams.Checkpoint, error) {
	hash, err := hex.DecodeString(c.Hash)
	if err != nil {
		return nil, &DecodeError{What: "block hash", Input: c.Hash,
			Err: err}
	}
	for i, j := 0, len(hash)-1; i < j; i, j = i+1, j-1 {
		hash[i], hash[j] = hash[j], hash[i]
	}
	return &netparams.Checkpoint{
		Height:      c.Height,
		Hash:        hash,
		Time:        c.Time,
		SaplingTree: c.SaplingTree,
	}, nil
}

// ParseArtifact decodes a JSON artifact into v. Failures are reported as a
// TxParseError naming the artifact.
func ParseArtifact(name string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &TxParseError{Artifact: name, Err: err}
	}
	return nil
}

// EncodeArtifact encodes v as a newline terminated JSON document.
func EncodeArtifact(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// errNoOutput is returned for a proposal without a payment.
var errNoOutput = errors.New("transaction has no output")

// spendInput is a decoded TxIn.
type spendInput struct {
	efvk *shielded.ExtendedFullViewingKey
	d    shielded.Diversifier
	note *shielded.Note
	path *shielded.MerklePath
}

// decodeHex decodes a fixed size hex field.
func decodeHex(what, s string, out []byte) error {
	b, err := hex.DecodeString(s)
	if err == nil && len(b) != len(out) {
		err = fmt.Errorf("expected %d bytes, got %d", len(out), len(b))
	}
	if err != nil {
		return &DecodeError{What: what, Input: s, Err: err}
	}
	copy(out, b)
	return nil
}

// decode rebuilds the note and merkle path of the input.
func (in *TxIn) decode(params *netparams.Params) (*spendInput, error) {
	efvk, err := shielded.DecodeExtendedFullViewingKey(
		params.HRPSaplingExtendedFullViewingKey, in.FVK,
	)
	if err != nil {
		return nil, &DecodeError{What: "viewing key", Input: in.FVK,
			Err: err}
	}

	var s spendInput
	s.efvk = efvk
	if err := decodeHex("diversifier", in.Diversifier, s.d[:]); err != nil {
		return nil, err
	}

	rseed := shielded.Rseed{AfterZIP212: in.Z212}
	if err := decodeHex("rseed", in.Rseed, rseed.Bytes[:]); err != nil {
		return nil, err
	}

	addr := efvk.Address(s.d)
	s.note = shielded.NewNote(&addr, in.Amount, rseed)

	w, err := hex.DecodeString(in.Witness)
	if err != nil {
		return nil, &DecodeError{What: "witness", Input: in.Witness,
			Err: err}
	}
	witness, err := shielded.ParseIncrementalWitness(w)
	if err != nil {
		return nil, &DecodeError{What: "witness", Input: in.Witness,
			Err: err}
	}
	if s.path, err = witness.Path(); err != nil {
		return nil, &DecodeError{What: "witness", Input: in.Witness,
			Err: err}
	}

	return &s, nil
}

// decode returns the destination, amount and outgoing viewing key of the
// payment.
func (out *TxOut) decode(params *netparams.Params) (*shielded.PaymentAddress,
	btcutil.Amount, shielded.OutgoingViewingKey, error) {

	var ovk shielded.OutgoingViewingKey
	to, err := shielded.DecodePaymentAddress(
		params.HRPSaplingPaymentAddress, out.Addr,
	)
	if err != nil {
		return nil, 0, ovk, &DecodeError{What: "address",
			Input: out.Addr, Err: err}
	}
	if err := decodeHex("outgoing viewing key", out.OVK, ovk[:]); err != nil {
		return nil, 0, ovk, err
	}
	return to, btcutil.Amount(out.Amount), ovk, nil
}
