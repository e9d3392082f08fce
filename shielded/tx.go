// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package shielded

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/fxamacker/cbor/v2"
)

// TxVersion is the only transaction version produced and accepted.
const TxVersion = 5

var personalSigHash = "ZcashSigHash"

// encMode serializes transactions deterministically so that the sighash
// and the txid are stable.
var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// SpendDescription spends a note.
type SpendDescription struct {
	_ struct{} `cbor:",toarray"`

	Cv           []byte
	Anchor       Node
	Nullifier    [32]byte
	Rk           []byte
	ZKProof      []byte
	SpendAuthSig []byte
}

// OutputDescription creates a note.
type OutputDescription struct {
	_ struct{} `cbor:",toarray"`

	Cv            []byte
	Cmu           Node
	Epk           []byte
	EncCiphertext []byte
	OutCiphertext []byte
	ZKProof       []byte
}

// Transaction is a fully shielded transaction.
type Transaction struct {
	_ struct{} `cbor:",toarray"`

	Version      uint32
	BranchID     uint32
	ExpiryHeight uint32

	// ValueBalance is the net value leaving the shielded pool, which is
	// the fee for a fully shielded transaction.
	ValueBalance int64

	Spends     []SpendDescription
	Outputs    []OutputDescription
	BindingSig []byte
}

// Bytes returns the raw transaction.
func (tx *Transaction) Bytes() ([]byte, error) {
	return encMode.Marshal(tx)
}

// ParseTransaction parses a raw transaction.
func ParseTransaction(b []byte) (*Transaction, error) {
	var tx Transaction
	if err := cbor.Unmarshal(b, &tx); err != nil {
		return nil, fmt.Errorf("malformed transaction: %w", err)
	}
	if tx.Version != TxVersion {
		return nil, fmt.Errorf("unsupported transaction version %d",
			tx.Version)
	}
	return &tx, nil
}

// TxHash returns the transaction id.
func (tx *Transaction) TxHash() (chainhash.Hash, error) {
	b, err := tx.Bytes()
	if err != nil {
		return chainhash.Hash{}, err
	}
	return chainhash.DoubleHashH(b), nil
}

// SigHash returns the digest signed by spend authorization and binding
// signatures: the transaction with every signature cleared, keyed by the
// consensus branch.
func (tx *Transaction) SigHash() ([32]byte, error) {
	stripped := *tx
	stripped.BindingSig = nil
	stripped.Spends = make([]SpendDescription, len(tx.Spends))
	for i, s := range tx.Spends {
		s.SpendAuthSig = nil
		stripped.Spends[i] = s
	}

	b, err := encMode.Marshal(&stripped)
	if err != nil {
		return [32]byte{}, err
	}

	key := make([]byte, 0, 16)
	key = append(key, personalSigHash...)
	key = binary.LittleEndian.AppendUint32(key, tx.BranchID)

	return keyedHash256(key, b), nil
}
