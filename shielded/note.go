// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package shielded

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var (
	tagNoteCommit = []byte("Zcash_NoteCommit")
	tagNullifier  = []byte("Zcash_nf")
)

// Rseed is the randomness of a note. Notes created after ZIP-212 activation
// carry a seed from which both the commitment trapdoor and the ephemeral key
// are derived; earlier notes carry the commitment trapdoor itself.
type Rseed struct {
	Bytes       [32]byte
	AfterZIP212 bool
}

// Rcm returns the note commitment trapdoor.
func (r *Rseed) Rcm() btcec.ModNScalar {
	if !r.AfterZIP212 {
		return toScalar(r.Bytes[:])
	}
	b := prfExpand(r.Bytes[:], domainRcm)
	return toScalar(b[:])
}

// Esk returns the ephemeral secret key derived from a post ZIP-212 seed. It
// is not defined for earlier notes.
func (r *Rseed) Esk() (btcec.ModNScalar, bool) {
	if !r.AfterZIP212 {
		return btcec.ModNScalar{}, false
	}
	b := prfExpand(r.Bytes[:], domainEsk)
	return toScalar(b[:]), true
}

// Note is a shielded note: a value paid to an address.
type Note struct {
	Value       uint64
	Diversifier Diversifier
	PkD         *btcec.PublicKey
	Rseed       Rseed
}

// NewNote returns a note of value paid to addr.
func NewNote(addr *PaymentAddress, value uint64, rseed Rseed) *Note {
	return &Note{
		Value:       value,
		Diversifier: addr.Diversifier,
		PkD:         addr.PkD,
		Rseed:       rseed,
	}
}

// Address returns the address the note pays to.
func (n *Note) Address() PaymentAddress {
	return PaymentAddress{Diversifier: n.Diversifier, PkD: n.PkD}
}

// Cmu returns the note commitment, the leaf appended to the commitment
// tree.
func (n *Note) Cmu() Node {
	var value [8]byte
	binary.LittleEndian.PutUint64(value[:], n.Value)
	rcm := n.Rseed.Rcm()
	rcmBytes := rcm.Bytes()

	h := chainhash.TaggedHash(
		tagNoteCommit, n.Diversifier[:], n.PkD.SerializeCompressed(),
		value[:], rcmBytes[:],
	)
	return Node(*h)
}

// Nullifier returns the nullifier revealed when the note at position is
// spent with the nullifier deriving key nk.
func (n *Note) Nullifier(nk *btcec.PublicKey, position uint64) [32]byte {
	cm := n.Cmu()
	var pos [8]byte
	binary.LittleEndian.PutUint64(pos[:], position)

	h := chainhash.TaggedHash(
		tagNullifier, nk.SerializeCompressed(), cm[:], pos[:],
	)
	return [32]byte(*h)
}
