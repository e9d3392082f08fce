// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package shielded

import (
	"encoding/binary"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/zcoldwallet/zcoldwallet/netparams"
)

const (
	// MemoLen is the length of the memo field of a note plaintext.
	MemoLen = 512

	// NotePlaintextLen is the length of a note plaintext.
	NotePlaintextLen = 1 + DiversifierLen + 8 + 32 + MemoLen

	// EncCiphertextLen is the length of an encrypted note.
	EncCiphertextLen = NotePlaintextLen + chacha20poly1305.Overhead

	// CompactCiphertextLen is the prefix of the encrypted note carried in
	// compact blocks: lead byte, diversifier, value and rseed.
	CompactCiphertextLen = 1 + DiversifierLen + 8 + 32

	// OutPlaintextLen is the length of the outgoing plaintext: pk_d and
	// esk.
	OutPlaintextLen = 33 + 32

	// OutCiphertextLen is the length of the encrypted outgoing plaintext.
	OutCiphertextLen = OutPlaintextLen + chacha20poly1305.Overhead

	leadBytePreZIP212  = 0x01
	leadBytePostZIP212 = 0x02

	// zip212GracePeriod is the number of blocks after Canopy activation
	// during which pre ZIP-212 plaintexts are still accepted.
	zip212GracePeriod = 32256
)

var (
	personalKDF = []byte("Zcash_SaplingKDF")
	personalOCK = []byte("Zcash_Derive_ock")
)

// ErrDecryptFailed is returned when a ciphertext cannot be opened.
var ErrDecryptFailed = errors.New("note decryption failed")

// Memo is the memo field of a note.
type Memo [MemoLen]byte

// EmptyMemo is the memo of a note without a message.
var EmptyMemo = Memo{0xf6}

// kdf derives the symmetric key of a note from the shared secret.
func kdf(shared, epk *btcec.PublicKey) []byte {
	k := keyedHash256(
		personalKDF, shared.SerializeCompressed(),
		epk.SerializeCompressed(),
	)
	return k[:]
}

// ock derives the key of the outgoing ciphertext.
func ock(ovk OutgoingViewingKey, cv []byte, cmu Node,
	epk *btcec.PublicKey) []byte {

	k := keyedHash256(
		personalOCK, ovk[:], cv, cmu[:], epk.SerializeCompressed(),
	)
	return k[:]
}

var zeroNonce [chacha20poly1305.NonceSize]byte

// encryptedNote is the result of encrypting a note to its recipient.
type encryptedNote struct {
	epk           *btcec.PublicKey
	encCiphertext []byte
	outCiphertext []byte
}

// encryptNote encrypts a note for its recipient and for the sender's
// outgoing viewing key.
func encryptNote(note *Note, esk *btcec.ModNScalar, memo *Memo,
	ovk OutgoingViewingKey, cv []byte) (*encryptedNote, error) {

	hd := gd(note.Diversifier)
	epkScalar := new(btcec.ModNScalar).Set(&hd)
	epkScalar.Mul(esk)
	epk := scalarBase(epkScalar)
	shared := scalarMult(esk, note.PkD)

	pt := make([]byte, 0, NotePlaintextLen)
	if note.Rseed.AfterZIP212 {
		pt = append(pt, leadBytePostZIP212)
	} else {
		pt = append(pt, leadBytePreZIP212)
	}
	pt = append(pt, note.Diversifier[:]...)
	pt = binary.LittleEndian.AppendUint64(pt, note.Value)
	pt = append(pt, note.Rseed.Bytes[:]...)
	pt = append(pt, memo[:]...)

	aead, err := chacha20poly1305.New(kdf(shared, epk))
	if err != nil {
		return nil, err
	}
	enc := aead.Seal(nil, zeroNonce[:], pt, nil)

	eskBytes := esk.Bytes()
	out := make([]byte, 0, OutPlaintextLen)
	out = append(out, note.PkD.SerializeCompressed()...)
	out = append(out, eskBytes[:]...)

	outAead, err := chacha20poly1305.New(ock(ovk, cv, note.Cmu(), epk))
	if err != nil {
		return nil, err
	}
	outCt := outAead.Seal(nil, zeroNonce[:], out, nil)

	return &encryptedNote{
		epk:           epk,
		encCiphertext: enc,
		outCiphertext: outCt,
	}, nil
}

// checkLeadByte reports whether a plaintext lead byte is acceptable at the
// passed height.
func checkLeadByte(params *netparams.Params, height uint32, lead byte) bool {
	switch lead {
	case leadBytePreZIP212:
		return height < params.CanopyActivationHeight+zip212GracePeriod
	case leadBytePostZIP212:
		return params.IsZIP212Active(height)
	default:
		return false
	}
}

// TryCompactNoteDecryption attempts to decrypt a compact output with the
// incoming viewing key ivk. It returns the note and true when the output is
// addressed to ivk.
func TryCompactNoteDecryption(params *netparams.Params, height uint32,
	ivk *btcec.ModNScalar, epk *btcec.PublicKey, cmu Node,
	ciphertext []byte) (*Note, bool) {

	if len(ciphertext) < CompactCiphertextLen {
		return nil, false
	}

	shared := scalarMult(ivk, epk)
	c, err := chacha20.NewUnauthenticatedCipher(
		kdf(shared, epk), zeroNonce[:],
	)
	if err != nil {
		return nil, false
	}

	// The AEAD reserves the first block for the authenticator key.
	c.SetCounter(1)
	pt := make([]byte, CompactCiphertextLen)
	c.XORKeyStream(pt, ciphertext[:CompactCiphertextLen])

	return parsePlaintext(params, height, ivk, epk, cmu, pt)
}

// TryNoteDecryption attempts to decrypt a full encrypted note, returning the
// memo as well.
func TryNoteDecryption(params *netparams.Params, height uint32,
	ivk *btcec.ModNScalar, epk *btcec.PublicKey, cmu Node,
	encCiphertext []byte) (*Note, *Memo, bool) {

	if len(encCiphertext) != EncCiphertextLen {
		return nil, nil, false
	}

	shared := scalarMult(ivk, epk)
	aead, err := chacha20poly1305.New(kdf(shared, epk))
	if err != nil {
		return nil, nil, false
	}
	pt, err := aead.Open(nil, zeroNonce[:], encCiphertext, nil)
	if err != nil {
		return nil, nil, false
	}

	note, ok := parsePlaintext(params, height, ivk, epk, cmu, pt)
	if !ok {
		return nil, nil, false
	}
	var memo Memo
	copy(memo[:], pt[CompactCiphertextLen:])
	return note, &memo, true
}

// parsePlaintext rebuilds the note from a decrypted plaintext and checks it
// against the public commitment and ephemeral key.
func parsePlaintext(params *netparams.Params, height uint32,
	ivk *btcec.ModNScalar, epk *btcec.PublicKey, cmu Node,
	pt []byte) (*Note, bool) {

	if !checkLeadByte(params, height, pt[0]) {
		return nil, false
	}

	note := &Note{}
	copy(note.Diversifier[:], pt[1:1+DiversifierLen])
	note.Value = binary.LittleEndian.Uint64(pt[12:20])
	copy(note.Rseed.Bytes[:], pt[20:52])
	note.Rseed.AfterZIP212 = pt[0] == leadBytePostZIP212
	note.PkD = pkD(ivk, note.Diversifier)

	if note.Cmu() != cmu {
		return nil, false
	}

	// Post ZIP-212 the ephemeral key is bound to the note.
	if esk, ok := note.Rseed.Esk(); ok {
		hd := gd(note.Diversifier)
		hd.Mul(&esk)
		if !scalarBase(&hd).IsEqual(epk) {
			return nil, false
		}
	}

	return note, true
}

// RecoverOutput decrypts an output with the sender's outgoing viewing key.
func RecoverOutput(params *netparams.Params, height uint32,
	ovk OutgoingViewingKey, out *OutputDescription) (*Note, *Memo, bool) {

	epk, err := btcec.ParsePubKey(out.Epk)
	if err != nil {
		return nil, nil, false
	}
	aead, err := chacha20poly1305.New(ock(ovk, out.Cv, out.Cmu, epk))
	if err != nil {
		return nil, nil, false
	}
	op, err := aead.Open(nil, zeroNonce[:], out.OutCiphertext, nil)
	if err != nil || len(op) != OutPlaintextLen {
		return nil, nil, false
	}
	pk, err := btcec.ParsePubKey(op[:33])
	if err != nil {
		return nil, nil, false
	}
	var esk btcec.ModNScalar
	if esk.SetByteSlice(op[33:]) {
		return nil, nil, false
	}

	shared := scalarMult(&esk, pk)
	encAead, err := chacha20poly1305.New(kdf(shared, epk))
	if err != nil {
		return nil, nil, false
	}
	pt, err := encAead.Open(nil, zeroNonce[:], out.EncCiphertext, nil)
	if err != nil || !checkLeadByte(params, height, pt[0]) {
		return nil, nil, false
	}

	note := &Note{PkD: pk}
	copy(note.Diversifier[:], pt[1:1+DiversifierLen])
	note.Value = binary.LittleEndian.Uint64(pt[12:20])
	copy(note.Rseed.Bytes[:], pt[20:52])
	note.Rseed.AfterZIP212 = pt[0] == leadBytePostZIP212
	if note.Cmu() != out.Cmu {
		return nil, nil, false
	}

	var memo Memo
	copy(memo[:], pt[CompactCiphertextLen:])
	return note, &memo, true
}
