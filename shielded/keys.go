// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package shielded implements the shielded pool the wallet operates on: key
// derivation and encoding, notes, the note commitment tree and witnesses,
// note encryption, transactions, the transaction builder and the prover.
//
// The pool mirrors the Sapling protocol structure over secp256k1. Spend
// authorization signatures are BIP-340 Schnorr signatures under a
// rerandomized key rk = ak + alpha*G, which is what allows a threshold group
// key to authorize spends.
package shielded

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/blake2b"
)

const (
	// HardenedKeyStart is the index of the first hardened child key.
	HardenedKeyStart = uint32(0x80000000)

	// ExtendedSpendingKeyLen is the length of a serialized extended
	// spending key.
	ExtendedSpendingKeyLen = 1 + 4 + 4 + 32 + 32 + 32 + 32 + 32

	// ExtendedFullViewingKeyLen is the length of a serialized extended
	// full viewing key.
	ExtendedFullViewingKeyLen = 1 + 4 + 4 + 32 + 33 + 33 + 32 + 32

	// DiversifierLen is the length of an address diversifier.
	DiversifierLen = 11
)

var (
	// ErrNonHardened is returned when deriving a non-hardened child of a
	// spending key, which this key tree does not support.
	ErrNonHardened = errors.New("only hardened derivation is supported")

	// ErrInvalidKeyLength is returned when decoding a key of the wrong
	// length.
	ErrInvalidKeyLength = errors.New("invalid key length")
)

var (
	personalMaster   = []byte("ZcashIP32Sapling")
	personalExpand   = []byte("Zcash_ExpandSeed")
	personalIvk      = []byte("Zcashivk")
	personalGd       = []byte("Zcash_gd")
	personalDiv      = []byte("Zcash_Diversify")
	personalFVKTag   = []byte("ZcashSaplingFVFP")
	domainAsk        = byte(0x00)
	domainNsk        = byte(0x01)
	domainOvk        = byte(0x02)
	domainDk         = byte(0x10)
	domainChild      = byte(0x11)
	domainChildAsk   = byte(0x13)
	domainChildNsk   = byte(0x14)
	domainChildOvk   = byte(0x15)
	domainChildDk    = byte(0x16)
	domainRcm        = byte(0x04)
	domainEsk        = byte(0x05)
	domainGroupChain = byte(0x20)
)

// prfExpand is the keyed expansion function used for every key derivation
// step.
func prfExpand(sk []byte, t byte, extra ...[]byte) [64]byte {
	h, _ := blake2b.New512(personalExpand)
	h.Write(sk)
	h.Write([]byte{t})
	for _, e := range extra {
		h.Write(e)
	}

	var out [64]byte
	copy(out[:], h.Sum(nil))
	return out
}

// keyedHash256 returns the keyed 256-bit blake2b hash of msgs.
func keyedHash256(key []byte, msgs ...[]byte) [32]byte {
	h, _ := blake2b.New256(key)
	for _, m := range msgs {
		h.Write(m)
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// toScalar reduces the first 32 bytes of b modulo the group order.
func toScalar(b []byte) btcec.ModNScalar {
	var s btcec.ModNScalar
	s.SetByteSlice(b[:32])
	return s
}

// OutgoingViewingKey lets the sender recover the notes it created.
type OutgoingViewingKey [32]byte

// DiversifierKey derives the diversifiers of a viewing key's addresses.
type DiversifierKey [32]byte

// Diversifier selects one of the many payment addresses of a viewing key.
type Diversifier [DiversifierLen]byte

// ExpandedSpendingKey holds the spend authorizing key, the nullifier
// deriving key and the outgoing viewing key.
type ExpandedSpendingKey struct {
	Ask btcec.ModNScalar
	Nsk btcec.ModNScalar
	Ovk OutgoingViewingKey
}

// FullViewingKey is the public counterpart of an ExpandedSpendingKey. It can
// detect incoming and outgoing notes and compute nullifiers but cannot
// authorize spends.
type FullViewingKey struct {
	Ak  *btcec.PublicKey
	Nk  *btcec.PublicKey
	Ovk OutgoingViewingKey
}

// ExtendedSpendingKey is a node of the hierarchical spending key tree.
type ExtendedSpendingKey struct {
	Depth        uint8
	ParentFVKTag [4]byte
	ChildIndex   uint32
	ChainCode    [32]byte
	Expsk        ExpandedSpendingKey
	Dk           DiversifierKey
}

// ExtendedFullViewingKey is the viewing counterpart of an
// ExtendedSpendingKey.
type ExtendedFullViewingKey struct {
	Depth        uint8
	ParentFVKTag [4]byte
	ChildIndex   uint32
	ChainCode    [32]byte
	Fvk          FullViewingKey
	Dk           DiversifierKey
}

// expand derives the expanded spending key of a 32 byte spending key.
func expand(sk []byte) ExpandedSpendingKey {
	ask := prfExpand(sk, domainAsk)
	nsk := prfExpand(sk, domainNsk)
	ovk := prfExpand(sk, domainOvk)

	var e ExpandedSpendingKey
	e.Ask = toScalar(ask[:])
	e.Nsk = toScalar(nsk[:])
	copy(e.Ovk[:], ovk[:32])
	return e
}

// NewMaster derives the master extended spending key from a seed.
func NewMaster(seed []byte) (*ExtendedSpendingKey, error) {
	if len(seed) < 32 || len(seed) > 252 {
		return nil, fmt.Errorf("seed length %d out of range", len(seed))
	}

	h, _ := blake2b.New512(personalMaster)
	h.Write(seed)
	i := h.Sum(nil)

	sk := i[:32]
	dk := prfExpand(sk, domainDk)

	xsk := &ExtendedSpendingKey{Expsk: expand(sk)}
	copy(xsk.ChainCode[:], i[32:])
	copy(xsk.Dk[:], dk[:32])
	return xsk, nil
}

// Derive returns the hardened child at index i.
func (k *ExtendedSpendingKey) Derive(i uint32) (*ExtendedSpendingKey,
	error) {

	if i < HardenedKeyStart {
		return nil, ErrNonHardened
	}
	if k.Depth == 255 {
		return nil, errors.New("maximum key depth reached")
	}

	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], i)
	askBytes := k.Expsk.Ask.Bytes()
	nskBytes := k.Expsk.Nsk.Bytes()
	out := prfExpand(
		k.ChainCode[:], domainChild, askBytes[:], nskBytes[:],
		k.Expsk.Ovk[:], k.Dk[:], idx[:],
	)
	il := out[:32]

	child := &ExtendedSpendingKey{
		Depth:        k.Depth + 1,
		ParentFVKTag: k.ToExtendedFullViewingKey().Tag(),
		ChildIndex:   i,
	}
	copy(child.ChainCode[:], out[32:])

	askTweak := prfExpand(il, domainChildAsk)
	child.Expsk.Ask = toScalar(askTweak[:])
	child.Expsk.Ask.Add(&k.Expsk.Ask)

	nskTweak := prfExpand(il, domainChildNsk)
	child.Expsk.Nsk = toScalar(nskTweak[:])
	child.Expsk.Nsk.Add(&k.Expsk.Nsk)

	ovk := prfExpand(il, domainChildOvk, k.Expsk.Ovk[:])
	copy(child.Expsk.Ovk[:], ovk[:32])

	dk := prfExpand(il, domainChildDk, k.Dk[:])
	copy(child.Dk[:], dk[:32])

	return child, nil
}

// DerivePath derives the key at the passed path of hardened indices.
func (k *ExtendedSpendingKey) DerivePath(path []uint32) (
	*ExtendedSpendingKey, error) {

	key := k
	for _, i := range path {
		var err error
		key, err = key.Derive(i)
		if err != nil {
			return nil, err
		}
	}
	return key, nil
}

// AccountPath returns the path m/32'/coin'/account' of a wallet account.
func AccountPath(coinType, account uint32) []uint32 {
	return []uint32{
		32 | HardenedKeyStart,
		coinType | HardenedKeyStart,
		account | HardenedKeyStart,
	}
}

// FullViewingKey returns the viewing key of an expanded spending key.
func (e *ExpandedSpendingKey) FullViewingKey() FullViewingKey {
	return FullViewingKey{
		Ak:  scalarBase(&e.Ask),
		Nk:  scalarBase(&e.Nsk),
		Ovk: e.Ovk,
	}
}

// ToExtendedFullViewingKey returns the extended viewing key of k.
func (k *ExtendedSpendingKey) ToExtendedFullViewingKey() *ExtendedFullViewingKey {
	return &ExtendedFullViewingKey{
		Depth:        k.Depth,
		ParentFVKTag: k.ParentFVKTag,
		ChildIndex:   k.ChildIndex,
		ChainCode:    k.ChainCode,
		Fvk:          k.Expsk.FullViewingKey(),
		Dk:           k.Dk,
	}
}

// Zero clears the secret material of the key.
func (k *ExtendedSpendingKey) Zero() {
	k.Expsk.Ask.Zero()
	k.Expsk.Nsk.Zero()
	for i := range k.ChainCode {
		k.ChainCode[i] = 0
	}
}

// serialize returns the fixed layout encoding of a viewing key.
func (f *FullViewingKey) serialize() []byte {
	b := make([]byte, 0, 33+33+32)
	b = append(b, f.Ak.SerializeCompressed()...)
	b = append(b, f.Nk.SerializeCompressed()...)
	return append(b, f.Ovk[:]...)
}

// IVK returns the incoming viewing key scalar used to detect and decrypt
// received notes.
func (f *FullViewingKey) IVK() btcec.ModNScalar {
	h := keyedHash256(
		personalIvk, f.Ak.SerializeCompressed(),
		f.Nk.SerializeCompressed(),
	)
	return toScalar(h[:])
}

// Equal reports whether both viewing keys are identical.
func (f *FullViewingKey) Equal(o *FullViewingKey) bool {
	return f.Ak.IsEqual(o.Ak) && f.Nk.IsEqual(o.Nk) && f.Ovk == o.Ovk
}

// Tag returns the four byte fingerprint prefix identifying the key.
func (k *ExtendedFullViewingKey) Tag() [4]byte {
	h := keyedHash256(personalFVKTag, k.Fvk.serialize())

	var tag [4]byte
	copy(tag[:], h[:4])
	return tag
}

// Diversifier returns the j-th diversifier of the key.
func (k *ExtendedFullViewingKey) Diversifier(j uint64) Diversifier {
	var idx [DiversifierLen]byte
	binary.LittleEndian.PutUint64(idx[:8], j)
	h := keyedHash256(personalDiv, k.Dk[:], idx[:])

	var d Diversifier
	copy(d[:], h[:DiversifierLen])
	return d
}

// Address returns the payment address of the key with diversifier d.
func (k *ExtendedFullViewingKey) Address(d Diversifier) PaymentAddress {
	ivk := k.Fvk.IVK()
	return PaymentAddress{Diversifier: d, PkD: pkD(&ivk, d)}
}

// DefaultAddress returns the address at diversifier index zero.
func (k *ExtendedFullViewingKey) DefaultAddress() PaymentAddress {
	return k.Address(k.Diversifier(0))
}

// gd returns the diversified base scalar h_d such that g_d = h_d*G.
func gd(d Diversifier) btcec.ModNScalar {
	h := keyedHash256(personalGd, d[:])
	s := toScalar(h[:])
	if s.IsZero() {
		s.SetInt(1)
	}
	return s
}

// pkD returns ivk*g_d.
func pkD(ivk *btcec.ModNScalar, d Diversifier) *btcec.PublicKey {
	s := gd(d)
	s.Mul(ivk)
	return scalarBase(&s)
}

// NewGroupViewingKey builds the extended full viewing key of a threshold
// group: the spend authorizing key is the group public key, while the
// nullifier, outgoing and diversifier keys are derived from seed.
func NewGroupViewingKey(groupKey *btcec.PublicKey,
	seed []byte) *ExtendedFullViewingKey {

	nsk := prfExpand(seed, domainNsk)
	nskScalar := toScalar(nsk[:])
	ovk := prfExpand(seed, domainOvk)
	dk := prfExpand(seed, domainDk)
	chain := prfExpand(seed, domainGroupChain)

	k := &ExtendedFullViewingKey{
		Fvk: FullViewingKey{
			Ak: groupKey,
			Nk: scalarBase(&nskScalar),
		},
	}
	nskScalar.Zero()
	copy(k.Fvk.Ovk[:], ovk[:32])
	copy(k.Dk[:], dk[:32])
	copy(k.ChainCode[:], chain[:32])
	return k
}

// scalarBase returns k*G.
func scalarBase(k *btcec.ModNScalar) *btcec.PublicKey {
	var p btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(k, &p)
	p.ToAffine()
	return btcec.NewPublicKey(&p.X, &p.Y)
}

// scalarMult returns k*P.
func scalarMult(k *btcec.ModNScalar, pub *btcec.PublicKey) *btcec.PublicKey {
	var p, r btcec.JacobianPoint
	pub.AsJacobian(&p)
	btcec.ScalarMultNonConst(k, &p, &r)
	r.ToAffine()
	return btcec.NewPublicKey(&r.X, &r.Y)
}
