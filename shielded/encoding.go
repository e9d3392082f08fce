// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package shielded

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/bech32"
)

// PaymentAddressLen is the length of a serialized payment address.
const PaymentAddressLen = DiversifierLen + 33

// PaymentAddress is a shielded payment address.
type PaymentAddress struct {
	Diversifier Diversifier
	PkD         *btcec.PublicKey
}

// Bytes returns the serialized address.
func (a *PaymentAddress) Bytes() []byte {
	b := make([]byte, 0, PaymentAddressLen)
	b = append(b, a.Diversifier[:]...)
	return append(b, a.PkD.SerializeCompressed()...)
}

// Equal reports whether both addresses are identical.
func (a *PaymentAddress) Equal(o *PaymentAddress) bool {
	return a.Diversifier == o.Diversifier && a.PkD.IsEqual(o.PkD)
}

// ParsePaymentAddress parses a serialized payment address.
func ParsePaymentAddress(b []byte) (*PaymentAddress, error) {
	if len(b) != PaymentAddressLen {
		return nil, ErrInvalidKeyLength
	}

	pk, err := btcec.ParsePubKey(b[DiversifierLen:])
	if err != nil {
		return nil, err
	}
	a := &PaymentAddress{PkD: pk}
	copy(a.Diversifier[:], b[:DiversifierLen])
	return a, nil
}

// encodeBech32 encodes data with the passed human readable part.
func encodeBech32(hrp string, data []byte) (string, error) {
	conv, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(hrp, conv)
}

// decodeBech32 decodes s and checks its human readable part. Keys are longer
// than the 90 characters bech32 allows for addresses, hence no length limit.
func decodeBech32(hrp, s string) ([]byte, error) {
	gotHRP, data, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return nil, err
	}
	if gotHRP != hrp {
		return nil, fmt.Errorf("unexpected prefix %q, want %q", gotHRP,
			hrp)
	}
	return bech32.ConvertBits(data, 5, 8, false)
}

// EncodePaymentAddress encodes an address with the passed prefix.
func EncodePaymentAddress(hrp string, a *PaymentAddress) (string, error) {
	return encodeBech32(hrp, a.Bytes())
}

// DecodePaymentAddress decodes an address with the passed prefix.
func DecodePaymentAddress(hrp, s string) (*PaymentAddress, error) {
	b, err := decodeBech32(hrp, s)
	if err != nil {
		return nil, err
	}
	return ParsePaymentAddress(b)
}

// Serialize returns the fixed layout encoding of the key.
func (k *ExtendedSpendingKey) Serialize() []byte {
	b := make([]byte, 0, ExtendedSpendingKeyLen)
	b = append(b, k.Depth)
	b = append(b, k.ParentFVKTag[:]...)
	b = binary.LittleEndian.AppendUint32(b, k.ChildIndex)
	b = append(b, k.ChainCode[:]...)
	ask := k.Expsk.Ask.Bytes()
	nsk := k.Expsk.Nsk.Bytes()
	b = append(b, ask[:]...)
	b = append(b, nsk[:]...)
	b = append(b, k.Expsk.Ovk[:]...)
	return append(b, k.Dk[:]...)
}

// ParseExtendedSpendingKey parses a serialized extended spending key.
func ParseExtendedSpendingKey(b []byte) (*ExtendedSpendingKey, error) {
	if len(b) != ExtendedSpendingKeyLen {
		return nil, ErrInvalidKeyLength
	}

	k := &ExtendedSpendingKey{Depth: b[0]}
	copy(k.ParentFVKTag[:], b[1:5])
	k.ChildIndex = binary.LittleEndian.Uint32(b[5:9])
	copy(k.ChainCode[:], b[9:41])
	if k.Expsk.Ask.SetByteSlice(b[41:73]) {
		return nil, fmt.Errorf("spend authorizing key out of range")
	}
	if k.Expsk.Nsk.SetByteSlice(b[73:105]) {
		return nil, fmt.Errorf("nullifier key out of range")
	}
	copy(k.Expsk.Ovk[:], b[105:137])
	copy(k.Dk[:], b[137:169])
	return k, nil
}

// Serialize returns the fixed layout encoding of the key.
func (k *ExtendedFullViewingKey) Serialize() []byte {
	b := make([]byte, 0, ExtendedFullViewingKeyLen)
	b = append(b, k.Depth)
	b = append(b, k.ParentFVKTag[:]...)
	b = binary.LittleEndian.AppendUint32(b, k.ChildIndex)
	b = append(b, k.ChainCode[:]...)
	b = append(b, k.Fvk.serialize()...)
	return append(b, k.Dk[:]...)
}

// ParseExtendedFullViewingKey parses a serialized extended viewing key.
func ParseExtendedFullViewingKey(b []byte) (*ExtendedFullViewingKey,
	error) {

	if len(b) != ExtendedFullViewingKeyLen {
		return nil, ErrInvalidKeyLength
	}

	k := &ExtendedFullViewingKey{Depth: b[0]}
	copy(k.ParentFVKTag[:], b[1:5])
	k.ChildIndex = binary.LittleEndian.Uint32(b[5:9])
	copy(k.ChainCode[:], b[9:41])

	var err error
	if k.Fvk.Ak, err = btcec.ParsePubKey(b[41:74]); err != nil {
		return nil, fmt.Errorf("spend validating key: %w", err)
	}
	if k.Fvk.Nk, err = btcec.ParsePubKey(b[74:107]); err != nil {
		return nil, fmt.Errorf("nullifier deriving key: %w", err)
	}
	copy(k.Fvk.Ovk[:], b[107:139])
	copy(k.Dk[:], b[139:171])
	return k, nil
}

// EncodeExtendedSpendingKey encodes a spending key with the passed prefix.
func EncodeExtendedSpendingKey(hrp string,
	k *ExtendedSpendingKey) (string, error) {

	return encodeBech32(hrp, k.Serialize())
}

// DecodeExtendedSpendingKey decodes a spending key with the passed prefix.
func DecodeExtendedSpendingKey(hrp, s string) (*ExtendedSpendingKey,
	error) {

	b, err := decodeBech32(hrp, s)
	if err != nil {
		return nil, err
	}
	return ParseExtendedSpendingKey(b)
}

// EncodeExtendedFullViewingKey encodes a viewing key with the passed prefix.
func EncodeExtendedFullViewingKey(hrp string,
	k *ExtendedFullViewingKey) (string, error) {

	return encodeBech32(hrp, k.Serialize())
}

// DecodeExtendedFullViewingKey decodes a viewing key with the passed prefix.
func DecodeExtendedFullViewingKey(hrp, s string) (*ExtendedFullViewingKey,
	error) {

	b, err := decodeBech32(hrp, s)
	if err != nil {
		return nil, err
	}
	return ParseExtendedFullViewingKey(b)
}
