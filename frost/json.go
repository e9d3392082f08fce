// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package frost

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Points and scalars are encoded as lowercase hex: points in compressed
// form, scalars as 32 big-endian bytes.

func encodePoint(p *btcec.PublicKey) string {
	if p == nil {
		return ""
	}
	return hex.EncodeToString(p.SerializeCompressed())
}

func decodePoint(s string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return btcec.ParsePubKey(b)
}

func encodeScalar(s *btcec.ModNScalar) string {
	b := s.Bytes()
	return hex.EncodeToString(b[:])
}

func decodeScalar(s string, out *btcec.ModNScalar) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != 32 {
		return fmt.Errorf("scalar must be 32 bytes, got %d", len(b))
	}
	if out.SetByteSlice(b) {
		return fmt.Errorf("scalar %s overflows the group order", s)
	}
	return nil
}

type commitmentsJSON struct {
	Index           uint32 `json:"index"`
	Hiding          string `json:"hiding"`
	Binding         string `json:"binding"`
	Randomizer      string `json:"randomizer"`
	RandomizerNonce string `json:"randomizer_nonce"`
}

// MarshalJSON implements json.Marshaler.
func (c SigningCommitments) MarshalJSON() ([]byte, error) {
	return json.Marshal(commitmentsJSON{
		Index:           c.Index,
		Hiding:          encodePoint(c.Hiding),
		Binding:         encodePoint(c.Binding),
		Randomizer:      encodePoint(c.Randomizer),
		RandomizerNonce: encodeScalar(&c.RandomizerNonce),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *SigningCommitments) UnmarshalJSON(data []byte) error {
	var v commitmentsJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	var err error
	c.Index = v.Index
	if c.Hiding, err = decodePoint(v.Hiding); err != nil {
		return fmt.Errorf("hiding commitment: %w", err)
	}
	if c.Binding, err = decodePoint(v.Binding); err != nil {
		return fmt.Errorf("binding commitment: %w", err)
	}
	if c.Randomizer, err = decodePoint(v.Randomizer); err != nil {
		return fmt.Errorf("randomizer commitment: %w", err)
	}
	return decodeScalar(v.RandomizerNonce, &c.RandomizerNonce)
}

type noncesJSON struct {
	Index      uint32 `json:"index"`
	Hiding     string `json:"hiding"`
	Binding    string `json:"binding"`
	Randomizer string `json:"randomizer"`
	Consumed   bool   `json:"consumed"`
}

// MarshalJSON implements json.Marshaler. Consumed nonces are written
// without their scalars.
func (n *SigningNonces) MarshalJSON() ([]byte, error) {
	v := noncesJSON{Index: n.Index, Consumed: n.consumed}
	if !n.consumed {
		v.Hiding = encodeScalar(&n.Hiding)
		v.Binding = encodeScalar(&n.Binding)
		v.Randomizer = encodeScalar(&n.Randomizer)
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *SigningNonces) UnmarshalJSON(data []byte) error {
	var v noncesJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	n.Index = v.Index
	n.consumed = v.Consumed
	if v.Consumed {
		return nil
	}
	if err := decodeScalar(v.Hiding, &n.Hiding); err != nil {
		return err
	}
	if err := decodeScalar(v.Binding, &n.Binding); err != nil {
		return err
	}
	return decodeScalar(v.Randomizer, &n.Randomizer)
}

type signatureShareJSON struct {
	Index uint32 `json:"index"`
	Z     string `json:"z"`
}

// MarshalJSON implements json.Marshaler.
func (s SignatureShare) MarshalJSON() ([]byte, error) {
	return json.Marshal(signatureShareJSON{
		Index: s.Index,
		Z:     encodeScalar(&s.Z),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SignatureShare) UnmarshalJSON(data []byte) error {
	var v signatureShareJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	s.Index = v.Index
	return decodeScalar(v.Z, &s.Z)
}

type secretShareJSON struct {
	Index       uint32   `json:"index"`
	Value       string   `json:"value"`
	Public      string   `json:"public"`
	GroupPublic string   `json:"group_public"`
	Commitment  []string `json:"commitment"`
}

// MarshalJSON implements json.Marshaler.
func (s *SecretShare) MarshalJSON() ([]byte, error) {
	v := secretShareJSON{
		Index:       s.Index,
		Value:       encodeScalar(&s.Value),
		Public:      encodePoint(s.Public),
		GroupPublic: encodePoint(s.GroupPublic),
	}
	for _, c := range s.Commitment {
		v.Commitment = append(v.Commitment, encodePoint(c))
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler. The decoded share is checked
// against its polynomial commitment.
func (s *SecretShare) UnmarshalJSON(data []byte) error {
	var v secretShareJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	var err error
	s.Index = v.Index
	if err := decodeScalar(v.Value, &s.Value); err != nil {
		return err
	}
	if s.Public, err = decodePoint(v.Public); err != nil {
		return err
	}
	if s.GroupPublic, err = decodePoint(v.GroupPublic); err != nil {
		return err
	}
	s.Commitment = make([]*btcec.PublicKey, 0, len(v.Commitment))
	for _, c := range v.Commitment {
		p, err := decodePoint(c)
		if err != nil {
			return err
		}
		s.Commitment = append(s.Commitment, p)
	}
	return s.Verify()
}

type publicKeyPackageJSON struct {
	SignerPubKeys map[string]string `json:"signer_pubkeys"`
	GroupPublic   string            `json:"group_public"`
}

// MarshalJSON implements json.Marshaler.
func (p *PublicKeyPackage) MarshalJSON() ([]byte, error) {
	v := publicKeyPackageJSON{
		SignerPubKeys: make(map[string]string, len(p.SignerPubKeys)),
		GroupPublic:   encodePoint(p.GroupPublic),
	}
	for idx, pk := range p.SignerPubKeys {
		v.SignerPubKeys[strconv.FormatUint(uint64(idx), 10)] =
			encodePoint(pk)
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *PublicKeyPackage) UnmarshalJSON(data []byte) error {
	var v publicKeyPackageJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	var err error
	if p.GroupPublic, err = decodePoint(v.GroupPublic); err != nil {
		return err
	}
	p.SignerPubKeys = make(map[uint32]*btcec.PublicKey,
		len(v.SignerPubKeys))
	for k, s := range v.SignerPubKeys {
		idx, err := strconv.ParseUint(k, 10, 32)
		if err != nil {
			return fmt.Errorf("signer index %q: %w", k, err)
		}
		pk, err := decodePoint(s)
		if err != nil {
			return err
		}
		p.SignerPubKeys[uint32(idx)] = pk
	}
	return nil
}
