// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// The messages below mirror the lightwalletd CompactTxStreamer protocol.
// They are encoded field by field with protowire so that the wire format
// matches the indexer's protobuf schema.

// Message is implemented by every request and response exchanged with the
// indexer.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// errTruncated is returned for a message that ends inside a field.
var errTruncated = errors.New("truncated message")

// fieldFunc handles one decoded field. It returns the number of bytes
// consumed, or -1 to skip an unknown field.
type fieldFunc func(num protowire.Number, typ protowire.Type,
	b []byte) (int, error)

// decodeFields walks the fields of an encoded message.
func decodeFields(b []byte, f fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := f(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		if m > len(b) {
			return errTruncated
		}
		b = b[m:]
	}
	return nil
}

func consumeUint(typ protowire.Type, b []byte, out *uint64) (int, error) {
	if typ != protowire.VarintType {
		return 0, fmt.Errorf("unexpected wire type %d", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*out = v
	return n, nil
}

func consumeBytes(typ protowire.Type, b []byte, out *[]byte) (int, error) {
	if typ != protowire.BytesType {
		return 0, fmt.Errorf("unexpected wire type %d", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*out = append([]byte(nil), v...)
	return n, nil
}

func consumeString(typ protowire.Type, b []byte, out *string) (int, error) {
	var v []byte
	n, err := consumeBytes(typ, b, &v)
	*out = string(v)
	return n, err
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendMessage(b []byte, num protowire.Number, m Message) ([]byte,
	error) {

	enc, err := m.Marshal()
	if err != nil {
		return nil, err
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, enc), nil
}

func consumeMessage(typ protowire.Type, b []byte, m Message) (int, error) {
	var enc []byte
	n, err := consumeBytes(typ, b, &enc)
	if err != nil {
		return 0, err
	}
	return n, m.Unmarshal(enc)
}

// BlockID identifies a block by height and, optionally, hash.
type BlockID struct {
	Height uint64
	Hash   []byte
}

// Marshal encodes the message.
func (m *BlockID) Marshal() ([]byte, error) {
	b := appendUint(nil, 1, m.Height)
	return appendBytes(b, 2, m.Hash), nil
}

// Unmarshal decodes the message.
func (m *BlockID) Unmarshal(b []byte) error {
	*m = BlockID{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type,
		b []byte) (int, error) {

		switch num {
		case 1:
			return consumeUint(typ, b, &m.Height)
		case 2:
			return consumeBytes(typ, b, &m.Hash)
		}
		return -1, nil
	})
}

// BlockRange is an inclusive range of blocks.
type BlockRange struct {
	Start BlockID
	End   BlockID
}

// Marshal encodes the message.
func (m *BlockRange) Marshal() ([]byte, error) {
	b, err := appendMessage(nil, 1, &m.Start)
	if err != nil {
		return nil, err
	}
	return appendMessage(b, 2, &m.End)
}

// Unmarshal decodes the message.
func (m *BlockRange) Unmarshal(b []byte) error {
	*m = BlockRange{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type,
		b []byte) (int, error) {

		switch num {
		case 1:
			return consumeMessage(typ, b, &m.Start)
		case 2:
			return consumeMessage(typ, b, &m.End)
		}
		return -1, nil
	})
}

// ChainSpec is the empty request of GetLatestBlock.
type ChainSpec struct{}

// Marshal encodes the message.
func (m *ChainSpec) Marshal() ([]byte, error) {
	return nil, nil
}

// Unmarshal decodes the message.
func (m *ChainSpec) Unmarshal(b []byte) error {
	return decodeFields(b, func(protowire.Number, protowire.Type,
		[]byte) (int, error) {

		return -1, nil
	})
}

// RawTransaction is a serialized transaction and the height it was mined
// at, if any.
type RawTransaction struct {
	Data   []byte
	Height uint64
}

// Marshal encodes the message.
func (m *RawTransaction) Marshal() ([]byte, error) {
	b := appendBytes(nil, 1, m.Data)
	return appendUint(b, 2, m.Height), nil
}

// Unmarshal decodes the message.
func (m *RawTransaction) Unmarshal(b []byte) error {
	*m = RawTransaction{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type,
		b []byte) (int, error) {

		switch num {
		case 1:
			return consumeBytes(typ, b, &m.Data)
		case 2:
			return consumeUint(typ, b, &m.Height)
		}
		return -1, nil
	})
}

// SendResponse is the indexer's answer to a submitted transaction. A
// non-zero ErrorCode means the transaction was rejected.
type SendResponse struct {
	ErrorCode    int32
	ErrorMessage string
}

// Marshal encodes the message.
func (m *SendResponse) Marshal() ([]byte, error) {
	// int32 fields are sign extended to 64 bits on the wire.
	b := appendUint(nil, 1, uint64(int64(m.ErrorCode)))
	return appendBytes(b, 2, []byte(m.ErrorMessage)), nil
}

// Unmarshal decodes the message.
func (m *SendResponse) Unmarshal(b []byte) error {
	*m = SendResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type,
		b []byte) (int, error) {

		switch num {
		case 1:
			var v uint64
			n, err := consumeUint(typ, b, &v)
			m.ErrorCode = int32(v)
			return n, err
		case 2:
			return consumeString(typ, b, &m.ErrorMessage)
		}
		return -1, nil
	})
}

// TreeState is the note commitment tree state at the end of a block.
type TreeState struct {
	Network string
	Height  uint64

	// Hash is the block hash in display (reversed) byte order, hex
	// encoded.
	Hash string

	Time uint32

	// SaplingTree is the hex encoded tree frontier.
	SaplingTree string
}

// Marshal encodes the message.
func (m *TreeState) Marshal() ([]byte, error) {
	b := appendBytes(nil, 1, []byte(m.Network))
	b = appendUint(b, 2, m.Height)
	b = appendBytes(b, 3, []byte(m.Hash))
	b = appendUint(b, 4, uint64(m.Time))
	return appendBytes(b, 5, []byte(m.SaplingTree)), nil
}

// Unmarshal decodes the message.
func (m *TreeState) Unmarshal(b []byte) error {
	*m = TreeState{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type,
		b []byte) (int, error) {

		switch num {
		case 1:
			return consumeString(typ, b, &m.Network)
		case 2:
			return consumeUint(typ, b, &m.Height)
		case 3:
			return consumeString(typ, b, &m.Hash)
		case 4:
			var v uint64
			n, err := consumeUint(typ, b, &v)
			m.Time = uint32(v)
			return n, err
		case 5:
			return consumeString(typ, b, &m.SaplingTree)
		}
		return -1, nil
	})
}

// CompactSpend is the nullifier of a spent note.
type CompactSpend struct {
	Nf []byte
}

// Marshal encodes the message.
func (m *CompactSpend) Marshal() ([]byte, error) {
	return appendBytes(nil, 1, m.Nf), nil
}

// Unmarshal decodes the message.
func (m *CompactSpend) Unmarshal(b []byte) error {
	*m = CompactSpend{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type,
		b []byte) (int, error) {

		if num == 1 {
			return consumeBytes(typ, b, &m.Nf)
		}
		return -1, nil
	})
}

// CompactOutput is the part of an output needed for trial decryption.
type CompactOutput struct {
	Cmu        []byte
	Epk        []byte
	Ciphertext []byte
}

// Marshal encodes the message.
func (m *CompactOutput) Marshal() ([]byte, error) {
	b := appendBytes(nil, 1, m.Cmu)
	b = appendBytes(b, 2, m.Epk)
	return appendBytes(b, 3, m.Ciphertext), nil
}

// Unmarshal decodes the message.
func (m *CompactOutput) Unmarshal(b []byte) error {
	*m = CompactOutput{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type,
		b []byte) (int, error) {

		switch num {
		case 1:
			return consumeBytes(typ, b, &m.Cmu)
		case 2:
			return consumeBytes(typ, b, &m.Epk)
		case 3:
			return consumeBytes(typ, b, &m.Ciphertext)
		}
		return -1, nil
	})
}

// CompactTx is the shielded part of a transaction.
type CompactTx struct {
	Index   uint64
	Hash    []byte
	Fee     uint32
	Spends  []CompactSpend
	Outputs []CompactOutput
}

// Marshal encodes the message.
func (m *CompactTx) Marshal() ([]byte, error) {
	b := appendUint(nil, 1, m.Index)
	b = appendBytes(b, 2, m.Hash)
	b = appendUint(b, 3, uint64(m.Fee))

	var err error
	for i := range m.Spends {
		if b, err = appendMessage(b, 4, &m.Spends[i]); err != nil {
			return nil, err
		}
	}
	for i := range m.Outputs {
		if b, err = appendMessage(b, 5, &m.Outputs[i]); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Unmarshal decodes the message.
func (m *CompactTx) Unmarshal(b []byte) error {
	*m = CompactTx{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type,
		b []byte) (int, error) {

		switch num {
		case 1:
			return consumeUint(typ, b, &m.Index)
		case 2:
			return consumeBytes(typ, b, &m.Hash)
		case 3:
			var v uint64
			n, err := consumeUint(typ, b, &v)
			m.Fee = uint32(v)
			return n, err
		case 4:
			var s CompactSpend
			n, err := consumeMessage(typ, b, &s)
			m.Spends = append(m.Spends, s)
			return n, err
		case 5:
			var o CompactOutput
			n, err := consumeMessage(typ, b, &o)
			m.Outputs = append(m.Outputs, o)
			return n, err
		}
		return -1, nil
	})
}

// CompactBlock is a block reduced to what a light wallet needs to scan it.
type CompactBlock struct {
	ProtoVersion uint32
	Height       uint64
	Hash         []byte
	PrevHash     []byte
	Time         uint32
	Header       []byte
	Vtx          []CompactTx
}

// Marshal encodes the message.
func (m *CompactBlock) Marshal() ([]byte, error) {
	b := appendUint(nil, 1, uint64(m.ProtoVersion))
	b = appendUint(b, 2, m.Height)
	b = appendBytes(b, 3, m.Hash)
	b = appendBytes(b, 4, m.PrevHash)
	b = appendUint(b, 5, uint64(m.Time))
	b = appendBytes(b, 6, m.Header)

	var err error
	for i := range m.Vtx {
		if b, err = appendMessage(b, 7, &m.Vtx[i]); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Unmarshal decodes the message.
func (m *CompactBlock) Unmarshal(b []byte) error {
	*m = CompactBlock{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type,
		b []byte) (int, error) {

		switch num {
		case 1:
			var v uint64
			n, err := consumeUint(typ, b, &v)
			m.ProtoVersion = uint32(v)
			return n, err
		case 2:
			return consumeUint(typ, b, &m.Height)
		case 3:
			return consumeBytes(typ, b, &m.Hash)
		case 4:
			return consumeBytes(typ, b, &m.PrevHash)
		case 5:
			var v uint64
			n, err := consumeUint(typ, b, &v)
			m.Time = uint32(v)
			return n, err
		case 6:
			return consumeBytes(typ, b, &m.Header)
		case 7:
			var tx CompactTx
			n, err := consumeMessage(typ, b, &tx)
			m.Vtx = append(m.Vtx, tx)
			return n, err
		}
		return -1, nil
	})
}
