// Copyright (c) 2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package zero contains functions to clear secret key material from
// memory once it is no longer needed.
package zero

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/zcoldwallet/zcoldwallet/frost"
)

// Bytes sets all bytes in the passed slice to zero.  This is used to
// explicitly clear seeds, mnemonics and key files from memory.
//
// In general, prefer to use the fixed-sized zeroing function Bytea32 when
// zeroing bytes as it is much more efficient than the variable sized
// zeroing func Bytes.
func Bytes(b []byte) {
	z := [32]byte{}
	n := uint(copy(b, z[:]))
	for n < uint(len(b)) {
		copy(b[n:], b[:n])
		n <<= 1
	}
}

// Bytea32 clears the 32-byte array by filling it with the zero value.
// This is used to explicitly clear entropy and seeds from memory.
func Bytea32(b *[32]byte) {
	*b = [32]byte{}
}

// Scalars clears the passed scalars. Nil entries are skipped.
func Scalars(scalars ...*btcec.ModNScalar) {
	for _, s := range scalars {
		if s != nil {
			s.Zero()
		}
	}
}

// SecretShares clears the secret value of every share.
func SecretShares(shares []*frost.SecretShare) {
	for _, s := range shares {
		if s != nil {
			s.Value.Zero()
		}
	}
}
