// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"io"

	"github.com/tyler-smith/go-bip39"
	"github.com/zcoldwallet/zcoldwallet/internal/zero"
	"github.com/zcoldwallet/zcoldwallet/shielded"
)

// mnemonicEntropyBytes gives 24 word mnemonics.
const mnemonicEntropyBytes = 32

// GenerateKey creates a new mnemonic and returns the keys and default
// address of its first account.
func GenerateKey(cfg *Config) (*GeneratedKey, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var entropy [mnemonicEntropyBytes]byte
	if _, err := io.ReadFull(cfg.Rand, entropy[:]); err != nil {
		return nil, err
	}
	defer zero.Bytea32(&entropy)

	mnemonic, err := bip39.NewMnemonic(entropy[:])
	if err != nil {
		return nil, err
	}
	return KeyFromMnemonic(cfg, mnemonic)
}

// KeyFromMnemonic restores the keys of the first account of a mnemonic.
func KeyFromMnemonic(cfg *Config, mnemonic string) (*GeneratedKey, error) {
	params := cfg.Params

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, &DecodeError{What: "mnemonic", Input: "<redacted>",
			Err: err}
	}
	defer zero.Bytes(seed)

	master, err := shielded.NewMaster(seed)
	if err != nil {
		return nil, err
	}
	defer master.Zero()

	extsk, err := master.DerivePath(
		shielded.AccountPath(params.CoinType, DefaultAccount),
	)
	if err != nil {
		return nil, err
	}
	defer extsk.Zero()
	efvk := extsk.ToExtendedFullViewingKey()

	key := &GeneratedKey{Mnemonic: mnemonic}
	key.SpendingKey, err = shielded.EncodeExtendedSpendingKey(
		params.HRPSaplingExtendedSpendingKey, extsk,
	)
	if err != nil {
		return nil, err
	}
	key.ViewingKey, err = shielded.EncodeExtendedFullViewingKey(
		params.HRPSaplingExtendedFullViewingKey, efvk,
	)
	if err != nil {
		return nil, err
	}
	addr := efvk.DefaultAddress()
	key.Address, err = shielded.EncodePaymentAddress(
		params.HRPSaplingPaymentAddress, &addr,
	)
	if err != nil {
		return nil, err
	}
	return key, nil
}
