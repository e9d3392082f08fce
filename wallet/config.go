// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"crypto/rand"
	"errors"
	"io"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/zcoldwallet/zcoldwallet/netparams"
	"github.com/zcoldwallet/zcoldwallet/pkg/unit"
	"github.com/zcoldwallet/zcoldwallet/shielded"
	"github.com/zcoldwallet/zcoldwallet/walletdb"
)

const (
	// DefaultReorgMargin is the number of blocks below the chain tip that
	// are not synced because they may still be reorganized.
	DefaultReorgMargin = 3

	// DefaultMaxBlocks bounds the number of blocks fetched by one sync.
	DefaultMaxBlocks = 10000

	// AnchorOffset is the number of blocks between the target height of a
	// transaction and the anchor its spends prove against.
	AnchorOffset = 10

	// DefaultAccount is the account every operation works on.
	DefaultAccount = 0
)

var (
	// ErrZeroReorgMargin is returned for a configuration that would sync
	// up to the unconfirmed chain tip.
	ErrZeroReorgMargin = errors.New("reorg margin must be positive")

	// ErrNoParams is returned for a configuration without network
	// parameters.
	ErrNoParams = errors.New("network parameters are required")
)

// Config is threaded into every wallet operation. Nothing in the package
// reads process wide state.
type Config struct {
	// Params are the parameters of the network the wallet is on.
	Params *netparams.Params

	// Unit is the display unit of amounts, including those carried by
	// errors.
	Unit unit.Unit

	// Fee is the fixed fee of every transaction.
	Fee btcutil.Amount

	// ReorgMargin is the number of blocks below the tip left unsynced.
	ReorgMargin uint32

	// MaxBlocks bounds the number of blocks fetched by one sync.
	MaxBlocks uint32

	// CoinSelection is the order notes are selected in.
	CoinSelection walletdb.CoinSelection

	// ParamsDir holds the proving parameters.
	ParamsDir string

	// Prover, when set, is used instead of loading the parameters from
	// ParamsDir.
	Prover *shielded.LocalTxProver

	// Rand is the randomness source of every key, nonce and blinding
	// factor. It defaults to crypto/rand.
	Rand io.Reader
}

// DefaultConfig returns the default configuration for a network.
func DefaultConfig(params *netparams.Params) *Config {
	return &Config{
		Params:        params,
		Unit:          unit.Zec,
		Fee:           shielded.DefaultFee,
		ReorgMargin:   DefaultReorgMargin,
		MaxBlocks:     DefaultMaxBlocks,
		CoinSelection: walletdb.SelectLargest,
		ParamsDir:     shielded.DefaultParamsDir(),
		Rand:          rand.Reader,
	}
}

// Validate checks the configuration and fills in unset defaults.
func (c *Config) Validate() error {
	if c.Params == nil {
		return ErrNoParams
	}
	if c.ReorgMargin == 0 {
		return ErrZeroReorgMargin
	}
	if c.MaxBlocks == 0 {
		c.MaxBlocks = DefaultMaxBlocks
	}
	if c.Fee == 0 {
		c.Fee = shielded.DefaultFee
	}
	if c.ParamsDir == "" {
		c.ParamsDir = shielded.DefaultParamsDir()
	}
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
	return nil
}

// prover loads the proving parameters.
func (c *Config) prover() (*shielded.LocalTxProver, error) {
	if c.Prover != nil {
		return c.Prover, nil
	}
	p, err := shielded.NewLocalTxProver(c.ParamsDir)
	if err != nil {
		return nil, &ProverError{Dir: c.ParamsDir, Err: err}
	}
	return p, nil
}
