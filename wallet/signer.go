// Copyright (c) 2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"errors"
	"fmt"

	"github.com/zcoldwallet/zcoldwallet/shielded"
)

// ErrKeyMismatch is returned when a spending key does not control an input
// of the transaction it signs.
var ErrKeyMismatch = errors.New("spending key does not match the input " +
	"viewing key")

// SignTx proves and signs a proposal with a spending key in one step and
// returns the raw transaction. It runs offline and never touches the
// threshold machinery.
func SignTx(cfg *Config, spendingKey string, tx *Tx) ([]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	params := cfg.Params

	extsk, err := shielded.DecodeExtendedSpendingKey(
		params.HRPSaplingExtendedSpendingKey, spendingKey,
	)
	if err != nil {
		return nil, &DecodeError{What: "spending key", Input: "<redacted>",
			Err: err}
	}
	defer extsk.Zero()
	fvk := extsk.ToExtendedFullViewingKey().Fvk

	if tx.Output == nil {
		return nil, &TxParseError{Artifact: "transaction", Err: errNoOutput}
	}

	prover, err := cfg.prover()
	if err != nil {
		return nil, err
	}

	builder := shielded.NewBuilder(params, tx.Height, cfg.Rand)
	builder.SetFee(cfg.Fee)
	for i := range tx.Inputs {
		s, err := tx.Inputs[i].decode(params)
		if err != nil {
			return nil, err
		}
		if !s.efvk.Fvk.Equal(&fvk) {
			return nil, &DecodeError{What: "input",
				Input: fmt.Sprint(i), Err: ErrKeyMismatch}
		}
		if err := builder.AddSaplingSpend(extsk, s.d, s.note, s.path); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}

	to, value, _, err := tx.Output.decode(params)
	if err != nil {
		return nil, err
	}
	err = builder.AddSaplingOutput(extsk.Expsk.Ovk, to, value, nil)
	if err != nil {
		return nil, err
	}

	signed, err := builder.Build(prover)
	if err != nil {
		return nil, err
	}
	raw, err := signed.Bytes()
	if err != nil {
		return nil, err
	}

	txid, err := signed.TxHash()
	if err == nil {
		log.Infof("Signed transaction %v with %d %s", txid,
			len(tx.Inputs), pickNoun(len(tx.Inputs), "spend", "spends"))
	}

	return raw, nil
}
