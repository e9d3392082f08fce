// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
	"github.com/zcoldwallet/zcoldwallet/shielded"
	"github.com/zcoldwallet/zcoldwallet/walletdb"
)

// ErrTransparentDestination is returned for a payment to a transparent
// address. Only shielded outputs are supported.
var ErrTransparentDestination = errors.New("transparent destinations are " +
	"not supported")

// decodeDestination decodes the payment address of a proposal.
func decodeDestination(cfg *Config, to string) (*shielded.PaymentAddress,
	error) {

	addr, err := CheckAddress(cfg, to)
	if err == nil {
		return addr, nil
	}
	if strings.HasPrefix(to, "t") {
		return nil, &DecodeError{What: "address", Input: to,
			Err: ErrTransparentDestination}
	}
	return nil, err
}

// PrepareTx selects notes paying amount, expressed in the configured unit,
// plus the fee to the destination and returns the unsigned proposal. It
// fails with NotEnoughFundsError when the spendable notes do not cover it.
// No proposal is returned in that case.
func (w *Wallet) PrepareTx(ctx context.Context, to string,
	amount string) (*Tx, error) {

	cfg := w.cfg
	if _, err := decodeDestination(cfg, to); err != nil {
		return nil, err
	}
	value, err := cfg.Unit.ToZatoshis(amount)
	if err != nil {
		return nil, &DecodeError{What: "amount", Input: amount, Err: err}
	}

	target, anchor, err := w.anchor(ctx)
	if err != nil {
		return nil, err
	}

	keys, err := w.viewingKeys(ctx)
	if err != nil {
		return nil, err
	}
	efvk, ok := keys[DefaultAccount]
	if !ok {
		return nil, &AccountNotInitializedError{}
	}
	fvk, err := shielded.EncodeExtendedFullViewingKey(
		cfg.Params.HRPSaplingExtendedFullViewingKey, efvk,
	)
	if err != nil {
		return nil, err
	}

	required := value + cfg.Fee
	notes, err := w.store.SelectSpendableNotes(ctx, walletdb.SelectNotesQuery{
		Account:      DefaultAccount,
		AnchorHeight: anchor,
		Target:       required,
		Strategy:     cfg.CoinSelection,
	})
	if err != nil {
		return nil, err
	}

	var selected btcutil.Amount
	for _, n := range notes {
		selected += n.Value
	}
	if selected < required {
		return nil, &NotEnoughFundsError{
			Selected: selected,
			Required: required,
			Unit:     cfg.Unit,
		}
	}

	session, err := uuid.NewRandomFromReader(cfg.Rand)
	if err != nil {
		return nil, err
	}

	tx := &Tx{
		Height:  target,
		Session: session,
		Inputs:  make([]TxIn, 0, len(notes)),
		Output: &TxOut{
			Addr:   to,
			Amount: uint64(value),
			OVK:    hex.EncodeToString(efvk.Fvk.Ovk[:]),
		},
	}
	for _, n := range notes {
		tx.Inputs = append(tx.Inputs, TxIn{
			Diversifier: hex.EncodeToString(n.Diversifier[:]),
			FVK:         fvk,
			Amount:      uint64(n.Value),
			Z212:        n.Rseed.AfterZIP212,
			Rseed:       hex.EncodeToString(n.Rseed.Bytes[:]),
			Witness:     hex.EncodeToString(n.Witness),
			Multisigs:   []SigningShare{},
		})
	}

	log.Infof("Prepared transaction paying %s with %d %s (anchor %d)",
		cfg.Unit.Format(value), len(notes),
		pickNoun(len(notes), "note", "notes"), anchor)

	return tx, nil
}
