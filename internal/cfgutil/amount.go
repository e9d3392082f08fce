// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/zcoldwallet/zcoldwallet/pkg/unit"
)

// AmountFlag embeds a btcutil.Amount of zatoshis and implements the
// flags.Marshaler and Unmarshaler interfaces so it can be used as a config
// struct field. Values are written in ZEC.
type AmountFlag struct {
	btcutil.Amount
}

// NewAmountFlag creates an AmountFlag with a default btcutil.Amount.
func NewAmountFlag(defaultValue btcutil.Amount) *AmountFlag {
	return &AmountFlag{defaultValue}
}

// MarshalFlag satisfies the flags.Marshaler interface.
func (a *AmountFlag) MarshalFlag() (string, error) {
	return unit.Zec.Format(a.Amount), nil
}

// UnmarshalFlag satisfies the flags.Unmarshaler interface.
func (a *AmountFlag) UnmarshalFlag(value string) error {
	value = strings.TrimSuffix(value, " "+unit.Zec.String())
	amount, err := unit.Zec.ToZatoshis(value)
	if err != nil {
		return err
	}
	a.Amount = amount
	return nil
}
