// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package unit provides the display units used for shielded amounts.
package unit

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
)

const (
	// ZatoshiPerMilliZec is the number of zatoshis in one mZEC.
	ZatoshiPerMilliZec = 100_000

	// ZatoshiPerZec is the number of zatoshis in one ZEC.
	ZatoshiPerZec = 100_000_000
)

var (
	// ErrUnknownUnit is returned when a unit name is not one of Zat,
	// MilliZec or Zec.
	ErrUnknownUnit = errors.New("unit must be one of Zat, MilliZec or Zec")

	// ErrInvalidAmount is returned when an amount string is not a
	// non-negative decimal number.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrFractionalZatoshi is returned when an amount has more decimal
	// places than the unit allows.
	ErrFractionalZatoshi = errors.New("amount is not a whole number of " +
		"zatoshis")
)

// Unit is a display unit for shielded amounts. The zero value is Zec.
type Unit int

const (
	// Zec is the whole coin.
	Zec Unit = iota

	// MilliZec is one thousandth of a coin.
	MilliZec

	// Zat is the indivisible base unit.
	Zat
)

// ParseUnit returns the unit with the passed name.
func ParseUnit(s string) (Unit, error) {
	switch s {
	case "Zat":
		return Zat, nil
	case "MilliZec":
		return MilliZec, nil
	case "Zec":
		return Zec, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, s)
	}
}

// Name returns the name ParseUnit accepts for the unit.
func (u Unit) Name() string {
	switch u {
	case Zat:
		return "Zat"
	case MilliZec:
		return "MilliZec"
	default:
		return "Zec"
	}
}

// String returns the symbol used when displaying amounts in this unit.
func (u Unit) String() string {
	switch u {
	case Zat:
		return "zatoshis"
	case MilliZec:
		return "mZEC"
	default:
		return "ZEC"
	}
}

// zatoshis returns the number of zatoshis in one of this unit.
func (u Unit) zatoshis() int64 {
	switch u {
	case Zat:
		return 1
	case MilliZec:
		return ZatoshiPerMilliZec
	default:
		return ZatoshiPerZec
	}
}

// ToZatoshis converts a decimal amount expressed in this unit to zatoshis.
// The conversion is exact; amounts that would need rounding are rejected.
func (u Unit) ToZatoshis(amount string) (btcutil.Amount, error) {
	amount = strings.TrimSpace(amount)
	if !isDecimal(amount) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	r, ok := new(big.Rat).SetString(amount)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	r.Mul(r, new(big.Rat).SetInt64(u.zatoshis()))
	if !r.IsInt() {
		return 0, fmt.Errorf("%w: %q %v", ErrFractionalZatoshi, amount,
			u)
	}
	if !r.Num().IsInt64() || r.Num().Int64() > btcutil.MaxSatoshi {
		return 0, fmt.Errorf("%w: %q exceeds the money supply",
			ErrInvalidAmount, amount)
	}

	return btcutil.Amount(r.Num().Int64()), nil
}

// isDecimal reports whether s is a plain unsigned decimal number with at most
// one decimal point.
func isDecimal(s string) bool {
	var digits, points int
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			points++
		default:
			return false
		}
	}
	return digits > 0 && points <= 1
}

// FromZatoshis formats a zatoshi amount in this unit without trailing zeros.
func (u Unit) FromZatoshis(a btcutil.Amount) string {
	r := big.NewRat(int64(a), u.zatoshis())
	s := r.FloatString(8)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

// Format returns the amount in this unit followed by the unit symbol.
func (u Unit) Format(a btcutil.Amount) string {
	return u.FromZatoshis(a) + " " + u.String()
}

// MarshalFlag satisfies the flags.Marshaler interface.
func (u Unit) MarshalFlag() (string, error) {
	return u.Name(), nil
}

// UnmarshalFlag satisfies the flags.Unmarshaler interface.
func (u *Unit) UnmarshalFlag(value string) error {
	parsed, err := ParseUnit(value)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
