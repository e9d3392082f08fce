// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/zcoldwallet/zcoldwallet/pkg/unit"
)

// ErrorKind identifies the variant of an Error.
type ErrorKind int

// These constants are used to identify a specific Error.
const (
	// KindNotEnoughFunds is the kind of NotEnoughFundsError.
	KindNotEnoughFunds ErrorKind = iota

	// KindDecode is the kind of DecodeError.
	KindDecode

	// KindProver is the kind of ProverError.
	KindProver

	// KindTxParse is the kind of TxParseError.
	KindTxParse

	// KindAccountNotInitialized is the kind of
	// AccountNotInitializedError.
	KindAccountNotInitialized

	// KindSubmit is the kind of SubmitError.
	KindSubmit

	// KindAggregation is the kind of AggregationError.
	KindAggregation
)

// Map of ErrorKind values back to their constant names for pretty printing.
var errorKindStrings = map[ErrorKind]string{
	KindNotEnoughFunds:        "NotEnoughFunds",
	KindDecode:                "Decode",
	KindProver:                "Prover",
	KindTxParse:               "TxParse",
	KindAccountNotInitialized: "AccountNotInitialized",
	KindSubmit:                "Submit",
	KindAggregation:           "AggregationFailed",
}

// String returns the ErrorKind as a human-readable name.
func (k ErrorKind) String() string {
	if s := errorKindStrings[k]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorKind (%d)", int(k))
}

// Error is a sealed interface implemented by every error the wallet
// operations return to their caller. Callers branch on Kind or use
// errors.As with the concrete variant to read its payload.
type Error interface {
	error

	// Kind returns the variant of the error.
	Kind() ErrorKind

	// isWalletError is a marker method that seals the interface.
	isWalletError()
}

// KindOf returns the kind of the wallet error wrapped by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var e Error
	if errors.As(err, &e) {
		return e.Kind(), true
	}
	return 0, false
}

// NotEnoughFundsError is returned when the spendable notes do not cover the
// amount and the fee.
type NotEnoughFundsError struct {
	Selected btcutil.Amount
	Required btcutil.Amount
	Unit     unit.Unit
}

func (e *NotEnoughFundsError) Error() string {
	return fmt.Sprintf("not enough funds: %s < %s %s",
		e.Unit.FromZatoshis(e.Selected), e.Unit.FromZatoshis(e.Required),
		e.Unit)
}

// Kind returns KindNotEnoughFunds.
func (*NotEnoughFundsError) Kind() ErrorKind { return KindNotEnoughFunds }
func (*NotEnoughFundsError) isWalletError()  {}

// DecodeError is returned for a malformed key, address, witness or note.
type DecodeError struct {
	// What names the kind of value that failed to decode.
	What string

	Input string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not decode %s %q: %v", e.What,
			e.Input, e.Err)
	}
	return fmt.Sprintf("could not decode %s %q", e.What, e.Input)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error { return e.Err }

// Kind returns KindDecode.
func (*DecodeError) Kind() ErrorKind { return KindDecode }
func (*DecodeError) isWalletError()  {}

// ProverError is returned when the proving parameters cannot be loaded.
type ProverError struct {
	Dir string
	Err error
}

func (e *ProverError) Error() string {
	return fmt.Sprintf("could not create prover from %s, did you "+
		"download the parameters? %v", e.Dir, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProverError) Unwrap() error { return e.Err }

// Kind returns KindProver.
func (*ProverError) Kind() ErrorKind { return KindProver }
func (*ProverError) isWalletError()  {}

// TxParseError is returned for a malformed or mismatched artifact.
type TxParseError struct {
	// Artifact names the artifact that could not be used.
	Artifact string

	Err error
}

func (e *TxParseError) Error() string {
	return fmt.Sprintf("could not parse %s: %v", e.Artifact, e.Err)
}

// Unwrap returns the underlying error.
func (e *TxParseError) Unwrap() error { return e.Err }

// Kind returns KindTxParse.
func (*TxParseError) Kind() ErrorKind { return KindTxParse }
func (*TxParseError) isWalletError()  {}

// AccountNotInitializedError is returned when syncing before an account was
// seeded from a checkpoint.
type AccountNotInitializedError struct{}

func (*AccountNotInitializedError) Error() string {
	return "account not initialized, did you use init-account?"
}

// Kind returns KindAccountNotInitialized.
func (*AccountNotInitializedError) Kind() ErrorKind {
	return KindAccountNotInitialized
}
func (*AccountNotInitializedError) isWalletError() {}

// SubmitError is returned when the relay rejects a transaction.
type SubmitError struct {
	Code    int32
	Message string
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("transaction rejected (code %d): %s", e.Code,
		e.Message)
}

// Kind returns KindSubmit.
func (*SubmitError) Kind() ErrorKind { return KindSubmit }
func (*SubmitError) isWalletError()  {}

// AggregationError is returned when the signature of an input cannot be
// aggregated or does not verify. No transaction is produced.
type AggregationError struct {
	// Input is the logical index of the failing input.
	Input int

	// Signers are the signer indices whose shares were used.
	Signers []uint32

	Err error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation failed for input %d with signers "+
		"%v: %v", e.Input, e.Signers, e.Err)
}

// Unwrap returns the underlying error.
func (e *AggregationError) Unwrap() error { return e.Err }

// Kind returns KindAggregation.
func (*AggregationError) Kind() ErrorKind { return KindAggregation }
func (*AggregationError) isWalletError()  {}
