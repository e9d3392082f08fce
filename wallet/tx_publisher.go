// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/zcoldwallet/zcoldwallet/shielded"
)

// Submit relays a raw transaction. A rejection by the relay is returned as
// a SubmitError and is never retried.
func (w *Wallet) Submit(ctx context.Context, raw []byte) (string, error) {
	if w.indexer == nil {
		return "", ErrNoIndexer
	}

	tx, err := shielded.ParseTransaction(raw)
	if err != nil {
		return "", &TxParseError{Artifact: "raw transaction", Err: err}
	}
	txid, err := tx.TxHash()
	if err != nil {
		return "", err
	}

	resp, err := w.indexer.SendTransaction(ctx, raw)
	if err != nil {
		return "", err
	}
	if resp.ErrorCode != 0 {
		return "", &SubmitError{Code: resp.ErrorCode,
			Message: resp.ErrorMessage}
	}

	log.Infof("Submitted transaction %v", txid)

	// The relay answers with the transaction id on success.
	if id := strings.TrimSpace(resp.ErrorMessage); id != "" {
		return id, nil
	}
	return txid.String(), nil
}

// DecodeRawTx decodes the hex text form of a raw transaction.
func DecodeRawTx(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, &TxParseError{Artifact: "raw transaction", Err: err}
	}
	return raw, nil
}
