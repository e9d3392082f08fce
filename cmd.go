// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/olekukonko/tablewriter"
	"github.com/zcoldwallet/zcoldwallet/chain"
	"github.com/zcoldwallet/zcoldwallet/frost"
	"github.com/zcoldwallet/zcoldwallet/internal/cfgutil"
	"github.com/zcoldwallet/zcoldwallet/internal/prompt"
	"github.com/zcoldwallet/zcoldwallet/internal/zero"
	"github.com/zcoldwallet/zcoldwallet/wallet"
	"github.com/zcoldwallet/zcoldwallet/walletdb"
)

// commandHandler runs one command with its positional arguments.
type commandHandler func(ctx context.Context, cfg *config, args []string) error

type command struct {
	handler commandHandler
	usage   string
	help    string

	// minArgs and maxArgs bound the number of arguments. A negative
	// maxArgs allows any number.
	minArgs int
	maxArgs int
}

// checkArgs validates the number of arguments.
func (c *command) checkArgs(args []string) error {
	if len(args) < c.minArgs || (c.maxArgs >= 0 && len(args) > c.maxArgs) {
		return errUsage
	}
	return nil
}

var commands = map[string]command{
	"generate": {
		handler: generateKey,
		help:    "Generate a spending key from a fresh 24 word mnemonic",
	},
	"restore": {
		handler: restoreKey,
		help:    "Derive the keys of a mnemonic read from stdin",
	},
	"init-db": {
		handler: initDB,
		help:    "Create the block cache and note index",
	},
	"init-account": {
		handler: initAccount,
		usage:   "<viewing key>",
		help: "Watch a viewing key from --height, --birthday or the " +
			"chain tip",
		minArgs: 1, maxArgs: 1,
	},
	"sync": {
		handler: syncWallet,
		help:    "Fetch new blocks and scan them",
	},
	"get-balance": {
		handler: getBalance,
		help:    "Show the total and spendable balance",
	},
	"list-notes": {
		handler: listNotes,
		help:    "List the received notes",
	},
	"check-address": {
		handler: checkAddress,
		usage:   "<address>",
		help:    "Check a payment address for the network",
		minArgs: 1, maxArgs: 1,
	},
	"prepare-tx": {
		handler: prepareTx,
		usage:   "<address> <amount> <tx file>",
		help:    "Select notes for a payment and write the proposal",
		minArgs: 3, maxArgs: 3,
	},
	"sign": {
		handler: signTx,
		usage:   "<tx file> <raw tx file>",
		help:    "Sign a proposal with a spending key",
		minArgs: 2, maxArgs: 2,
	},
	"submit": {
		handler: submitTx,
		usage:   "<raw tx file>",
		help:    "Submit a signed transaction",
		minArgs: 1, maxArgs: 1,
	},
	"multisig-gen": {
		handler: multisigGen,
		usage:   "<n> <t> <directory>",
		help: "Deal a t-of-n group key into group.json and one " +
			"share file per signer",
		minArgs: 3, maxArgs: 3,
	},
	"multisig-prepare": {
		handler: multisigPrepare,
		usage:   "<share file> <tx file> <commitments file> <nonces file>",
		help:    "Commit to a proposal and keep the secret nonces",
		minArgs: 4, maxArgs: 4,
	},
	"multisig-merge": {
		handler: multisigMerge,
		usage:   "<tx file> <commitments file>...",
		help:    "Merge the commitments of the signers",
		minArgs: 2, maxArgs: -1,
	},
	"multisig-presign": {
		handler: multisigPresign,
		usage:   "<tx file> <txbin file>",
		help:    "Prove a merged proposal for signing",
		minArgs: 2, maxArgs: 2,
	},
	"multisig-sign": {
		handler: multisigSign,
		usage: "<share file> <nonces file> <txbin file> " +
			"<signature file>",
		help: "Sign a proved transaction, consuming the nonces and " +
			"recording the session in signed-<index>.json next to " +
			"the share",
		minArgs: 4, maxArgs: 4,
	},
	"multisig-combine": {
		handler: multisigCombine,
		usage: "<group file> <txbin file> <raw tx file> " +
			"<signature file>...",
		help:    "Aggregate the signature shares into a signed transaction",
		minArgs: 4, maxArgs: -1,
	},
}

// checkCreateDir checks that the path exists and is a directory.
// If path does not exist, it is created.
func checkCreateDir(path string) error {
	if fi, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			// Attempt data directory creation
			if err = os.MkdirAll(path, 0700); err != nil {
				return fmt.Errorf("cannot create directory: %s", err)
			}
		} else {
			return fmt.Errorf("error checking directory: %s", err)
		}
	} else {
		if !fi.IsDir() {
			return fmt.Errorf("path '%s' is not a directory", path)
		}
	}

	return nil
}

// openStore opens the note index database.
func openStore(ctx context.Context, cfg *config) (*walletdb.SQLStore, error) {
	if cfg.DBDriver == walletdb.DriverSQLite {
		if err := checkCreateDir(filepath.Dir(cfg.DBDSN)); err != nil {
			return nil, err
		}
	}
	return walletdb.Open(ctx, cfg.DBDriver, cfg.DBDSN)
}

// openWallet opens the wallet, connected to the lightnode when online is
// set. The returned function releases both.
func openWallet(ctx context.Context, cfg *config,
	online bool) (*wallet.Wallet, func(), error) {

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			log.Errorf("Cannot close database: %v", err)
		}
	}

	var indexer chain.Indexer
	if online {
		client, err := chain.NewLightClient(cfg.Lightnode.Value)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		indexer = client
		closeStore := cleanup
		cleanup = func() {
			client.Close()
			closeStore()
		}
	}

	w, err := wallet.New(cfg.walletConfig(), store, indexer)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return w, cleanup, nil
}

// printArtifact writes v as JSON to stdout.
func printArtifact(v any) error {
	data, err := wallet.EncodeArtifact(v)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

// readSecret reads a secret from file or, when file is empty, prompts for
// it. The caller must zero the returned bytes.
func readSecret(file, prefix string) ([]byte, error) {
	if file != "" {
		data, err := os.ReadFile(cleanAndExpandPath(file))
		if err != nil {
			return nil, err
		}
		secret := bytes.TrimSpace(data)
		if len(secret) != len(data) {
			defer zero.Bytes(data)
			secret = append([]byte(nil), secret...)
		}
		return secret, nil
	}
	return prompt.Secret(bufio.NewReader(os.Stdin), prefix)
}

// readShare reads and verifies a secret share. The caller must zero it.
func readShare(path string) (*frost.SecretShare, error) {
	var share frost.SecretShare
	if err := readArtifact("secret share", path, &share); err != nil {
		return nil, err
	}
	return &share, nil
}

// ledgerPath returns the signing ledger file kept next to a share file.
func ledgerPath(shareFile string, index uint32) string {
	return filepath.Join(filepath.Dir(shareFile),
		fmt.Sprintf("signed-%d.json", index))
}

// readLedger reads a signing ledger. A missing file is an empty ledger.
func readLedger(path string, index uint32) (*wallet.SigningLedger, error) {
	exists, err := cfgutil.FileExists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return wallet.NewSigningLedger(index), nil
	}

	var ledger wallet.SigningLedger
	if err := readArtifact("signing ledger", path, &ledger); err != nil {
		return nil, err
	}
	if ledger.Index != index {
		return nil, fmt.Errorf("%s belongs to signer %d, not %d", path,
			ledger.Index, index)
	}
	return &ledger, nil
}

// readRawTx reads a hex encoded transaction.
func readRawTx(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read raw transaction: %w", err)
	}
	return wallet.DecodeRawTx(string(data))
}

// writeRawTx writes a transaction as hex.
func writeRawTx(path string, raw []byte) error {
	return writeFileAtomic(path, []byte(hex.EncodeToString(raw)+"\n"),
		publicFileMode)
}

func generateKey(_ context.Context, cfg *config, _ []string) error {
	key, err := wallet.GenerateKey(cfg.walletConfig())
	if err != nil {
		return err
	}
	return printArtifact(key)
}

func restoreKey(_ context.Context, cfg *config, _ []string) error {
	mnemonic, err := readSecret(cfg.KeyFile, "Enter the mnemonic")
	if err != nil {
		return err
	}
	defer zero.Bytes(mnemonic)

	key, err := wallet.KeyFromMnemonic(cfg.walletConfig(), string(mnemonic))
	if err != nil {
		return err
	}
	return printArtifact(key)
}

func initDB(ctx context.Context, cfg *config, _ []string) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.CreateSchema(ctx); err != nil {
		return err
	}
	log.Infof("Initialized %s database", cfg.DBDriver)
	return nil
}

func initAccount(ctx context.Context, cfg *config, args []string) error {
	birthday, err := cfg.birthday().Unpack()
	if err != nil {
		return err
	}
	height := fn.None[uint32]()
	if cfg.Height != nil {
		height = fn.Some(*cfg.Height)
	}

	w, cleanup, err := openWallet(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer cleanup()

	cp, err := w.InitAccount(ctx, args[0], height, birthday)
	if err != nil {
		return err
	}
	return printArtifact(wallet.NewCheckpoint(cp))
}

func syncWallet(ctx context.Context, cfg *config, _ []string) error {
	start := fn.None[uint32]()
	if cfg.Start != nil {
		start = fn.Some(*cfg.Start)
	}

	w, cleanup, err := openWallet(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := w.Sync(ctx, start)
	if err != nil {
		return err
	}
	fmt.Printf("Synced %d %s\n", n, pickNoun(int(n), "block", "blocks"))
	return nil
}

func getBalance(ctx context.Context, cfg *config, _ []string) error {
	w, cleanup, err := openWallet(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	b, err := w.Balance(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Total:     %s\n", cfg.Unit.Format(b.Total))
	fmt.Printf("Spendable: %s\n", cfg.Unit.Format(b.Spendable))
	return nil
}

func listNotes(ctx context.Context, cfg *config, _ []string) error {
	w, cleanup, err := openWallet(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	notes, err := w.ListNotes(ctx)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Position", "Height", "Value", "Spent"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, n := range notes {
		var spent string
		n.SpentHeight.WhenSome(func(h uint32) {
			spent = strconv.FormatUint(uint64(h), 10)
		})
		table.Append([]string{
			strconv.FormatUint(n.Position, 10),
			strconv.FormatUint(uint64(n.Height), 10),
			cfg.Unit.Format(n.Value),
			spent,
		})
	}
	table.Render()
	return nil
}

func checkAddress(_ context.Context, cfg *config, args []string) error {
	if _, err := wallet.CheckAddress(cfg.walletConfig(), args[0]); err != nil {
		return err
	}
	fmt.Printf("%s is a valid %s address\n", args[0], activeNet.Name)
	return nil
}

func prepareTx(ctx context.Context, cfg *config, args []string) error {
	w, cleanup, err := openWallet(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	tx, err := w.PrepareTx(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	return writeArtifact(args[2], tx, publicFileMode)
}

func signTx(_ context.Context, cfg *config, args []string) error {
	var tx wallet.Tx
	if err := readArtifact("transaction", args[0], &tx); err != nil {
		return err
	}

	key, err := readSecret(cfg.KeyFile, "Enter the spending key")
	if err != nil {
		return err
	}
	defer zero.Bytes(key)

	raw, err := wallet.SignTx(cfg.walletConfig(), string(key), &tx)
	if err != nil {
		return err
	}
	return writeRawTx(args[1], raw)
}

func submitTx(ctx context.Context, cfg *config, args []string) error {
	raw, err := readRawTx(args[0])
	if err != nil {
		return err
	}

	w, cleanup, err := openWallet(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer cleanup()

	txid, err := w.Submit(ctx, raw)
	if err != nil {
		return err
	}
	fmt.Println(txid)
	return nil
}

func multisigGen(_ context.Context, cfg *config, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid signer count: %w", err)
	}
	t, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid threshold: %w", err)
	}
	dir := args[2]

	groupFile := filepath.Join(dir, "group.json")
	exists, err := cfgutil.FileExists(groupFile)
	if err != nil {
		return err
	}
	if exists {
		overwrite, err := prompt.Confirm(bufio.NewReader(os.Stdin),
			groupFile+" exists. Replace the group and its shares?",
			"no")
		if err != nil {
			return err
		}
		if !overwrite {
			return fmt.Errorf("%s exists", groupFile)
		}
	}

	group, err := wallet.MultisigGen(cfg.walletConfig(), n, t)
	if err != nil {
		return err
	}
	defer zero.SecretShares(group.Shares)

	for _, share := range group.Shares {
		path := filepath.Join(dir, fmt.Sprintf("share-%d.json",
			share.Index))
		if err := writeArtifact(path, share, secretFileMode); err != nil {
			return err
		}
	}
	if err := writeArtifact(groupFile, group, publicFileMode); err != nil {
		return err
	}

	fmt.Printf("Viewing key: %s\n", group.ViewingKey)
	fmt.Printf("Address:     %s\n", group.Address)
	return nil
}

func multisigPrepare(_ context.Context, cfg *config, args []string) error {
	share, err := readShare(args[0])
	if err != nil {
		return err
	}
	defer zero.SecretShares([]*frost.SecretShare{share})

	var tx wallet.Tx
	if err := readArtifact("transaction", args[1], &tx); err != nil {
		return err
	}

	committed, nonces, err := wallet.MakeCommitments(cfg.walletConfig(),
		share, &tx)
	if err != nil {
		return err
	}

	// The nonces are stored before the commitments are published.
	if err := writeArtifact(args[3], nonces, secretFileMode); err != nil {
		return err
	}
	return writeArtifact(args[2], committed, publicFileMode)
}

func multisigMerge(_ context.Context, _ *config, args []string) error {
	txs := make([]*wallet.Tx, 0, len(args)-1)
	for _, path := range args[1:] {
		var tx wallet.Tx
		if err := readArtifact("commitments", path, &tx); err != nil {
			return err
		}
		txs = append(txs, &tx)
	}

	merged, err := wallet.MergeCommitments(txs...)
	if err != nil {
		return err
	}
	return writeArtifact(args[0], merged, publicFileMode)
}

func multisigPresign(_ context.Context, cfg *config, args []string) error {
	var tx wallet.Tx
	if err := readArtifact("transaction", args[0], &tx); err != nil {
		return err
	}

	bin, err := wallet.PreMultiSign(cfg.walletConfig(), &tx)
	if err != nil {
		return err
	}
	return writeArtifact(args[1], bin, publicFileMode)
}

func multisigSign(_ context.Context, _ *config, args []string) error {
	share, err := readShare(args[0])
	if err != nil {
		return err
	}
	defer zero.SecretShares([]*frost.SecretShare{share})

	noncesFile := args[1]
	var nonces wallet.SignerNonces
	if err := readArtifact("nonces", noncesFile, &nonces); err != nil {
		return err
	}
	var bin wallet.TxBin
	if err := readArtifact("txbin", args[2], &bin); err != nil {
		return err
	}

	ledgerFile := ledgerPath(args[0], share.Index)
	ledger, err := readLedger(ledgerFile, share.Index)
	if err != nil {
		return err
	}

	wasConsumed := nonces.Consumed()
	_, wasRecorded := ledger.Signed[bin.Session]
	shares, signErr := wallet.MultiSignOne(&bin, &nonces, share, ledger)

	// The ledger and the nonces file are updated before any share leaves,
	// so a crash can never lead to signing twice with the same nonces.
	if _, recorded := ledger.Signed[bin.Session]; recorded && !wasRecorded {
		err := writeArtifact(ledgerFile, ledger, secretFileMode)
		if err != nil {
			return fmt.Errorf("cannot update signing ledger: %w", err)
		}
	}
	if !wasConsumed && nonces.Consumed() {
		err := writeArtifact(noncesFile, &nonces, secretFileMode)
		if err != nil {
			return fmt.Errorf("cannot mark nonces consumed: %w", err)
		}
	}
	if signErr != nil {
		return signErr
	}
	return writeArtifact(args[3], shares, publicFileMode)
}

func multisigCombine(_ context.Context, _ *config, args []string) error {
	var group wallet.GroupKey
	if err := readArtifact("group", args[0], &group); err != nil {
		return err
	}
	var bin wallet.TxBin
	if err := readArtifact("txbin", args[1], &bin); err != nil {
		return err
	}

	shares := make([]*wallet.SignatureShares, 0, len(args)-3)
	for _, path := range args[3:] {
		var s wallet.SignatureShares
		err := readArtifact("signature shares", path, &s)
		if err != nil {
			return err
		}
		shares = append(shares, &s)
	}

	raw, err := wallet.Combine(&bin, group.PublicKeys, shares)
	if err != nil {
		return err
	}
	return writeRawTx(args[2], raw)
}
