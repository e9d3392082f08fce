package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/zcoldwallet/zcoldwallet/wallet"
)

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "nonces.json")

	require.NoError(t, writeFileAtomic(path, []byte("first"),
		secretFileMode))
	require.NoError(t, writeFileAtomic(path, []byte("second"),
		secretFileMode))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "second", string(data))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(secretFileMode), fi.Mode().Perm())

	// No temporary files are left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestArtifactFiles(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "checkpoint.json")
	cp := &wallet.Checkpoint{
		Height:      419200,
		Hash:        "00",
		Time:        1540779337,
		SaplingTree: "000000",
	}
	require.NoError(t, writeArtifact(path, cp, publicFileMode))

	var got wallet.Checkpoint
	require.NoError(t, readArtifact("checkpoint", path, &got))
	require.Equal(t, *cp, got)

	err := readArtifact("checkpoint", filepath.Join(t.TempDir(), "none"),
		&got)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseAndSetDebugLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		levels  string
		wantErr bool
	}{
		{name: "global", levels: "debug"},
		{name: "per subsystem", levels: "WLLT=trace,CHNS=warn"},
		{name: "bad level", levels: "loud", wantErr: true},
		{name: "bad subsystem", levels: "NOPE=info", wantErr: true},
		{name: "mixed", levels: "info,WLLT=debug", wantErr: true},
	}

	for _, test := range tests {
		err := parseAndSetDebugLevels(test.levels)
		if test.wantErr {
			require.Error(t, err, test.name)
			continue
		}
		require.NoError(t, err, test.name)
	}
}

func TestConfigBirthday(t *testing.T) {
	t.Parallel()

	cfg := &config{}
	when, err := cfg.birthday().Unpack()
	require.NoError(t, err)
	require.True(t, when.IsNone())

	cfg.Birthday = "2021-03-04"
	when, err = cfg.birthday().Unpack()
	require.NoError(t, err)
	want := time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)
	require.Equal(t, want, when.UnwrapOr(time.Time{}))

	cfg.Birthday = "04/03/2021"
	_, err = cfg.birthday().Unpack()
	require.Error(t, err)
}

func TestCommandArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cmd  string
		args int
		ok   bool
	}{
		{"generate", 0, true},
		{"generate", 1, false},
		{"init-account", 0, false},
		{"init-account", 1, true},
		{"prepare-tx", 2, false},
		{"prepare-tx", 3, true},
		{"multisig-merge", 1, false},
		{"multisig-merge", 5, true},
		{"multisig-combine", 3, false},
		{"multisig-combine", 6, true},
		{"multisig-sign", 5, false},
	}

	for _, test := range tests {
		cmd, ok := commands[test.cmd]
		require.True(t, ok, test.cmd)

		err := cmd.checkArgs(make([]string, test.args))
		if test.ok {
			require.NoError(t, err, "%s with %d", test.cmd, test.args)
		} else {
			require.ErrorIs(t, err, errUsage, "%s with %d",
				test.cmd, test.args)
		}
	}
}

func TestPrintCommands(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printCommands(&buf)
	for name := range commands {
		require.Contains(t, buf.String(), "  "+name+" ")
	}
}

func TestReportError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	reportError(&buf, "submit", &wallet.SubmitError{Code: -25,
		Message: "bad-txns"})
	require.Contains(t, buf.String(), "submit failed (")

	buf.Reset()
	reportError(&buf, "sync", errors.New("boom"))
	require.Equal(t, "sync failed: boom\n", buf.String())
}

func TestSigningLedgerFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := ledgerPath(filepath.Join(dir, "share-2.json"), 2)
	require.Equal(t, filepath.Join(dir, "signed-2.json"), path)

	// A signer that never signed has an empty ledger.
	ledger, err := readLedger(path, 2)
	require.NoError(t, err)
	require.Empty(t, ledger.Signed)

	session := uuid.New()
	ledger.Signed[session] = "00ff"
	require.NoError(t, writeArtifact(path, ledger, secretFileMode))

	reloaded, err := readLedger(path, 2)
	require.NoError(t, err)
	require.Equal(t, "00ff", reloaded.Signed[session])

	_, err = readLedger(path, 3)
	require.Error(t, err)
}
