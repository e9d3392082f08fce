package wallet

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"github.com/zcoldwallet/zcoldwallet/chain"
	"github.com/zcoldwallet/zcoldwallet/netparams"
	"github.com/zcoldwallet/zcoldwallet/pkg/unit"
	"github.com/zcoldwallet/zcoldwallet/shielded"
	"github.com/zcoldwallet/zcoldwallet/walletdb"
)

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()

	require.Error(t, err)
	got, ok := KindOf(err)
	require.True(t, ok, "not a wallet error: %v", err)
	require.Equal(t, kind, got, "%v", err)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := &Config{Params: &netparams.SimNetParams}
	require.ErrorIs(t, cfg.Validate(), ErrZeroReorgMargin)

	cfg = &Config{ReorgMargin: 1}
	require.ErrorIs(t, cfg.Validate(), ErrNoParams)

	cfg = &Config{Params: &netparams.SimNetParams, ReorgMargin: 1}
	require.NoError(t, cfg.Validate())
	require.Equal(t, shielded.DefaultFee, cfg.Fee)
	require.Equal(t, uint32(DefaultMaxBlocks), cfg.MaxBlocks)
	require.NotNil(t, cfg.Rand)
	require.NotEmpty(t, cfg.ParamsDir)

	_, err := New(&Config{Params: &netparams.SimNetParams}, nil, nil)
	require.ErrorIs(t, err, ErrZeroReorgMargin)
}

func TestSyncStart(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cached  fn.Option[uint32]
		scanned fn.Option[uint32]
		want    uint32
	}{
		{
			name:    "cache and index at the same height",
			cached:  fn.Some(uint32(999)),
			scanned: fn.Some(uint32(999)),
			want:    1000,
		},
		{
			name:    "empty cache",
			scanned: fn.Some(uint32(999)),
			want:    1000,
		},
		{
			name:    "cache ahead of the index",
			cached:  fn.Some(uint32(1200)),
			scanned: fn.Some(uint32(999)),
			want:    1201,
		},
		{
			name:    "no account",
			cached:  fn.Some(uint32(1200)),
			want:    1201,
		},
		{
			name: "nothing",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			store := newTestStore(t)
			w, err := New(testConfig(), store, nil)
			require.NoError(t, err)

			test.scanned.WhenSome(func(h uint32) {
				err := store.InitAccount(ctx, walletdb.InitAccountParams{
					ViewingKey: "vk",
					Block: walletdb.BlockInfo{
						Height:      h,
						Hash:        []byte{1},
						SaplingTree: []byte{0, 0, 0},
					},
				})
				require.NoError(t, err)
			})
			test.cached.WhenSome(func(h uint32) {
				err := store.PutCompactBlocks(ctx, []walletdb.CachedBlock{
					{Height: h, Data: []byte{}},
				})
				require.NoError(t, err)
			})

			start, err := w.SyncStart(ctx)
			if test.want == 0 {
				requireKind(t, err, KindAccountNotInitialized)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.want, start)
		})
	}
}

func TestInitAccount(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	key := testKey(t, h.cfg)

	// Nothing works before the account exists.
	_, err := h.w.Balance(h.ctx)
	requireKind(t, err, KindAccountNotInitialized)
	_, err = h.w.Sync(h.ctx, noHeight())
	requireKind(t, err, KindAccountNotInitialized)

	_, err = h.w.InitAccount(h.ctx, "zxviewregtestsapling1bogus",
		noHeight(), noDate())
	requireKind(t, err, KindDecode)

	// Without a height or date the account starts at the tip.
	h.chain.mineEmpty(2)
	cp, err := h.w.InitAccount(h.ctx, key.ViewingKey, noHeight(),
		noDate())
	require.NoError(t, err)
	require.Equal(t, uint32(simBase+2), cp.Height)
	require.Equal(t, blockHash(simBase+2), cp.Hash)

	_, err = h.w.InitAccount(h.ctx, key.ViewingKey, noHeight(), noDate())
	require.True(t, walletdb.IsError(err, walletdb.ErrAccountExists))

	offline, err := New(testConfig(), newTestStore(t), nil)
	require.NoError(t, err)
	_, err = offline.InitAccount(h.ctx, key.ViewingKey, noHeight(),
		noDate())
	require.ErrorIs(t, err, ErrNoIndexer)
}

func TestInitAccountBadTree(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tree string
	}{
		{"bad hex", "zz"},
		{"bad flag", "020000"},
		{"trailing", "00000000"},
	}
	for _, test := range tests {
		h := newHarness(t)
		key := testKey(t, h.cfg)

		h.chain.mu.Lock()
		h.chain.trees[h.chain.tip] = test.tree
		h.chain.mu.Unlock()

		_, err := h.w.InitAccount(h.ctx, key.ViewingKey, noHeight(),
			noDate())
		requireKind(t, err, KindDecode)

		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr, test.name)
		require.Equal(t, "sapling tree", decodeErr.What, test.name)
		require.Equal(t, test.tree, decodeErr.Input, test.name)

		// Nothing was stored.
		_, err = h.w.Balance(h.ctx)
		requireKind(t, err, KindAccountNotInitialized)
	}
}

func TestSyncAndScan(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	key := testKey(t, h.cfg)
	h.initAccount(key.ViewingKey)

	// Notes to someone else are not picked up.
	other, err := GenerateKey(h.cfg)
	require.NoError(t, err)
	h.fund(other.Address, 5000)
	h.fund(key.Address, 50000, 70000)

	synced := h.sync()
	require.Equal(t, uint32(h.chain.tip-uint64(h.cfg.ReorgMargin)-simBase),
		synced)

	b := h.balance()
	require.Equal(t, btcutil.Amount(120000), b.Total)
	require.Equal(t, btcutil.Amount(120000), b.Spendable)

	notes, err := h.w.ListNotes(h.ctx)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	require.Equal(t, uint64(1), notes[0].Position)
	require.Equal(t, uint64(2), notes[1].Position)
	require.True(t, notes[0].SpentHeight.IsNone())

	// Scanning again changes nothing.
	scanned, err := h.w.Scan(h.ctx)
	require.NoError(t, err)
	require.Zero(t, scanned)
	again, err := h.w.ListNotes(h.ctx)
	require.NoError(t, err)
	require.Equal(t, notes, again)
	require.Equal(t, b, h.balance())

	// Nothing new below the margin.
	require.Zero(t, h.sync())

	// A fresh note is counted but not spendable until it is buried.
	h.chain.mine(h.chain.fund(mustAddress(t, h.cfg, key.Address), 3000))
	h.chain.mineEmpty(int(h.cfg.ReorgMargin))
	require.Equal(t, uint32(2), h.sync())
	b = h.balance()
	require.Equal(t, btcutil.Amount(123000), b.Total)
	require.Equal(t, btcutil.Amount(120000), b.Spendable)
}

func mustAddress(t *testing.T, cfg *Config,
	addr string) shielded.PaymentAddress {

	t.Helper()

	to, err := CheckAddress(cfg, addr)
	require.NoError(t, err)
	return *to
}

func TestSyncMaxBlocks(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.cfg.MaxBlocks = 4
	key := testKey(t, h.cfg)
	h.initAccount(key.ViewingKey)
	h.chain.mineEmpty(20)

	// The range is closed, so one sync covers MaxBlocks+1 blocks.
	require.Equal(t, uint32(5), h.sync())
	start, err := h.w.SyncStart(h.ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(simBase+6), start)

	_, err = h.w.Sync(h.ctx, someHeight(simBase+6))
	require.NoError(t, err)
	_, last, err := h.w.scanRange(h.ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(simBase+10), last)
}

func TestScanRejectsForeignChain(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	key := testKey(t, h.cfg)
	h.initAccount(key.ViewingKey)

	block := &chain.CompactBlock{
		Height:   simBase + 1,
		Hash:     blockHash(simBase + 1),
		PrevHash: bytes.Repeat([]byte{0xee}, 32),
	}
	data, err := block.Marshal()
	require.NoError(t, err)
	err = h.w.store.PutCompactBlocks(h.ctx, []walletdb.CachedBlock{
		{Height: simBase + 1, Data: data},
	})
	require.NoError(t, err)

	_, err = h.w.Scan(h.ctx)
	require.ErrorIs(t, err, ErrPrevHashMismatch)

	_, last, err := h.w.scanRange(h.ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(simBase), last)
}

func TestPrepareTx(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	key := testKey(t, h.cfg)
	h.initAccount(key.ViewingKey)
	h.fund(key.Address, 50000, 70000)
	h.sync()

	t.Run("exact balance", func(t *testing.T) {
		tx, err := h.w.PrepareTx(h.ctx, key.Address, "110000")
		require.NoError(t, err)
		require.Len(t, tx.Inputs, 2)
		require.Equal(t, uint64(110000), tx.Output.Amount)
		require.Equal(t, key.Address, tx.Output.Addr)

		var sum uint64
		for _, in := range tx.Inputs {
			sum += in.Amount
			require.Equal(t, key.ViewingKey, in.FVK)
			require.True(t, in.Z212)
			require.Empty(t, in.Multisigs)
		}
		require.Equal(t, uint64(120000), sum)
	})

	t.Run("one zatoshi short", func(t *testing.T) {
		_, err := h.w.PrepareTx(h.ctx, key.Address, "110001")
		requireKind(t, err, KindNotEnoughFunds)

		var nef *NotEnoughFundsError
		require.True(t, errors.As(err, &nef))
		require.Equal(t, btcutil.Amount(120000), nef.Selected)
		require.Equal(t, btcutil.Amount(120001), nef.Required)
		require.Equal(t, unit.Zat, nef.Unit)
	})

	t.Run("deterministic selection", func(t *testing.T) {
		a, err := h.w.PrepareTx(h.ctx, key.Address, "50000")
		require.NoError(t, err)
		b, err := h.w.PrepareTx(h.ctx, key.Address, "50000")
		require.NoError(t, err)

		require.Len(t, a.Inputs, 1)
		require.Equal(t, uint64(70000), a.Inputs[0].Amount)
		require.Equal(t, a.Inputs, b.Inputs)
		require.NotEqual(t, a.Session, b.Session)
	})

	t.Run("bad input", func(t *testing.T) {
		tests := []struct {
			name   string
			to     string
			amount string
			err    error
		}{
			{"bad address", "zregtestsapling1xyz", "1", nil},
			{"wrong network", mustEncodeTestnet(t, key), "1", nil},
			{"transparent", "tmEZhbWHTpdKMw5it8YDspUXSMGQyFwovpU", "1",
				ErrTransparentDestination},
			{"fractional zatoshi", key.Address, "1.5", nil},
			{"negative", key.Address, "-3", nil},
		}
		for _, test := range tests {
			_, err := h.w.PrepareTx(h.ctx, test.to, test.amount)
			requireKind(t, err, KindDecode)
			if test.err != nil {
				require.ErrorIs(t, err, test.err, test.name)
			}
		}
	})
}

// mustEncodeTestnet returns the address of key on the test network.
func mustEncodeTestnet(t *testing.T, key *GeneratedKey) string {
	t.Helper()

	addr := mustAddress(t, testConfig(), key.Address)
	s, err := shielded.EncodePaymentAddress(
		netparams.TestNetParams.HRPSaplingPaymentAddress, &addr,
	)
	require.NoError(t, err)
	return s
}

func TestSignAndSubmit(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	key := testKey(t, h.cfg)
	h.initAccount(key.ViewingKey)
	h.fund(key.Address, 50000, 70000)
	h.sync()

	tx, err := h.w.PrepareTx(h.ctx, key.Address, "100000")
	require.NoError(t, err)

	// The proposal travels to the offline signer as JSON.
	data, err := EncodeArtifact(tx)
	require.NoError(t, err)
	var offline Tx
	require.NoError(t, ParseArtifact("transaction", data, &offline))

	raw, err := SignTx(h.cfg, key.SpendingKey, &offline)
	require.NoError(t, err)

	signed, err := shielded.ParseTransaction(raw)
	require.NoError(t, err)
	require.Len(t, signed.Spends, 2)
	require.Len(t, signed.Outputs, 2)
	require.NoError(t, testProver().Verify(signed))

	// A rejected transaction is surfaced with the relay's code.
	h.chain.reject = &chain.SendResponse{ErrorCode: -25,
		ErrorMessage: "bad-txns-spend"}
	_, err = h.w.Submit(h.ctx, raw)
	requireKind(t, err, KindSubmit)
	var se *SubmitError
	require.True(t, errors.As(err, &se))
	require.Equal(t, int32(-25), se.Code)
	require.Equal(t, "bad-txns-spend", se.Message)
	h.chain.reject = nil

	txid, err := h.w.Submit(h.ctx, raw)
	require.NoError(t, err)
	want, err := signed.TxHash()
	require.NoError(t, err)
	require.Equal(t, want.String(), txid)

	h.chain.mine()
	h.chain.mineEmpty(AnchorOffset + int(h.cfg.ReorgMargin))
	h.sync()

	// Both notes are spent and the payment and change came back.
	b := h.balance()
	require.Equal(t, btcutil.Amount(110000), b.Total)
	require.Equal(t, btcutil.Amount(110000), b.Spendable)

	notes, err := h.w.ListNotes(h.ctx)
	require.NoError(t, err)
	require.Len(t, notes, 4)
	var spent int
	for _, n := range notes {
		if n.SpentHeight.IsSome() {
			spent++
		}
	}
	require.Equal(t, 2, spent)
}

// TestSpendManyNotesPerBlock spends notes whose witnesses were updated by
// later commitments of the same block, leaving partly filled subtrees.
func TestSpendManyNotesPerBlock(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	key := testKey(t, h.cfg)
	h.initAccount(key.ViewingKey)
	h.fund(key.Address, 10000, 20000, 30000, 40000)
	h.fund(key.Address, 5000, 6000, 7000)
	h.sync()
	require.Equal(t, btcutil.Amount(118000), h.balance().Spendable)

	// 100000 plus the fee needs all but the smallest note.
	tx, err := h.w.PrepareTx(h.ctx, key.Address, "100000")
	require.NoError(t, err)
	require.Len(t, tx.Inputs, 6)

	raw, err := SignTx(h.cfg, key.SpendingKey, tx)
	require.NoError(t, err)
	signed, err := shielded.ParseTransaction(raw)
	require.NoError(t, err)
	require.Len(t, signed.Spends, 6)
	require.NoError(t, testProver().Verify(signed))

	_, err = h.w.Submit(h.ctx, raw)
	require.NoError(t, err)
	h.chain.mine()
	h.chain.mineEmpty(AnchorOffset + int(h.cfg.ReorgMargin))
	h.sync()

	b := h.balance()
	require.Equal(t, btcutil.Amount(108000), b.Total)
	require.Equal(t, btcutil.Amount(108000), b.Spendable)
}

func TestSignTxErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	key := testKey(t, h.cfg)
	h.initAccount(key.ViewingKey)
	h.fund(key.Address, 50000)
	h.sync()

	tx, err := h.w.PrepareTx(h.ctx, key.Address, "1000")
	require.NoError(t, err)

	_, err = SignTx(h.cfg, "secret-extended-key-regtest1bogus", tx)
	requireKind(t, err, KindDecode)

	other, err := GenerateKey(h.cfg)
	require.NoError(t, err)
	_, err = SignTx(h.cfg, other.SpendingKey, tx)
	require.ErrorIs(t, err, ErrKeyMismatch)

	noParams := *h.cfg
	noParams.Prover = nil
	noParams.ParamsDir = t.TempDir()
	_, err = SignTx(&noParams, key.SpendingKey, tx)
	requireKind(t, err, KindProver)
	require.ErrorIs(t, err, shielded.ErrParamsNotFound)

	bad := *tx
	bad.Inputs = append([]TxIn(nil), tx.Inputs...)
	bad.Inputs[0].Witness = "zz"
	_, err = SignTx(h.cfg, key.SpendingKey, &bad)
	requireKind(t, err, KindDecode)

	bad.Output = nil
	_, err = SignTx(h.cfg, key.SpendingKey, &bad)
	requireKind(t, err, KindTxParse)

	_, err = h.w.Submit(h.ctx, []byte("garbage"))
	requireKind(t, err, KindTxParse)
}

func TestGenerateKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Rand = bytes.NewReader(bytes.Repeat([]byte{7}, 32))
	key, err := GenerateKey(cfg)
	require.NoError(t, err)
	require.Len(t, strings.Fields(key.Mnemonic), 24)

	restored, err := KeyFromMnemonic(cfg, key.Mnemonic)
	require.NoError(t, err)
	require.Equal(t, key, restored)

	_, err = CheckAddress(cfg, key.Address)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(key.ViewingKey,
		cfg.Params.HRPSaplingExtendedFullViewingKey))

	_, err = KeyFromMnemonic(cfg, "not a mnemonic")
	requireKind(t, err, KindDecode)

	// The test account is stable across runs.
	require.Equal(t, testKey(t, cfg), testKey(t, cfg))
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	err := &NotEnoughFundsError{Selected: 120000, Required: 120001,
		Unit: unit.MilliZec}
	require.Equal(t, "not enough funds: 1.2 < 1.20001 mZEC", err.Error())
	require.Equal(t, "NotEnoughFunds", err.Kind().String())
	require.Equal(t, "AggregationFailed", KindAggregation.String())

	_, ok := KindOf(errors.New("plain"))
	require.False(t, ok)
}
