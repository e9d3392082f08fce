package walletdb_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"github.com/zcoldwallet/zcoldwallet/walletdb"
)

// storeFactory returns a fresh store with its schema created.
type storeFactory func(t testing.TB) walletdb.Store

func newSQLiteStore(t testing.TB) walletdb.Store {
	t.Helper()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wallet.sqlite")
	store, err := walletdb.Open(ctx, walletdb.DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	require.NoError(t, store.CreateSchema(ctx))

	// The schema is idempotent.
	require.NoError(t, store.CreateSchema(ctx))

	return store
}

func testNote(pos uint64, height uint32, value btcutil.Amount) walletdb.NoteInfo {
	n := walletdb.NoteInfo{
		Position: pos,
		Height:   height,
		TxIndex:  uint32(pos),
		Value:    value,
	}
	n.Diversifier[0] = byte(pos)
	n.Rseed.Bytes[0] = byte(pos)
	n.Rseed.AfterZIP212 = pos%2 == 0
	n.Nullifier[0] = byte(pos)
	n.Nullifier[31] = 0xff
	return n
}

func testBlock(height uint32) walletdb.BlockInfo {
	return walletdb.BlockInfo{
		Height:      height,
		Hash:        []byte{byte(height), 1, 2, 3},
		Time:        1000 + height,
		SaplingTree: []byte{0, 0, 0},
	}
}

// witnessesFor returns a witness for every note, tagged with the height.
func witnessesFor(height uint32, notes ...walletdb.NoteInfo) []walletdb.WitnessInfo {
	var ws []walletdb.WitnessInfo
	for _, n := range notes {
		ws = append(ws, walletdb.WitnessInfo{
			Position: n.Position,
			Witness:  []byte{byte(n.Position), byte(height)},
		})
	}
	return ws
}

func testBlockCache(t *testing.T, newStore storeFactory) {
	store := newStore(t)
	ctx := context.Background()

	h, err := store.MaxCachedHeight(ctx)
	require.NoError(t, err)
	require.True(t, h.IsNone())

	put := func(heights ...uint32) {
		var blocks []walletdb.CachedBlock
		for _, height := range heights {
			blocks = append(blocks, walletdb.CachedBlock{
				Height: height,
				Data:   []byte{byte(height), byte(len(heights))},
			})
		}
		require.NoError(t, store.PutCompactBlocks(ctx, blocks))
	}
	put(10, 11, 12)

	// Overlapping ranges replace rows instead of duplicating them.
	put(12, 13)

	h, err = store.MaxCachedHeight(ctx)
	require.NoError(t, err)
	require.Equal(t, fn.Some(uint32(13)), h)

	var got []walletdb.CachedBlock
	err = store.ForEachCompactBlock(ctx, 10, func(b walletdb.CachedBlock) error {
		got = append(got, b)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []walletdb.CachedBlock{
		{Height: 11, Data: []byte{11, 3}},
		{Height: 12, Data: []byte{12, 2}},
		{Height: 13, Data: []byte{13, 2}},
	}, got)
}

func testNoteIndex(t *testing.T, newStore storeFactory) {
	store := newStore(t)
	ctx := context.Background()

	r, err := store.ScanRange(ctx)
	require.NoError(t, err)
	require.True(t, r.IsNone())

	_, err = store.Block(ctx, 100)
	require.True(t, walletdb.IsError(err, walletdb.ErrBlockNotFound))

	params := walletdb.InitAccountParams{
		ViewingKey: "zxviews1test",
		Block:      testBlock(100),
	}
	require.NoError(t, store.InitAccount(ctx, params))
	err = store.InitAccount(ctx, params)
	require.True(t, walletdb.IsError(err, walletdb.ErrAccountExists))

	accounts, err := store.Accounts(ctx)
	require.NoError(t, err)
	require.Equal(t, []walletdb.AccountInfo{{
		ViewingKey: "zxviews1test", Birthday: 100,
	}}, accounts)

	// Block 101 receives three notes, block 102 a fourth one and spends
	// the note at position 1.
	n0 := testNote(0, 101, 5000)
	n1 := testNote(1, 101, 9000)
	n2 := testNote(2, 101, 5000)
	n3 := testNote(3, 102, 20000)
	require.NoError(t, store.ApplyBlock(ctx, walletdb.ApplyBlockParams{
		Block:     testBlock(101),
		NewNotes:  []walletdb.NoteInfo{n0, n1, n2},
		Witnesses: witnessesFor(101, n0, n1, n2),
	}))
	require.NoError(t, store.ApplyBlock(ctx, walletdb.ApplyBlockParams{
		Block:     testBlock(102),
		NewNotes:  []walletdb.NoteInfo{n3},
		Spent:     [][32]byte{n1.Nullifier},
		Witnesses: witnessesFor(102, n0, n2, n3),
	}))

	r, err = store.ScanRange(ctx)
	require.NoError(t, err)
	require.Equal(t, fn.Some([2]uint32{100, 102}), r)

	block, err := store.Block(ctx, 102)
	require.NoError(t, err)
	require.Equal(t, testBlock(102), *block)

	witnesses, err := store.Witnesses(ctx, 102)
	require.NoError(t, err)
	require.Equal(t, witnessesFor(102, n0, n2, n3), witnesses)

	unspent, err := store.UnspentNotes(ctx)
	require.NoError(t, err)
	require.Len(t, unspent, 3)
	require.Equal(t, n0, unspent[0])

	all, err := store.ListNotes(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, fn.Some(uint32(102)), all[1].SpentHeight)

	balance, err := store.Balance(ctx, walletdb.BalanceQuery{
		AnchorHeight: 101,
	})
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(30000), balance.Total)
	require.Equal(t, btcutil.Amount(10000), balance.Spendable)

	tests := []struct {
		name     string
		anchor   uint32
		target   btcutil.Amount
		strategy walletdb.CoinSelection
		want     []uint64
	}{{
		name:   "largest first",
		anchor: 102,
		target: 21000,
		want:   []uint64{3, 0},
	}, {
		name:   "equal values by position",
		anchor: 101,
		target: 6000,
		want:   []uint64{0, 2},
	}, {
		name:     "oldest first",
		anchor:   102,
		target:   6000,
		strategy: walletdb.SelectOldest,
		want:     []uint64{0, 2},
	}, {
		name:   "insufficient returns everything",
		anchor: 101,
		target: 1000000,
		want:   []uint64{0, 2},
	}}
	for _, test := range tests {
		notes, err := store.SelectSpendableNotes(
			ctx, walletdb.SelectNotesQuery{
				AnchorHeight: test.anchor,
				Target:       test.target,
				Strategy:     test.strategy,
			},
		)
		require.NoError(t, err, test.name)

		var got []uint64
		for _, n := range notes {
			got = append(got, n.Position)
			require.Equal(
				t, []byte{byte(n.Position), byte(test.anchor)},
				n.Witness, test.name,
			)
		}
		require.Equal(t, test.want, got, test.name)
	}
}

func testWitnessPruning(t *testing.T, newStore storeFactory) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.InitAccount(ctx, walletdb.InitAccountParams{
		ViewingKey: "zxviews1prune",
		Block:      testBlock(1),
	}))

	n := testNote(0, 2, 1000)
	for h := uint32(2); h <= 2+walletdb.WitnessRetention+5; h++ {
		params := walletdb.ApplyBlockParams{
			Block:     testBlock(h),
			Witnesses: witnessesFor(h, n),
		}
		if h == 2 {
			params.NewNotes = []walletdb.NoteInfo{n}
		}
		require.NoError(t, store.ApplyBlock(ctx, params))
	}

	w, err := store.Witnesses(ctx, 2)
	require.NoError(t, err)
	require.Empty(t, w)

	w, err = store.Witnesses(ctx, 10)
	require.NoError(t, err)
	require.Len(t, w, 1)
}

var storeTests = []struct {
	name string
	test func(t *testing.T, newStore storeFactory)
}{
	{name: "block cache", test: testBlockCache},
	{name: "note index", test: testNoteIndex},
	{name: "witness pruning", test: testWitnessPruning},
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	for _, test := range storeTests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			test.test(t, newSQLiteStore)
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := walletdb.Open(context.Background(), "bolt", "wallet.db")
	require.True(t, walletdb.IsError(err, walletdb.ErrUnknownDriver))
	require.Equal(t, "ErrUnknownDriver", walletdb.ErrUnknownDriver.String())
}
