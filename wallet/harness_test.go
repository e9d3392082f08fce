package wallet

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"github.com/zcoldwallet/zcoldwallet/chain"
	"github.com/zcoldwallet/zcoldwallet/netparams"
	"github.com/zcoldwallet/zcoldwallet/pkg/unit"
	"github.com/zcoldwallet/zcoldwallet/shielded"
	"github.com/zcoldwallet/zcoldwallet/walletdb"
)

// simBase is the height of the first block of the simulated chain. It is
// not a compiled-in checkpoint, so accounts are seeded from the indexer.
const simBase = 10

func someHeight(h uint32) fn.Option[uint32] { return fn.Some(h) }
func noHeight() fn.Option[uint32]          { return fn.None[uint32]() }
func noDate() fn.Option[time.Time]         { return fn.None[time.Time]() }

// testProver returns a prover that needs no parameter files.
func testProver() *shielded.LocalTxProver {
	return shielded.NewTxProver([]byte("spend"), []byte("output"))
}

// simChain is an in-memory indexer that mines compact blocks on demand and
// keeps the commitment tree state of every block.
type simChain struct {
	t      *testing.T
	params *netparams.Params
	prover *shielded.LocalTxProver

	mu     sync.Mutex
	blocks map[uint64]*chain.CompactBlock
	trees  map[uint64]string
	tree   *shielded.CommitmentTree
	tip    uint64

	// pending transactions are mined into the next block.
	pending []chain.CompactTx

	// reject makes SendTransaction fail with this response.
	reject *chain.SendResponse
}

var _ chain.Indexer = (*simChain)(nil)

func newSimChain(t *testing.T, params *netparams.Params) *simChain {
	c := &simChain{
		t:      t,
		params: params,
		prover: testProver(),
		blocks: make(map[uint64]*chain.CompactBlock),
		trees:  make(map[uint64]string),
		tree:   shielded.NewCommitmentTree(),
	}
	c.addBlock(simBase, nil, nil)
	return c
}

func blockHash(height uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], height)
	h := chainhash.DoubleHashH(b[:])
	return h[:]
}

func (c *simChain) addBlock(height uint64, prev []byte,
	vtx []chain.CompactTx) {

	for i := range vtx {
		vtx[i].Index = uint64(i)
		for _, o := range vtx[i].Outputs {
			var cmu shielded.Node
			copy(cmu[:], o.Cmu)
			require.NoError(c.t, c.tree.Append(cmu))
		}
	}
	c.blocks[height] = &chain.CompactBlock{
		Height:   height,
		Hash:     blockHash(height),
		PrevHash: prev,
		Time:     1600000000 + uint32(height)*75,
		Vtx:      vtx,
	}
	c.trees[height] = c.tree.Hex()
	c.tip = height
}

// mine adds a block holding the pending transactions and txs.
func (c *simChain) mine(txs ...chain.CompactTx) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	vtx := append(c.pending, txs...)
	c.pending = nil
	c.addBlock(c.tip+1, c.blocks[c.tip].Hash, vtx)
	return c.tip
}

// mineEmpty adds n empty blocks.
func (c *simChain) mineEmpty(n int) {
	for i := 0; i < n; i++ {
		c.mine()
	}
}

// fund returns a transaction paying value to addr.
func (c *simChain) fund(addr shielded.PaymentAddress,
	value btcutil.Amount) chain.CompactTx {

	desc, err := shielded.BuildOutput(
		c.params, uint32(c.tip+1), c.prover,
		shielded.OutgoingViewingKey{}, &addr, value, rand.Reader,
	)
	require.NoError(c.t, err)
	return chain.CompactTx{Outputs: []chain.CompactOutput{
		compactOutput(desc),
	}}
}

func compactOutput(o *shielded.OutputDescription) chain.CompactOutput {
	return chain.CompactOutput{
		Cmu:        o.Cmu[:],
		Epk:        o.Epk,
		Ciphertext: o.EncCiphertext[:shielded.CompactCiphertextLen],
	}
}

func (c *simChain) LatestBlock(context.Context) (*chain.BlockID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return &chain.BlockID{Height: c.tip, Hash: c.blocks[c.tip].Hash}, nil
}

func (c *simChain) Block(_ context.Context,
	height uint64) (*chain.CompactBlock, error) {

	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.blocks[height]
	if !ok {
		return nil, errors.New("block not found")
	}
	return b, nil
}

func (c *simChain) BlockRange(ctx context.Context, start, end uint64,
	f func(*chain.CompactBlock) error) error {

	for h := start; h <= end; h++ {
		b, err := c.Block(ctx, h)
		if err != nil {
			return err
		}
		if err := f(b); err != nil {
			return err
		}
	}
	return nil
}

func (c *simChain) TreeState(_ context.Context,
	height uint64) (*chain.TreeState, error) {

	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.blocks[height]
	if !ok {
		return nil, errors.New("block not found")
	}
	hash, err := chainhash.NewHash(b.Hash)
	require.NoError(c.t, err)
	return &chain.TreeState{
		Network:     c.params.Name,
		Height:      height,
		Hash:        hash.String(),
		Time:        b.Time,
		SaplingTree: c.trees[height],
	}, nil
}

// SendTransaction queues a valid transaction for the next block.
func (c *simChain) SendTransaction(_ context.Context,
	raw []byte) (*chain.SendResponse, error) {

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reject != nil {
		return c.reject, nil
	}

	tx, err := shielded.ParseTransaction(raw)
	if err != nil {
		return &chain.SendResponse{ErrorCode: -22,
			ErrorMessage: err.Error()}, nil
	}
	if err := c.prover.Verify(tx); err != nil {
		return &chain.SendResponse{ErrorCode: -26,
			ErrorMessage: err.Error()}, nil
	}

	var ctx chain.CompactTx
	for _, s := range tx.Spends {
		ctx.Spends = append(ctx.Spends, chain.CompactSpend{
			Nf: append([]byte(nil), s.Nullifier[:]...),
		})
	}
	for i := range tx.Outputs {
		ctx.Outputs = append(ctx.Outputs, compactOutput(&tx.Outputs[i]))
	}
	c.pending = append(c.pending, ctx)

	txid, err := tx.TxHash()
	require.NoError(c.t, err)
	return &chain.SendResponse{ErrorMessage: txid.String()}, nil
}

// testConfig returns a configuration for the simulation network with the
// test prover and amounts in zatoshis.
func testConfig() *Config {
	cfg := DefaultConfig(&netparams.SimNetParams)
	cfg.Unit = unit.Zat
	cfg.ReorgMargin = 1
	cfg.Prover = testProver()
	return cfg
}

func newTestStore(t *testing.T) walletdb.Store {
	t.Helper()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wallet.sqlite")
	store, err := walletdb.Open(ctx, walletdb.DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	require.NoError(t, store.CreateSchema(ctx))
	return store
}

// testHarness is a wallet synced against a simulated chain.
type testHarness struct {
	t     *testing.T
	ctx   context.Context
	cfg   *Config
	chain *simChain
	w     *Wallet
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	cfg := testConfig()
	sim := newSimChain(t, cfg.Params)
	w, err := New(cfg, newTestStore(t), sim)
	require.NoError(t, err)

	return &testHarness{
		t:     t,
		ctx:   context.Background(),
		cfg:   cfg,
		chain: sim,
		w:     w,
	}
}

// testKey returns the single-signer account used by the tests.
func testKey(t *testing.T, cfg *Config) *GeneratedKey {
	t.Helper()

	key, err := KeyFromMnemonic(cfg, "abandon abandon abandon abandon "+
		"abandon abandon abandon abandon abandon abandon abandon "+
		"abandon abandon abandon abandon abandon abandon abandon "+
		"abandon abandon abandon abandon abandon art")
	require.NoError(t, err)
	return key
}

// initAccount seeds the wallet at the base of the simulated chain.
func (h *testHarness) initAccount(viewingKey string) {
	h.t.Helper()

	_, err := h.w.InitAccount(h.ctx, viewingKey, someHeight(simBase),
		noDate())
	require.NoError(h.t, err)
}

// fund mines one block paying each value to addr and buries it deep
// enough to be spendable.
func (h *testHarness) fund(addr string, values ...btcutil.Amount) {
	h.t.Helper()

	to, err := CheckAddress(h.cfg, addr)
	require.NoError(h.t, err)

	var txs []chain.CompactTx
	for _, v := range values {
		txs = append(txs, h.chain.fund(*to, v))
	}
	h.chain.mine(txs...)
	h.chain.mineEmpty(AnchorOffset + int(h.cfg.ReorgMargin))
}

// sync syncs the wallet to the simulated tip.
func (h *testHarness) sync() uint32 {
	h.t.Helper()

	n, err := h.w.Sync(h.ctx, noHeight())
	require.NoError(h.t, err)
	return n
}

func (h *testHarness) balance() *walletdb.Balance {
	h.t.Helper()

	b, err := h.w.Balance(h.ctx)
	require.NoError(h.t, err)
	return b
}
