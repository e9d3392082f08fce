package chain

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"github.com/zcoldwallet/zcoldwallet/netparams"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

// memChain is an in-memory indexer whose block at height h has timestamp
// baseTime + 10*h.
type memChain struct {
	tip      uint64
	baseTime uint32
	sent     [][]byte
	calls    int
}

func (c *memChain) block(height uint64) *CompactBlock {
	hash := chainhash.DoubleHashH([]byte{byte(height), byte(height >> 8)})
	return &CompactBlock{
		Height: height,
		Hash:   hash[:],
		Time:   c.baseTime + 10*uint32(height),
		Vtx: []CompactTx{{
			Index: 1,
			Outputs: []CompactOutput{{
				Cmu: hash[:],
				Epk: hash[:],
			}},
		}},
	}
}

func (c *memChain) LatestBlock(context.Context) (*BlockID, error) {
	return &BlockID{Height: c.tip}, nil
}

func (c *memChain) Block(_ context.Context, h uint64) (*CompactBlock,
	error) {

	c.calls++
	if h > c.tip {
		return nil, errors.New("block not found")
	}
	return c.block(h), nil
}

func (c *memChain) BlockRange(ctx context.Context, start, end uint64,
	f func(*CompactBlock) error) error {

	for h := start; h <= end && h <= c.tip; h++ {
		if err := f(c.block(h)); err != nil {
			return err
		}
	}
	return nil
}

func (c *memChain) TreeState(_ context.Context, h uint64) (*TreeState,
	error) {

	b := c.block(h)
	hash, _ := chainhash.NewHash(b.Hash)
	return &TreeState{
		Network:     "simnet",
		Height:      h,
		Hash:        hash.String(),
		Time:        b.Time,
		SaplingTree: "000000",
	}, nil
}

func (c *memChain) SendTransaction(_ context.Context,
	raw []byte) (*SendResponse, error) {

	if len(raw) == 0 {
		return &SendResponse{ErrorCode: -22, ErrorMessage: "empty"}, nil
	}
	c.sent = append(c.sent, raw)
	return &SendResponse{ErrorMessage: "txid"}, nil
}

// server adapts memChain to the gRPC server interface.
type server struct {
	c *memChain
}

func (s *server) GetLatestBlock(ctx context.Context,
	_ *ChainSpec) (*BlockID, error) {

	return s.c.LatestBlock(ctx)
}

func (s *server) GetBlock(ctx context.Context,
	id *BlockID) (*CompactBlock, error) {

	return s.c.Block(ctx, id.Height)
}

func (s *server) GetBlockRange(r *BlockRange, stream BlockStream) error {
	return s.c.BlockRange(stream.Context(), r.Start.Height, r.End.Height,
		stream.Send)
}

func (s *server) GetTreeState(ctx context.Context,
	id *BlockID) (*TreeState, error) {

	return s.c.TreeState(ctx, id.Height)
}

func (s *server) SendTransaction(ctx context.Context,
	tx *RawTransaction) (*SendResponse, error) {

	return s.c.SendTransaction(ctx, tx.Data)
}

func startServer(t *testing.T, c *memChain) *LightClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewServer()
	RegisterCompactTxStreamerServer(srv, &server{c: c})
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}
	client, err := NewLightClient(
		"http://bufnet:9067", grpc.WithContextDialer(dialer),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func TestMessageEncoding(t *testing.T) {
	t.Parallel()

	c := &memChain{tip: 10, baseTime: 1000}
	block := c.block(7)
	block.PrevHash = []byte{1, 2, 3}
	block.Vtx[0].Spends = []CompactSpend{{Nf: []byte{9}}}

	b, err := block.Marshal()
	require.NoError(t, err)

	var decoded CompactBlock
	require.NoError(t, decoded.Unmarshal(b))
	require.Equal(t, block, &decoded)

	resp := &SendResponse{ErrorCode: -26, ErrorMessage: "bad"}
	b, err = resp.Marshal()
	require.NoError(t, err)
	var decodedResp SendResponse
	require.NoError(t, decodedResp.Unmarshal(b))
	require.Equal(t, resp, &decodedResp)

	// Unknown fields are skipped, truncated input is rejected.
	var id BlockID
	require.NoError(t, id.Unmarshal([]byte{0x08, 0x05, 0x78, 0x01}))
	require.Equal(t, uint64(5), id.Height)
	require.Error(t, id.Unmarshal([]byte{0x12, 0x05, 0x01}))
}

func TestLightClient(t *testing.T) {
	t.Parallel()

	c := &memChain{tip: 50, baseTime: 1000}
	client := startServer(t, c)
	ctx := context.Background()

	tip, err := client.LatestBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(50), tip.Height)

	block, err := client.Block(ctx, 12)
	require.NoError(t, err)
	require.Equal(t, c.block(12), block)

	_, err = client.Block(ctx, 51)
	require.Error(t, err)

	var heights []uint64
	err = client.BlockRange(ctx, 45, 60, func(b *CompactBlock) error {
		heights = append(heights, b.Height)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{45, 46, 47, 48, 49, 50}, heights)

	state, err := client.TreeState(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, "000000", state.SaplingTree)

	resp, err := client.SendTransaction(ctx, []byte{1, 2})
	require.NoError(t, err)
	require.Zero(t, resp.ErrorCode)

	resp, err = client.SendTransaction(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, int32(-22), resp.ErrorCode)
}

func TestNewLightClientScheme(t *testing.T) {
	t.Parallel()

	_, err := NewLightClient("ftp://example.com:21")
	require.ErrorIs(t, err, ErrUnsupportedScheme)

	client, err := NewLightClient("https://example.com:9067")
	require.NoError(t, err)
	require.NoError(t, client.Close())
}

func TestFindHeight(t *testing.T) {
	t.Parallel()

	params := netparams.SimNetParams
	params.SaplingActivationHeight = 100

	tests := []struct {
		name   string
		target uint64
		want   uint32
	}{
		{name: "exact midpoint", target: 150, want: 150},
		{name: "exact off center", target: 137, want: 137},
		{name: "before activation", target: 20, want: 100},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			// Place midnight of the target day exactly at the
			// target block's timestamp.
			midnight := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
			c := &memChain{
				tip: 200,
				baseTime: uint32(midnight.Unix()) -
					10*uint32(test.target),
			}
			r := NewCheckpointResolver(c, &params)

			h, err := r.FindHeight(
				context.Background(), midnight.Add(13*time.Hour),
			)
			require.NoError(t, err)
			require.Equal(t, test.want, h)
		})
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	c := &memChain{tip: 30, baseTime: 1000}
	r := NewCheckpointResolver(c, &netparams.SimNetParams)
	ctx := context.Background()

	// Explicit height served by the indexer with the hash reversed.
	cp, err := r.Resolve(ctx, fn.Some(uint32(20)), fn.None[time.Time]())
	require.NoError(t, err)
	require.Equal(t, uint32(20), cp.Height)
	require.Equal(t, c.block(20).Hash, cp.Hash)
	require.Equal(t, uint32(1200), cp.Time)

	// Compiled-in table.
	calls := c.calls
	cp, err = r.Resolve(ctx, fn.Some(uint32(1)), fn.None[time.Time]())
	require.NoError(t, err)
	require.Equal(t, netparams.SimNetParams.Checkpoints[0].Time, cp.Time)
	require.Equal(t, calls, c.calls)

	// Neither height nor date resolves to the tip.
	cp, err = r.Resolve(ctx, fn.None[uint32](), fn.None[time.Time]())
	require.NoError(t, err)
	require.Equal(t, uint32(30), cp.Height)
}
