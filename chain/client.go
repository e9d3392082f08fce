// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/url"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// serviceName is the fully qualified name of the indexer service.
const serviceName = "cash.z.wallet.sdk.rpc.CompactTxStreamer"

const (
	methodGetLatestBlock  = "/" + serviceName + "/GetLatestBlock"
	methodGetBlock        = "/" + serviceName + "/GetBlock"
	methodGetBlockRange   = "/" + serviceName + "/GetBlockRange"
	methodGetTreeState    = "/" + serviceName + "/GetTreeState"
	methodSendTransaction = "/" + serviceName + "/SendTransaction"
)

// ErrUnsupportedScheme is returned for an indexer URL that is neither http
// nor https.
var ErrUnsupportedScheme = errors.New("indexer URL scheme must be http " +
	"or https")

// codec encodes the hand written indexer messages on the gRPC wire.
type codec struct{}

// Marshal implements encoding.Codec.
func (codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("cannot marshal %T", v)
	}
	return m.Marshal()
}

// Unmarshal implements encoding.Codec.
func (codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("cannot unmarshal into %T", v)
	}
	return m.Unmarshal(data)
}

// Name implements encoding.Codec.
func (codec) Name() string {
	return "proto"
}

// Indexer is the chain-indexing service the wallet syncs from and submits
// transactions to.
type Indexer interface {
	// LatestBlock returns the id of the current chain tip.
	LatestBlock(ctx context.Context) (*BlockID, error)

	// Block returns the compact block at height.
	Block(ctx context.Context, height uint64) (*CompactBlock, error)

	// BlockRange streams the compact blocks of the inclusive range
	// [start, end] in height order to f.
	BlockRange(ctx context.Context, start, end uint64,
		f func(*CompactBlock) error) error

	// TreeState returns the commitment tree state at height.
	TreeState(ctx context.Context, height uint64) (*TreeState, error)

	// SendTransaction relays a raw transaction.
	SendTransaction(ctx context.Context, raw []byte) (*SendResponse,
		error)
}

// LightClient is an Indexer backed by a lightwalletd gRPC endpoint.
type LightClient struct {
	conn *grpc.ClientConn
}

// A compile-time check to ensure that LightClient satisfies the Indexer
// interface.
var _ Indexer = (*LightClient)(nil)

// transportCredentials selects TLS for https URLs and plaintext for http.
func transportCredentials(u *url.URL) (credentials.TransportCredentials,
	error) {

	switch u.Scheme {
	case "https":
		return credentials.NewTLS(&tls.Config{
			ServerName: u.Hostname(),
			MinVersion: tls.VersionTLS12,
		}), nil
	case "http":
		return insecure.NewCredentials(), nil
	default:
		return nil, ErrUnsupportedScheme
	}
}

// NewLightClient returns a client for the indexer at rawURL. The connection
// is established lazily on the first call.
func NewLightClient(rawURL string, opts ...grpc.DialOption) (*LightClient,
	error) {

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid indexer URL: %w", err)
	}
	creds, err := transportCredentials(u)
	if err != nil {
		return nil, err
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(codec{})),
	}
	dialOpts = append(dialOpts, opts...)

	// The passthrough resolver hands the address to the dialer as is,
	// as grpc.Dial did.
	conn, err := grpc.NewClient("passthrough:///"+u.Host, dialOpts...)
	if err != nil {
		return nil, err
	}

	log.Debugf("Using indexer %s", u.Redacted())

	return &LightClient{conn: conn}, nil
}

// Close tears down the connection.
func (c *LightClient) Close() error {
	return c.conn.Close()
}

// LatestBlock returns the id of the current chain tip.
func (c *LightClient) LatestBlock(ctx context.Context) (*BlockID, error) {
	var resp BlockID
	err := c.conn.Invoke(ctx, methodGetLatestBlock, &ChainSpec{}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Block returns the compact block at height.
func (c *LightClient) Block(ctx context.Context,
	height uint64) (*CompactBlock, error) {

	var resp CompactBlock
	err := c.conn.Invoke(ctx, methodGetBlock, &BlockID{Height: height},
		&resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// BlockRange streams the compact blocks of [start, end] to f.
func (c *LightClient) BlockRange(ctx context.Context, start, end uint64,
	f func(*CompactBlock) error) error {

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	desc := &grpc.StreamDesc{
		StreamName:    "GetBlockRange",
		ServerStreams: true,
	}
	stream, err := c.conn.NewStream(ctx, desc, methodGetBlockRange)
	if err != nil {
		return err
	}
	req := &BlockRange{
		Start: BlockID{Height: start},
		End:   BlockID{Height: end},
	}
	if err := stream.SendMsg(req); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		var block CompactBlock
		err := stream.RecvMsg(&block)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := f(&block); err != nil {
			return err
		}
	}
}

// TreeState returns the commitment tree state at height.
func (c *LightClient) TreeState(ctx context.Context,
	height uint64) (*TreeState, error) {

	var resp TreeState
	err := c.conn.Invoke(ctx, methodGetTreeState, &BlockID{Height: height},
		&resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendTransaction relays a raw transaction.
func (c *LightClient) SendTransaction(ctx context.Context,
	raw []byte) (*SendResponse, error) {

	var resp SendResponse
	err := c.conn.Invoke(ctx, methodSendTransaction,
		&RawTransaction{Data: raw}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
