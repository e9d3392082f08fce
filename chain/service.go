// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"

	"google.golang.org/grpc"
)

// CompactTxStreamerServer is the server side of the indexer service. It lets
// an in-process indexer, such as a simulated chain, serve LightClient.
type CompactTxStreamerServer interface {
	GetLatestBlock(context.Context, *ChainSpec) (*BlockID, error)
	GetBlock(context.Context, *BlockID) (*CompactBlock, error)
	GetBlockRange(*BlockRange, BlockStream) error
	GetTreeState(context.Context, *BlockID) (*TreeState, error)
	SendTransaction(context.Context, *RawTransaction) (*SendResponse,
		error)
}

// BlockStream is the server side of a GetBlockRange stream.
type BlockStream interface {
	Send(*CompactBlock) error
	Context() context.Context
}

type blockStream struct {
	grpc.ServerStream
}

func (s *blockStream) Send(b *CompactBlock) error {
	return s.ServerStream.SendMsg(b)
}

// NewServer returns a gRPC server that speaks the indexer message encoding.
func NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ForceServerCodec(codec{}))
	return grpc.NewServer(opts...)
}

// RegisterCompactTxStreamerServer registers srv with s.
func RegisterCompactTxStreamerServer(s grpc.ServiceRegistrar,
	srv CompactTxStreamerServer) {

	s.RegisterService(&serviceDesc, srv)
}

func getLatestBlockHandler(srv any, ctx context.Context,
	dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any,
	error) {

	in := new(ChainSpec)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(CompactTxStreamerServer)
	if interceptor == nil {
		return s.GetLatestBlock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodGetLatestBlock,
	}
	return interceptor(ctx, in, info, func(ctx context.Context,
		req any) (any, error) {

		return s.GetLatestBlock(ctx, req.(*ChainSpec))
	})
}

func getBlockHandler(srv any, ctx context.Context, dec func(any) error,
	interceptor grpc.UnaryServerInterceptor) (any, error) {

	in := new(BlockID)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(CompactTxStreamerServer)
	if interceptor == nil {
		return s.GetBlock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodGetBlock,
	}
	return interceptor(ctx, in, info, func(ctx context.Context,
		req any) (any, error) {

		return s.GetBlock(ctx, req.(*BlockID))
	})
}

func getTreeStateHandler(srv any, ctx context.Context,
	dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any,
	error) {

	in := new(BlockID)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(CompactTxStreamerServer)
	if interceptor == nil {
		return s.GetTreeState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodGetTreeState,
	}
	return interceptor(ctx, in, info, func(ctx context.Context,
		req any) (any, error) {

		return s.GetTreeState(ctx, req.(*BlockID))
	})
}

func sendTransactionHandler(srv any, ctx context.Context,
	dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any,
	error) {

	in := new(RawTransaction)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(CompactTxStreamerServer)
	if interceptor == nil {
		return s.SendTransaction(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodSendTransaction,
	}
	return interceptor(ctx, in, info, func(ctx context.Context,
		req any) (any, error) {

		return s.SendTransaction(ctx, req.(*RawTransaction))
	})
}

func getBlockRangeHandler(srv any, stream grpc.ServerStream) error {
	in := new(BlockRange)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(CompactTxStreamerServer).GetBlockRange(
		in, &blockStream{stream},
	)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CompactTxStreamerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetLatestBlock",
			Handler:    getLatestBlockHandler,
		},
		{
			MethodName: "GetBlock",
			Handler:    getBlockHandler,
		},
		{
			MethodName: "GetTreeState",
			Handler:    getTreeStateHandler,
		},
		{
			MethodName: "SendTransaction",
			Handler:    sendTransactionHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "GetBlockRange",
			Handler:       getBlockRangeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "service.proto",
}
