package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// The Results service carries its payloads as well-known types, so it
// needs no generated code:
//
//	service Results {
//	  rpc GetSummary(google.protobuf.Empty) returns (google.protobuf.Struct);
//	  rpc ListTrades(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc StreamSnapshots(google.protobuf.Empty) returns (stream google.protobuf.Struct);
//	}
const (
	serviceName           = "lobsim.v1.Results"
	getSummaryMethod      = "/" + serviceName + "/GetSummary"
	listTradesMethod      = "/" + serviceName + "/ListTrades"
	streamSnapshotsMethod = "/" + serviceName + "/StreamSnapshots"
)

type ResultsServer interface {
	GetSummary(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListTrades(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StreamSnapshots(*emptypb.Empty, grpc.ServerStream) error
}

var ResultsServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ResultsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSummary", Handler: getSummaryHandler},
		{MethodName: "ListTrades", Handler: listTradesHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamSnapshots", Handler: streamSnapshotsHandler, ServerStreams: true},
	},
	Metadata: "lobsim/v1/results.proto",
}

func RegisterResultsServer(s grpc.ServiceRegistrar, srv ResultsServer) {
	s.RegisterService(&ResultsServiceDesc, srv)
}

func getSummaryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResultsServer).GetSummary(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getSummaryMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResultsServer).GetSummary(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func listTradesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResultsServer).ListTrades(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listTradesMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResultsServer).ListTrades(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func streamSnapshotsHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ResultsServer).StreamSnapshots(in, stream)
}
