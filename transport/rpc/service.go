// Package rpc carries protocol records over a gRPC bidirectional stream.
// Messages are google.protobuf.Struct, so the service needs no generated code:
//
//	service Surface {
//	  rpc Connect(stream google.protobuf.Struct) returns (stream google.protobuf.Struct);
//	}
package rpc

import (
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName   = "candlechart.v1.Surface"
	ConnectMethod = "/" + ServiceName + "/Connect"
)

// SurfaceServer is the server API of the Surface service.
type SurfaceServer interface {
	Connect(grpc.BidiStreamingServer[structpb.Struct, structpb.Struct]) error
}

// ServiceDesc describes the Surface service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SurfaceServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       connectHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "candlechart/v1/surface.proto",
}

func connectHandler(srv any, stream grpc.ServerStream) error {
	return srv.(SurfaceServer).Connect(&grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// Register adds srv to s.
func Register(s grpc.ServiceRegistrar, srv SurfaceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
