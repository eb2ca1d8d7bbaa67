package executor

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName = "robofleet.executor.v1.ExecutorGateway"

	StartMissionMethod = "/" + serviceName + "/StartMission"
	StopMissionMethod  = "/" + serviceName + "/StopMission"
)

// GatewayServer is the server side of the executor gateway. Payloads are
// protobuf Structs whose fields are described on the Client methods.
type GatewayServer interface {
	StartMission(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	StopMission(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterGatewayServer registers srv on s.
func RegisterGatewayServer(s grpc.ServiceRegistrar, srv GatewayServer) {
	s.RegisterService(&gatewayServiceDesc, srv)
}

var gatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*GatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartMission", Handler: unaryHandler(StartMissionMethod, GatewayServer.StartMission)},
		{MethodName: "StopMission", Handler: unaryHandler(StopMissionMethod, GatewayServer.StopMission)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "robofleet/executor/v1/gateway.proto",
}

type unaryMethod func(GatewayServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(GatewayServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(GatewayServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
