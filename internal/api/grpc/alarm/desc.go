package alarm

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "thresholdalarm.v1.AlarmService"

// Full method names.
const (
	MethodGetConfig         = "/" + ServiceName + "/GetConfig"
	MethodGetMetrics        = "/" + ServiceName + "/GetMetrics"
	MethodGetAlarms         = "/" + ServiceName + "/GetAlarms"
	MethodSetThreshold      = "/" + ServiceName + "/SetThreshold"
	MethodResetThresholds   = "/" + ServiceName + "/ResetThresholds"
	MethodClearAlarms       = "/" + ServiceName + "/ClearAlarms"
	MethodControlSimulation = "/" + ServiceName + "/ControlSimulation"
	MethodInjectSpike       = "/" + ServiceName + "/InjectSpike"
	MethodAddMetric         = "/" + ServiceName + "/AddMetric"
	MethodWatch             = "/" + ServiceName + "/Watch"
)

// AlarmServiceServer is the server API of the alarm service.
type AlarmServiceServer interface {
	GetConfig(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetMetrics(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetAlarms(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SetThreshold(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ResetThresholds(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ClearAlarms(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ControlSimulation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	InjectSpike(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	AddMetric(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Watch(req *structpb.Struct, stream grpc.ServerStream) error
}

type unaryCall func(srv AlarmServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// WatchStreamDesc describes the server-streaming Watch method for clients.
var WatchStreamDesc = grpc.StreamDesc{
	StreamName:    "Watch",
	ServerStreams: true,
}

// ServiceDesc is the grpc.ServiceDesc of AlarmService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AlarmServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetConfig", AlarmServiceServer.GetConfig),
		unary("GetMetrics", AlarmServiceServer.GetMetrics),
		unary("GetAlarms", AlarmServiceServer.GetAlarms),
		unary("SetThreshold", AlarmServiceServer.SetThreshold),
		unary("ResetThresholds", AlarmServiceServer.ResetThresholds),
		unary("ClearAlarms", AlarmServiceServer.ClearAlarms),
		unary("ControlSimulation", AlarmServiceServer.ControlSimulation),
		unary("InjectSpike", AlarmServiceServer.InjectSpike),
		unary("AddMetric", AlarmServiceServer.AddMetric),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "thresholdalarm/v1/alarm.proto",
}

// Register adds srv to the gRPC server.
func Register(s grpc.ServiceRegistrar, srv AlarmServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}

			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AlarmServiceServer), ctx, req.(*structpb.Struct)) //nolint:forcetypeassert // Guaranteed by ServiceDesc.
			}

			if interceptor == nil {
				return handler(ctx, in)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}

			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	return srv.(AlarmServiceServer).Watch(in, stream) //nolint:forcetypeassert // Guaranteed by ServiceDesc.
}
