package server

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oshokin/threshold-alarm/internal/logger"
	"github.com/oshokin/threshold-alarm/internal/metrics"
)

// unaryLogger logs every unary call with its outcome.
func unaryLogger(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()

	resp, err := handler(ctx, req)

	logger.DebugKV(ctx, "gRPC call",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start).String())

	return resp, err
}

// unaryRecoverer turns a handler panic into an Internal error.
func unaryRecoverer(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(ctx, info.FullMethod, r)
		}
	}()

	return handler(ctx, req)
}

// streamLogger logs when a stream ends.
func streamLogger(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()

	err := handler(srv, ss)

	logger.DebugKV(ss.Context(), "gRPC stream closed",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start).String())

	return err
}

// streamRecoverer turns a handler panic into an Internal error.
func streamRecoverer(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(ss.Context(), info.FullMethod, r)
		}
	}()

	return handler(srv, ss)
}

func recovered(ctx context.Context, method string, r any) error {
	metrics.PanicsRecovered.WithLabelValues("grpc_handler").Inc()
	logger.ErrorKV(ctx, "Panic in gRPC handler", "method", method, "panic", fmt.Sprint(r))

	return status.Errorf(codes.Internal, "internal error")
}
