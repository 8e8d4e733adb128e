package server

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingInterceptor logs every unary RPC with its duration. Failures log
// at error level, the rest at debug.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logRPC(logger, info.FullMethod, time.Since(start), err)
		return resp, err
	}
}

// StreamLoggingInterceptor is LoggingInterceptor for streaming RPCs such as
// the health Watch.
func StreamLoggingInterceptor(logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logRPC(logger, info.FullMethod, time.Since(start), err)
		return err
	}
}

func logRPC(logger *slog.Logger, method string, d time.Duration, err error) {
	// A client hanging up on a Watch is not a server failure.
	if err != nil && status.Code(err) != codes.Canceled {
		logger.Error("rpc completed", "method", method, "duration", d, "err", err)
		return
	}
	logger.Debug("rpc completed", "method", method, "duration", d)
}

// RecoveryInterceptor turns a panicking unary handler into codes.Internal.
func RecoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer recoverRPC(logger, info.FullMethod, &err)
		return handler(ctx, req)
	}
}

// StreamRecoveryInterceptor turns a panicking stream handler into
// codes.Internal.
func StreamRecoveryInterceptor(logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer recoverRPC(logger, info.FullMethod, &err)
		return handler(srv, ss)
	}
}

func recoverRPC(logger *slog.Logger, method string, err *error) {
	if r := recover(); r != nil {
		logger.Error("panic recovered in gRPC handler",
			"method", method,
			"panic", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)
		*err = status.Errorf(codes.Internal, "internal server error")
	}
}
