package server

import (
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewGRPCServer creates a gRPC server carrying the health service (with the
// fanout status of qa) and reflection.
func NewGRPCServer(qa *QAServer) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(qa.logger),
			LoggingInterceptor(qa.logger),
		),
		grpc.ChainStreamInterceptor(
			StreamRecoveryInterceptor(qa.logger),
			StreamLoggingInterceptor(qa.logger),
		),
	)

	healthpb.RegisterHealthServer(srv, qa.Health())
	reflection.Register(srv)

	return srv
}
