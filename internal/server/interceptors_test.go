package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestRecoveryInterceptor(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/x/Y"}
	panicking := func(context.Context, any) (any, error) { panic("boom") }
	if _, err := RecoveryInterceptor(discard)(context.Background(), nil, info, panicking); status.Code(err) != codes.Internal {
		t.Fatalf("err = %v, want Internal", err)
	}

	ok := func(context.Context, any) (any, error) { return "ok", nil }
	resp, err := RecoveryInterceptor(discard)(context.Background(), nil, info, ok)
	if err != nil || resp != "ok" {
		t.Errorf("passthrough = %v, %v", resp, err)
	}
}

func TestStreamRecoveryInterceptor(t *testing.T) {
	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"}
	panicking := func(any, grpc.ServerStream) error { panic("boom") }
	if err := StreamRecoveryInterceptor(discard)(nil, nil, info, panicking); status.Code(err) != codes.Internal {
		t.Fatalf("err = %v, want Internal", err)
	}
}

func TestLoggingInterceptor(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/x/Y"}
	ok := func(context.Context, any) (any, error) { return "ok", nil }
	resp, err := LoggingInterceptor(discard)(context.Background(), nil, info, ok)
	if err != nil || resp != "ok" {
		t.Errorf("LoggingInterceptor = %v, %v", resp, err)
	}

	want := errors.New("nope")
	failing := func(context.Context, any) (any, error) { return nil, want }
	if _, err := LoggingInterceptor(discard)(context.Background(), nil, info, failing); !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}

	sinfo := &grpc.StreamServerInfo{FullMethod: "/x/Z"}
	canceled := func(any, grpc.ServerStream) error { return status.Error(codes.Canceled, "bye") }
	if err := StreamLoggingInterceptor(discard)(nil, nil, sinfo, canceled); status.Code(err) != codes.Canceled {
		t.Errorf("stream err = %v, want Canceled", err)
	}
}
