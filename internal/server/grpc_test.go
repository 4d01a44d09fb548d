package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

func startGRPC(t *testing.T) (*GRPCServer, healthpb.HealthClient) {
	t.Helper()
	s, err := NewGRPCServer(GRPCServerConfig{Logger: discardLogger()})
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.Serve(l) }()

	conn, err := grpc.NewClient(l.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

// healthStatus is safe to call from assert.Eventually conditions.
func healthStatus(client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN
	}
	return resp.GetStatus()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestGRPCHealth_StartsNotServing(t *testing.T) {
	s, client := startGRPC(t)

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, HealthServiceName))

	s.SetReady(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, HealthServiceName))
}

func TestGRPCHealth_UnknownService(t *testing.T) {
	_, client := startGRPC(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "other"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPCHealth_WatchReadiness(t *testing.T) {
	s, client := startGRPC(t)

	var healthy atomic.Bool
	ready := func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("collection is empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.WatchReadiness(ctx, ready, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return healthStatus(client, "") == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 5*time.Millisecond)

	healthy.Store(true)
	assert.Eventually(t, func() bool {
		return healthStatus(client, HealthServiceName) == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WatchReadiness did not return after cancel")
	}
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	interceptor := recoveryUnaryInterceptor(discardLogger())
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/test/Panic"},
		func(context.Context, any) (any, error) { panic("boom") })
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, codes.OK, codeOf(nil))
	assert.Equal(t, codes.NotFound, codeOf(status.Error(codes.NotFound, "x")))
	assert.Equal(t, codes.Unknown, codeOf(errors.New("plain")))
}
