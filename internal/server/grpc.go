package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// HealthServiceName is the service name reported alongside the overall ("")
// status by the gRPC health service.
const HealthServiceName = "fundqa.Answer"

// DefaultReadinessInterval is how often WatchReadiness checks the index.
const DefaultReadinessInterval = 15 * time.Second

// GRPCServer exposes the standard health service so orchestrators can check
// index readiness over gRPC. Reflection is enabled for grpcurl.
type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	logger   *slog.Logger
	port     int
}

type GRPCServerConfig struct {
	Port   int
	Logger *slog.Logger
}

// NewGRPCServer installs recovery and logging interceptors. Both health
// statuses start as NOT_SERVING until the first readiness check.
func NewGRPCServer(cfg GRPCServerConfig) (*GRPCServer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			recoveryUnaryInterceptor(logger),
			loggingUnaryInterceptor(logger),
		),
		grpc.ChainStreamInterceptor(
			recoveryStreamInterceptor(logger),
			loggingStreamInterceptor(logger),
		),
	)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(HealthServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, hs)
	logger.Info("registered gRPC health service")

	reflection.Register(server)

	return &GRPCServer{
		server: server,
		health: hs,
		logger: logger,
		port:   cfg.Port,
	}, nil
}

// SetReady updates the serving status of the health service.
func (s *GRPCServer) SetReady(ready bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(HealthServiceName, st)
}

// WatchReadiness checks ready immediately and then every interval, mirroring
// the result into the health service until ctx is done.
func (s *GRPCServer) WatchReadiness(ctx context.Context, ready func(context.Context) error, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultReadinessInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := -1
	for {
		err := ready(ctx)
		now := 0
		if err == nil {
			now = 1
		}
		if now != last {
			if err != nil {
				s.logger.Warn("gRPC health: not serving", "error", err)
			} else {
				s.logger.Info("gRPC health: serving")
			}
			last = now
		}
		s.SetReady(err == nil)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Start listens on the configured port and serves until Shutdown.
func (s *GRPCServer) Start() error {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("listen for gRPC on port %d: %w", s.port, err)
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown.
func (s *GRPCServer) Serve(l net.Listener) error {
	s.listener = l
	s.logger.Info("gRPC health endpoint listening", "address", l.Addr().String())
	if err := s.server.Serve(l); err != nil {
		return fmt.Errorf("serve gRPC: %w", err)
	}
	return nil
}

// Shutdown flips every health status to NOT_SERVING and drains open
// connections, forcing them closed once ctx expires.
func (s *GRPCServer) Shutdown(ctx context.Context) error {
	s.logger.Info("draining gRPC server")
	s.health.Shutdown()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		s.server.GracefulStop()
	}()

	select {
	case <-drained:
		s.logger.Info("gRPC server stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("gRPC drain timed out, closing connections")
		s.server.Stop()
		return ctx.Err()
	}
}

func logRPC(logger *slog.Logger, kind, method string, start time.Time, err error) {
	logger.Debug(kind,
		"method", method,
		"code", codeOf(err).String(),
		"duration", time.Since(start),
		"error", err,
	)
}

func loggingUnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logRPC(logger, "gRPC request", info.FullMethod, start, err)
		return resp, err
	}
}

func loggingStreamInterceptor(logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logRPC(logger, "gRPC stream", info.FullMethod, start, err)
		return err
	}
}

func codeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Unknown
}

// recoverRPC turns a handler panic into codes.Internal. It must be deferred
// directly by the interceptor.
func recoverRPC(logger *slog.Logger, method string, err *error) {
	r := recover()
	if r == nil {
		return
	}
	logger.Error("gRPC handler panicked",
		"method", method,
		"panic", r,
		"stack", string(debug.Stack()),
	)
	*err = status.Error(codes.Internal, "internal server error")
}

func recoveryUnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer recoverRPC(logger, info.FullMethod, &err)
		return handler(ctx, req)
	}
}

func recoveryStreamInterceptor(logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer recoverRPC(logger, info.FullMethod, &err)
		return handler(srv, ss)
	}
}
