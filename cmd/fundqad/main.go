package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/app"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/config"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/metrics"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/server"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := app.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting fund FAQ service",
		"grpc_port", cfg.GRPCPort,
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
		"vector_backend", cfg.VectorBackend,
	)
	if cfg.IsProduction() && cfg.AuthEnabled && cfg.JWTSecret == "change-this-in-production" {
		logger.Warn("JWT_SECRET is the default value")
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer a.Close()

	if err := a.OpenAuditLog(ctx); err != nil {
		return err
	}

	sessions := a.Sessions()

	grpcServer, err := server.NewGRPCServer(server.GRPCServerConfig{
		Port:   cfg.GRPCPort,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}

	httpServer, err := server.NewHTTPServer(server.HTTPServerConfig{
		Port: cfg.HTTPPort,
		Router: server.RouterConfig{
			Answerer:       a.Service,
			Sessions:       sessions,
			Interactions:   a.Interactions,
			Auth:           a.Authenticator(sessions),
			Metrics:        metrics.Handler(a.Registry),
			Ready:          a.Ready,
			Logger:         logger,
			AllowedOrigins: cfg.AllowedOrigins,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	errCh := make(chan error, 2)

	go grpcServer.WatchReadiness(ctx, a.Ready, server.DefaultReadinessInterval)

	go func() {
		if err := grpcServer.Start(); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	}

	cancel()
	logger.Info("shutting down servers...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown gRPC server", "error", err)
	}

	logger.Info("servers stopped")
	return nil
}
