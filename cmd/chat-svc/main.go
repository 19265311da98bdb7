package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc/reflection"

	"gocampus/internal/config"
	"gocampus/internal/di"
)

func main() {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	app, cleanup, err := di.InitializeApplication(cfg)
	if err != nil {
		log.Fatalf("failed to initialize chat service: %v", err)
	}
	defer cleanup()
	logger := app.Logger

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:      app.HTTP,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.IsDevelopment() {
		reflection.Register(app.GRPC)
	}
	lis, err := net.Listen("tcp", net.JoinHostPort(cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		log.Fatalf("failed to listen on port %s: %v", cfg.Server.GRPCPort, err)
	}

	go func() {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()
	go func() {
		logger.Info("grpc gateway listening", "addr", lis.Addr().String())
		if err := app.GRPC.Serve(lis); err != nil {
			logger.Error("grpc server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down chat service")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// websocket connections are hijacked, so Shutdown does not wait for them
	app.Hub.Shutdown()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	app.GRPC.GracefulStop()
	logger.Info("chat service stopped")
}
