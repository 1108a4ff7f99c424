package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	httpapi "mentorbook-backend/internal/api/http"
	"mentorbook-backend/internal/app"
	"mentorbook-backend/internal/config"
	"mentorbook-backend/internal/logger"
	"mentorbook-backend/internal/security"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync()
	logger.Info("Starting Mentorbook Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "http_address", cfg.GetServerAddress(), "grpc_address", cfg.GetGRPCAddress())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize store, locks, notifier and services
	a, err := app.New(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer a.Close()

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.JWT.Secret)

	router := httpapi.NewRouter(httpapi.Services{
		Availability:  a.Availability,
		Bookings:      a.Bookings,
		Ledger:        a.Ledger,
		Payouts:       a.Payouts,
		Notifications: a.Notifications,
	}, tokenManager, httpapi.WebhookSecrets{
		Payments: cfg.Payments.WebhookSecret,
		Payouts:  cfg.Payouts.WebhookSecret,
	})

	httpServer := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Set up gRPC server for health checks
	lis, err := net.Listen("tcp", cfg.GetGRPCAddress())
	if err != nil {
		logger.Error("Failed to listen", "error", err, "address", cfg.GetGRPCAddress())
		log.Fatalf("Failed to listen: %v", err)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// Register reflection service for grpcurl
	reflection.Register(grpcServer)

	go func() {
		logger.Info("gRPC health server listening", "address", cfg.GetGRPCAddress())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("Failed to serve gRPC", "error", err)
		}
	}()

	go func() {
		logger.Info("HTTP server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	<-ctx.Done()

	// Graceful shutdown
	logger.Info("Shutting down...")
	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	grpcServer.GracefulStop()
	logger.Info("Server stopped. Goodbye!")
}
