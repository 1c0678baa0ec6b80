package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"orchestra/auth"
	"orchestra/domain/event"
	"orchestra/infrastructure/storage"
	"orchestra/infrastructure/ws"
	"orchestra/internal"
	"orchestra/observability"
	"orchestra/projection"
	"orchestra/runtime"
	"orchestra/runtime/workers"
	"orchestra/services"
	"orchestra/sink"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	grpc3 "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Master terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Returning instead of exiting lets every defer (database close first) run.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Event log (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, storage.EventMapper)
	}

	// 3. Supervision & Orchestration
	telemetryChan := make(chan event.Event, config.BufferSize)
	counter := event.NewCounter()
	monitoring := observability.NewMonitoringManager(logger, counter.Snapshot)
	sup := workers.NewSupervisor(logger, telemetryChan, config.RestartInterval)
	repository := storage.NewEventRepository(db, logger, config.LimitEvents)
	activity := projection.NewRoomActivity()

	orchestrator := runtime.NewOrchestrator(logger, sup, telemetryChan, monitoring, counter, runtime.Config{
		BufferSize:           config.BufferSize,
		SinkTimeout:          config.SinkTimeout,
		MetricInterval:       config.MetricInterval,
		LowCapacityThreshold: config.LowCapacityThreshold,
	})
	orchestrator.Add("disk", sink.NewDiskSink(repository, logger))
	orchestrator.Add("activity", activity)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 2)

	// 5. Start the engine
	logger.Info("Starting orchestrator...")
	orchestrator.Start(ctx)

	// 6. Meeting transport (WebSocket + HTTP API)
	authenticator := auth.NewJWTAuthenticator(config.AuthSecret, config.AuthIssuer)
	meetingService := services.NewMeetingService(logger, authenticator, orchestrator.Coordinator(), activity, repository, orchestrator.Delivery(), monitoring)
	wsServer := ws.NewServer(logger, meetingService, monitoring, ws.Config{
		ConnectionBufferSize: config.ConnectionBufferSize,
		DeliveryTimeout:      config.DeliveryTimeout,
		MaxMessageSize:       config.MaxMessageSize,
		AllowedOrigins:       config.Origins(),
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           ws.NewRouter(wsServer, authenticator),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Starting meeting server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("meeting server error: %w", err)
		}
	}()

	// 7. gRPC health
	address := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpc3.UnaryLoggingInterceptor(logger),
			auth.UnaryAuthInterceptor(authenticator),
		))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	go func() {
		logger.Info("Starting gRPC server", "address", address, "at", time.Now().UTC())
		for serviceName := range s.GetServiceInfo() {
			logger.Debug("gRPC exposed services", "name", serviceName)
		}
		if err := s.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 9. Graceful shutdown: stop accepting, then let the workers drain
	logger.Info("Shutting down gracefully...")
	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Meeting server shutdown", "error", err)
	}
	s.GracefulStop()
	orchestrator.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
