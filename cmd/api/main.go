package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mj-status/forecaster/internal/api"
	"github.com/mj-status/forecaster/internal/api/handlers"
	"github.com/mj-status/forecaster/internal/app"
	"github.com/mj-status/forecaster/internal/metrics"
	"github.com/mj-status/forecaster/internal/middleware/ratelimit"
	"github.com/mj-status/forecaster/pkg/config"
	appLogger "github.com/mj-status/forecaster/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting forecaster API server")

	metrics.Init()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	services, err := app.New(ctx, cfg)
	cancel()
	if err != nil {
		appLogger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	var limiter *ratelimit.RateLimiter
	if cfg.Server.RunsPerMinute > 0 {
		limiter = ratelimit.New(ratelimit.Config{
			MaxRequests: cfg.Server.RunsPerMinute,
			Window:      time.Minute,
			Logger:      appLogger.Named("ratelimit"),
		})
		defer limiter.Stop()
	}

	server := api.NewApp(api.Handlers{
		Runs:      handlers.NewRunsHandler(services.Flow, services.DB),
		Records:   handlers.NewRecordsHandler(services.Processor, services.Extractor),
		Artifacts: handlers.NewArtifactsHandler(services.Store, cfg.Paths),
		Health:    handlers.NewHealthHandler(services.Pingers()),
	}, api.Options{
		Server:        cfg.Server,
		IsDevelopment: cfg.Server.Development,
		RunLimiter:    limiter,
		AccessLog:     cfg.Server.AccessLog,
		Logger:        appLogger.Named("http"),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting",
		zap.String("address", addr),
		zap.String("storage", services.Store.Backend()),
	)

	go func() {
		if err := server.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := server.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
