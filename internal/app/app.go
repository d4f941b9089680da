// Package app wires the stores and services shared by the API server and the CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mj-status/forecaster/internal/api/handlers"
	"github.com/mj-status/forecaster/internal/artifact"
	"github.com/mj-status/forecaster/internal/cache/redis"
	"github.com/mj-status/forecaster/internal/flow"
	"github.com/mj-status/forecaster/internal/ingestion"
	"github.com/mj-status/forecaster/internal/storage/sqlite"
	"github.com/mj-status/forecaster/pkg/config"
	"github.com/mj-status/forecaster/pkg/logger"
)

type App struct {
	Config    *config.Config
	DB        *sqlite.Client
	Cache     *redis.Client
	Store     artifact.Store
	Flow      *flow.ModelFlow
	Processor *ingestion.Processor
	Extractor *ingestion.Extractor
}

// New opens the record database and the artifact store described by cfg. The Redis cache is only
// dialed when enabled; a cache that cannot be reached is logged and skipped.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite client: %w", err)
	}
	if err := db.InitSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	a := &App{Config: cfg, DB: db}

	a.Store, err = NewStore(ctx, cfg.Storage)
	if err != nil {
		db.Close()
		return nil, err
	}

	if cfg.Redis.Enabled {
		cache, err := redis.NewClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("Artifact cache unavailable, reading the store directly", zap.Error(err))
		} else {
			a.Cache = cache
			ttl := time.Duration(cfg.Redis.TTLSec) * time.Second
			a.Store = artifact.NewCachedStore(a.Store, cache, ttl, logger.Named("cache"))
		}
	}

	a.Flow = flow.New(a.Store, db, flow.OptionsFromConfig(cfg), logger.Named("flow"))
	a.Processor = ingestion.NewProcessor(db, logger.Named("ingestion"))
	a.Extractor = ingestion.NewExtractor(db, a.Store, ingestion.ExtractorConfig{
		MetricsPrefix:    cfg.Paths.Metrics,
		EventsPrefix:     cfg.Paths.Events,
		MetricKind:       cfg.Pipeline.MetricKind,
		MinutesPerSample: cfg.Pipeline.MinutesPerSample,
		SamplesPerDay:    cfg.Pipeline.SamplesPerDay,
	}, logger.Named("extract"))

	return a, nil
}

// NewStore opens the configured artifact backend.
func NewStore(ctx context.Context, cfg config.StorageConfig) (artifact.Store, error) {
	switch cfg.Backend {
	case "", "local":
		logger.Info("Local artifact store initialized", zap.String("root", cfg.Root))
		return artifact.NewLocalStore(cfg.Root), nil
	case "s3":
		s, err := artifact.NewS3Store(ctx, artifact.S3Options{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
		}, logger.Named("s3"))
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Pingers lists the dependencies the readiness check probes.
func (a *App) Pingers() map[string]handlers.Pinger {
	deps := map[string]handlers.Pinger{"sqlite": a.DB}
	if a.Cache != nil {
		deps["redis"] = a.Cache
	}
	return deps
}

func (a *App) Close() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	if err := a.DB.Close(); err != nil {
		logger.Warn("Failed to close SQLite client", zap.Error(err))
	}
}
