// Package api assembles the HTTP surface of the forecaster.
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/mj-status/forecaster/internal/api/handlers"
	"github.com/mj-status/forecaster/internal/metrics"
	"github.com/mj-status/forecaster/internal/middleware/ratelimit"
	"github.com/mj-status/forecaster/internal/middleware/security"
	"github.com/mj-status/forecaster/internal/middleware/validation"
	"github.com/mj-status/forecaster/pkg/config"
)

type Handlers struct {
	Runs      *handlers.RunsHandler
	Records   *handlers.RecordsHandler
	Artifacts *handlers.ArtifactsHandler
	Health    *handlers.HealthHandler
}

type Options struct {
	Server        config.ServerConfig
	IsDevelopment bool
	// RunLimiter throttles run creation; nil disables it.
	RunLimiter *ratelimit.RateLimiter
	// AccessLog enables the per-request access log.
	AccessLog bool
	Logger    *zap.Logger
}

func NewApp(h Handlers, opts Options) *fiber.App {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(opts.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(opts.Server.WriteTimeout) * time.Second,
		BodyLimit:    opts.Server.BodyLimit,
	})

	app.Use(recover.New())
	if opts.AccessLog {
		app.Use(fiberlogger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{IsDevelopment: opts.IsDevelopment}))
	app.Use(validation.Middleware(validation.Config{Logger: opts.Logger}))

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")

	runs := []fiber.Handler{h.Runs.CreateRun}
	if opts.RunLimiter != nil {
		runs = append([]fiber.Handler{opts.RunLimiter.Middleware()}, runs...)
	}
	api.Post("/runs", runs...)
	api.Get("/runs", h.Runs.ListRuns)
	api.Get("/runs/:id", h.Runs.GetRun)

	api.Post("/records", h.Records.IngestRecords)
	api.Post("/extract", h.Records.Extract)

	api.Get("/artifacts", h.Artifacts.ListArtifacts)

	api.Get("/health", h.Health.Health)
	api.Get("/ready", h.Health.Ready)

	return app
}
