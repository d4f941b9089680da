package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mj-status/forecaster/internal/artifact"
	"github.com/mj-status/forecaster/internal/features"
	"github.com/mj-status/forecaster/internal/metrics"
	"github.com/mj-status/forecaster/internal/storage/models"
)

// MaxExtractDays bounds the extraction window accepted over HTTP.
const MaxExtractDays = 31

// ParseWindow resolves an extraction window: "today", "yesterday" or "YYYY-MM-DD_YYYY-MM-DD".
// The window is [before, after) in whole days.
func ParseWindow(mode string, now time.Time) (before, after time.Time, err error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch mode {
	case "", "yesterday":
		return today.AddDate(0, 0, -1), today, nil
	case "today":
		return today, today.AddDate(0, 0, 1), nil
	}

	from, to, ok := strings.Cut(mode, "_")
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid extraction window %q", mode)
	}
	if before, err = time.ParseInLocation(models.DayLayout, from, now.Location()); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid extraction window %q: %w", mode, err)
	}
	if after, err = time.ParseInLocation(models.DayLayout, to, now.Location()); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid extraction window %q: %w", mode, err)
	}
	if !after.After(before) {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid extraction window %q: end not after start", mode)
	}
	return before, after, nil
}

type ExtractorConfig struct {
	MetricsPrefix    string
	EventsPrefix     string
	MetricKind       string
	MinutesPerSample int
	SamplesPerDay    int
}

// Extractor turns raw records of whole days into the per-day metric and event artifacts the
// forecasting flow reads.
type Extractor struct {
	db        RecordStore
	store     artifact.Store
	cfg       ExtractorConfig
	resampler *features.SampleResampler
	reshaper  *features.MetricReshaper
	logger    *zap.Logger
}

func NewExtractor(db RecordStore, store artifact.Store, cfg ExtractorConfig, logger *zap.Logger) *Extractor {
	return &Extractor{
		db:        db,
		store:     store,
		cfg:       cfg,
		resampler: features.NewSampleResampler(cfg.MinutesPerSample, cfg.SamplesPerDay),
		reshaper:  features.NewMetricReshaper(cfg.MetricKind),
		logger:    logger,
	}
}

type DayArtifacts struct {
	Day          string   `json:"day"`
	MetricsKey   string   `json:"metrics_key,omitempty"`
	EventsKey    string   `json:"events_key"`
	MetricLabels int      `json:"metric_labels"`
	EventColumns []string `json:"event_columns"`
}

// Extract writes one metric and one event artifact per day of [before, after). A day without
// readings of the configured kind gets no metric artifact.
func (x *Extractor) Extract(ctx context.Context, before, after time.Time) ([]DayArtifacts, error) {
	var out []DayArtifacts
	for day := before; day.Before(after); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := x.extractDay(ctx, day)
		if err != nil {
			return out, fmt.Errorf("extract %s: %w", day.Format(models.DayLayout), err)
		}
		out = append(out, *res)
	}
	return out, nil
}

func (x *Extractor) extractDay(ctx context.Context, day time.Time) (*DayArtifacts, error) {
	from := day.Format(models.DayLayout)
	to := day.AddDate(0, 0, 1).Format(models.DayLayout)
	res := &DayArtifacts{Day: from}

	readings, err := x.db.MetricsBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	series, err := x.reshaper.Reshape(readings)
	if err != nil {
		return nil, err
	}
	if len(series) > 0 {
		grid, err := features.Grid(series, x.cfg.MinutesPerSample, x.cfg.SamplesPerDay)
		if err != nil {
			return nil, err
		}
		res.MetricsKey = artifact.DayKey(x.cfg.MetricsPrefix, day)
		res.MetricLabels = len(grid)
		if err := artifact.PutPayload(ctx, x.store, res.MetricsKey, grid); err != nil {
			return nil, err
		}
		metrics.ResampledSlots.WithLabelValues("metrics").Add(float64(x.cfg.SamplesPerDay))
	} else {
		x.logger.Warn("No metric readings for day", zap.String("day", from), zap.String("kind", x.cfg.MetricKind))
	}

	events, err := x.db.EventsBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	grid, err := x.resampler.Resample(events)
	if err != nil {
		return nil, err
	}
	res.EventsKey = artifact.DayKey(x.cfg.EventsPrefix, day)
	res.EventColumns = grid.Columns
	if err := artifact.PutPayload(ctx, x.store, res.EventsKey, x.resampler.Payload(grid)); err != nil {
		return nil, err
	}
	metrics.ResampledSlots.WithLabelValues("events").Add(float64(grid.Len()))

	x.logger.Info("Day extracted",
		zap.String("day", from),
		zap.Int("events", len(events)),
		zap.Int("metric_readings", len(readings)),
		zap.Strings("event_columns", grid.Columns),
	)
	return res, nil
}
