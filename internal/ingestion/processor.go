package ingestion

import (
	"context"
	"fmt"
	"math"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mj-status/forecaster/internal/features"
	"github.com/mj-status/forecaster/internal/metrics"
	"github.com/mj-status/forecaster/internal/storage/models"
)

// MaxFieldLength bounds event text fields.
const MaxFieldLength = 200

// RecordStore persists raw records and serves them back by day.
type RecordStore interface {
	InsertEvents(ctx context.Context, events []models.EventRecord) (int, error)
	InsertMetrics(ctx context.Context, metrics []models.MetricRecord) (int, error)
	EventsBetween(ctx context.Context, before, after string) ([]models.EventRecord, error)
	MetricsBetween(ctx context.Context, before, after string) ([]models.MetricRecord, error)
}

type Batch struct {
	Events  []models.EventRecord  `json:"events"`
	Metrics []models.MetricRecord `json:"metrics"`
}

type Result struct {
	EventsReceived  int `json:"events_received"`
	EventsInserted  int `json:"events_inserted"`
	Duplicates      int `json:"duplicates"`
	MetricsReceived int `json:"metrics_received"`
	MetricsInserted int `json:"metrics_inserted"`
}

type Processor struct {
	db     RecordStore
	logger *zap.Logger
}

func NewProcessor(db RecordStore, logger *zap.Logger) *Processor {
	return &Processor{db: db, logger: logger}
}

// Ingest validates the whole batch before writing any of it. A malformed record rejects the batch.
func (p *Processor) Ingest(ctx context.Context, batch Batch) (*Result, error) {
	res := &Result{EventsReceived: len(batch.Events), MetricsReceived: len(batch.Metrics)}

	events := PrepareEvents(batch.Events)
	res.Duplicates = len(batch.Events) - len(events)
	if err := features.ValidateEvents(events); err != nil {
		metrics.BatchesRejected.WithLabelValues("events").Inc()
		return nil, err
	}

	readings := PrepareMetrics(batch.Metrics)
	if err := features.ValidateMetrics(readings); err != nil {
		metrics.BatchesRejected.WithLabelValues("metrics").Inc()
		return nil, err
	}

	var err error
	if len(events) > 0 {
		res.EventsInserted, err = p.db.InsertEvents(ctx, events)
		if err != nil {
			return nil, fmt.Errorf("failed to store events: %w", err)
		}
		metrics.RecordsIngested.WithLabelValues("events").Add(float64(res.EventsInserted))
	}
	if len(readings) > 0 {
		res.MetricsInserted, err = p.db.InsertMetrics(ctx, readings)
		if err != nil {
			return nil, fmt.Errorf("failed to store metrics: %w", err)
		}
		metrics.RecordsIngested.WithLabelValues("metrics").Add(float64(res.MetricsInserted))
	}

	p.logger.Info("Batch ingested",
		zap.Int("events_received", res.EventsReceived),
		zap.Int("events_inserted", res.EventsInserted),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("metrics_received", res.MetricsReceived),
		zap.Int("metrics_inserted", res.MetricsInserted),
	)
	return res, nil
}

// PrepareEvents moves times to UTC, truncates text fields and keeps the first occurrence of every
// alert id.
func PrepareEvents(in []models.EventRecord) []models.EventRecord {
	seen := make(map[int64]struct{}, len(in))
	out := make([]models.EventRecord, 0, len(in))
	for _, e := range in {
		if _, ok := seen[e.AlertID]; ok {
			continue
		}
		seen[e.AlertID] = struct{}{}
		e.Timestamp = e.Timestamp.UTC()
		e.Date = e.Date.UTC()
		e.ShortTitle = truncate(e.ShortTitle, MaxFieldLength)
		e.Label = truncate(e.Label, MaxFieldLength)
		e.Type = truncate(e.Type, MaxFieldLength)
		out = append(out, e)
	}
	return out
}

// PrepareMetrics rounds readings to four decimals.
func PrepareMetrics(in []models.MetricRecord) []models.MetricRecord {
	out := make([]models.MetricRecord, len(in))
	for i, m := range in {
		m.Value = math.Round(m.Value*1e4) / 1e4
		out[i] = m
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
