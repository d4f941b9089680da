package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forecaster_run_duration_seconds",
			Help:    "Fit and predict run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"action"},
	)

	RunTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecaster_run_total",
			Help: "Total number of fit and predict runs",
		},
		[]string{"action", "model", "status"},
	)

	FoldDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forecaster_fold_duration_seconds",
			Help:    "Walk-forward fold duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"model"},
	)

	FoldError = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forecaster_fold_mae",
			Help: "Mean absolute error of the last fit, per fold and partition",
		},
		[]string{"model", "fold", "partition"},
	)

	TableRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forecaster_table_rows",
			Help: "Rows in the combined feature table of the last run",
		},
		[]string{"action"},
	)

	ResampledSlots = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecaster_resampled_rows_total",
			Help: "Rows produced by the event resampler and metric reshaper",
		},
		[]string{"source"},
	)

	ArtifactsRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecaster_artifacts_read_total",
			Help: "Artifacts read from the store",
		},
		[]string{"backend"},
	)

	ArtifactsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecaster_artifacts_written_total",
			Help: "Artifacts written to the store",
		},
		[]string{"backend"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecaster_cache_hits_total",
			Help: "Total artifact cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecaster_cache_misses_total",
			Help: "Total artifact cache misses",
		},
		[]string{"cache_type"},
	)

	RecordsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecaster_records_ingested_total",
			Help: "Raw records accepted at the ingestion boundary",
		},
		[]string{"kind"},
	)

	BatchesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecaster_batches_rejected_total",
			Help: "Raw record batches rejected by validation",
		},
		[]string{"kind"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RunDuration,
			RunTotal,
			FoldDuration,
			FoldError,
			TableRows,
			ResampledSlots,
			ArtifactsRead,
			ArtifactsWritten,
			CacheHits,
			CacheMisses,
			RecordsIngested,
			BatchesRejected,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
