package ingestion

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mj-status/forecaster/internal/artifact"
	"github.com/mj-status/forecaster/internal/features"
	"github.com/mj-status/forecaster/internal/storage/models"
	"github.com/mj-status/forecaster/internal/storage/sqlite"
)

func newDB(t *testing.T) *sqlite.Client {
	t.Helper()
	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())
	return db
}

var may12 = time.Date(2023, 5, 12, 0, 0, 0, 0, time.UTC)

func event(id int64, typ, title string, offset time.Duration) models.EventRecord {
	return models.EventRecord{AlertID: id, Type: typ, ShortTitle: title, Timestamp: may12.Add(offset), Date: may12}
}

func TestPrepareEventsTruncatesAndDeduplicates(t *testing.T) {
	long := strings.Repeat("é", 250)
	out := PrepareEvents([]models.EventRecord{
		event(1, "error", long, time.Hour),
		event(1, "error", "second", 2*time.Hour),
		event(2, "warning", "slow", time.Hour),
	})
	require.Len(t, out, 2)
	assert.Equal(t, 200, len([]rune(out[0].ShortTitle)))
	assert.Equal(t, int64(2), out[1].AlertID)
}

func TestIngestRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	p := NewProcessor(db, zaptest.NewLogger(t))

	bad := event(2, "", "missing type", time.Hour)
	_, err := p.Ingest(ctx, Batch{Events: []models.EventRecord{event(1, "error", "disk", time.Hour), bad}})
	require.ErrorIs(t, err, features.ErrInvalidRecord)

	stored, err := db.EventsBetween(ctx, "2023-05-12", "2023-05-13")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestIngestRejectsEventsOffTheirDate(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	p := NewProcessor(db, zaptest.NewLogger(t))

	nextDay := event(2, "error", "disk", 25*time.Hour)
	_, err := p.Ingest(ctx, Batch{Events: []models.EventRecord{event(1, "error", "disk", time.Hour), nextDay}})
	require.ErrorIs(t, err, features.ErrInvalidRecord)

	cest := time.FixedZone("CEST", 2*60*60)
	late := models.EventRecord{
		AlertID:    3,
		Type:       "error",
		ShortTitle: "disk",
		Date:       time.Date(2023, 5, 12, 0, 0, 0, 0, cest),
		Timestamp:  time.Date(2023, 5, 12, 3, 0, 0, 0, cest),
	}
	_, err = p.Ingest(ctx, Batch{Events: []models.EventRecord{late}})
	require.ErrorIs(t, err, features.ErrInvalidRecord)

	stored, err := db.EventsBetween(ctx, "2023-05-11", "2023-05-14")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestIngestStoresOffsetDatesInUTC(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	p := NewProcessor(db, zaptest.NewLogger(t))

	cest := time.FixedZone("CEST", 2*60*60)
	_, err := p.Ingest(ctx, Batch{Events: []models.EventRecord{{
		AlertID:    1,
		Type:       "error",
		ShortTitle: "disk",
		Date:       time.Date(2023, 5, 12, 0, 0, 0, 0, cest),
		Timestamp:  time.Date(2023, 5, 12, 1, 0, 0, 0, cest),
	}}})
	require.NoError(t, err)

	stored, err := db.EventsBetween(ctx, "2023-05-11", "2023-05-12")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "2023-05-11", stored[0].Day())
	assert.Equal(t, int64(23*60*60), features.Offset(stored[0]))

	r := features.NewSampleResampler(15, 96)
	_, err = r.Resample(stored)
	require.NoError(t, err)
}

func TestIngestStoresBatch(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	p := NewProcessor(db, zaptest.NewLogger(t))

	res, err := p.Ingest(ctx, Batch{
		Events: []models.EventRecord{event(1, "error", "disk", time.Hour), event(1, "error", "disk", time.Hour)},
		Metrics: []models.MetricRecord{
			{Name: "mj.queue.relax.wait.job_type_imagine", Timestamp: may12, Value: 1.23456},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, &Result{EventsReceived: 2, EventsInserted: 1, Duplicates: 1, MetricsReceived: 1, MetricsInserted: 1}, res)

	readings, err := db.MetricsBetween(ctx, "2023-05-12", "2023-05-13")
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 1.2346, readings[0].Value)
}

func TestParseWindow(t *testing.T) {
	now := time.Date(2023, 5, 15, 13, 30, 0, 0, time.UTC)

	before, after, err := ParseWindow("yesterday", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 5, 14, 0, 0, 0, 0, time.UTC), before)
	assert.Equal(t, time.Date(2023, 5, 15, 0, 0, 0, 0, time.UTC), after)

	before, after, err = ParseWindow("today", now)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, after.Sub(before))
	assert.Equal(t, 15, before.Day())

	before, after, err = ParseWindow("2023-05-01_2023-05-04", now)
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, after.Sub(before))

	for _, bad := range []string{"last-week", "2023-05-04_2023-05-01", "2023-05-01_tomorrow"} {
		_, _, err = ParseWindow(bad, now)
		assert.Error(t, err, bad)
	}
}

func TestExtractWritesDayArtifacts(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	store := artifact.NewLocalStore(t.TempDir())
	p := NewProcessor(db, zaptest.NewLogger(t))

	_, err := p.Ingest(ctx, Batch{
		Events: []models.EventRecord{
			event(1, "error", "Disk Full", 10*time.Minute),
			event(2, "warning", "slow", 20*time.Minute),
		},
		Metrics: []models.MetricRecord{
			{Name: "mj.queue.relax.wait.job_type_imagine", Timestamp: may12, Value: 3},
			{Name: "mj.queue.relax.wait.job_type_imagine", Timestamp: may12.Add(15 * time.Minute), Value: 4},
			{Name: "mj.queue.fast.wait.job_type_imagine", Timestamp: may12, Value: 99},
		},
	})
	require.NoError(t, err)

	x := NewExtractor(db, store, ExtractorConfig{
		MetricsPrefix:    "metrics/relax",
		EventsPrefix:     "metrics/events",
		MetricKind:       "relax",
		MinutesPerSample: 15,
		SamplesPerDay:    96,
	}, zaptest.NewLogger(t))

	out, err := x.Extract(ctx, may12, may12.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "metrics/relax/2023-05-12_2023-05-13.json", out[0].MetricsKey)
	assert.Equal(t, []string{"error_disk_full", "warning_slow"}, out[0].EventColumns)
	assert.Empty(t, out[1].MetricsKey)
	assert.Empty(t, out[1].EventColumns)

	m, err := artifact.GetPayload(ctx, store, out[0].MetricsKey)
	require.NoError(t, err)
	require.Len(t, m["imagine"], 96)
	assert.Equal(t, []float64{3, 4, 0}, m["imagine"][:3])

	e, err := artifact.GetPayload(ctx, store, out[0].EventsKey)
	require.NoError(t, err)
	assert.Equal(t, 600.0, e["error_disk_full"][0])
	assert.Equal(t, 1200.0, e["warning_slow"][1])

	quiet, err := artifact.GetPayload(ctx, store, out[1].EventsKey)
	require.NoError(t, err)
	assert.Empty(t, quiet)
}
