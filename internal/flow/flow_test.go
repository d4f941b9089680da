package flow

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mj-status/forecaster/internal/artifact"
	"github.com/mj-status/forecaster/internal/forecast"
	"github.com/mj-status/forecaster/internal/preprocessing"
	"github.com/mj-status/forecaster/internal/storage/models"
	"github.com/mj-status/forecaster/internal/table"
	"github.com/mj-status/forecaster/pkg/config"
)

var now = time.Date(2023, 5, 15, 12, 0, 0, 0, time.UTC)

func testOptions() Options {
	return Options{
		Pipeline: config.PipelineConfig{
			SamplesPerDay:    96,
			MinutesPerSample: 15,
			DaysPerCycle:     7,
			Periods:          []int{1, 3, 6, 12, 24, 168},
			ClipCeiling:      15,
			ClipSoftness:     0.2,
			MetricKind:       "relax",
			EventTypes:       []string{"error", "warning"},
		},
		Split:  config.SplitConfig{SampleSize: 96, Cycles: 3, StepSize: 2},
		Window: config.WindowConfig{Steps: 96, BatchSize: 32},
		Paths: config.PathsConfig{
			Metrics: "metrics/relax",
			Events:  "metrics/events",
			Models:  "models",
			Output:  "predictions",
		},
	}
}

// seed writes days of metric artifacts ending the day before now. Every other day also gets an
// event artifact.
func seed(t *testing.T, store artifact.Store, days int) {
	t.Helper()
	ctx := context.Background()
	first := time.Date(2023, 5, 15-days, 0, 0, 0, 0, time.UTC)
	for d := range days {
		date := first.AddDate(0, 0, d)
		m := artifact.Payload{"imagine": make([]float64, 96), "upscale": make([]float64, 96)}
		for i := range 96 {
			x := 2 * math.Pi * float64(i) / 96
			m["imagine"][i] = 6 + 3*math.Sin(x)
			m["upscale"][i] = 2 + math.Cos(x)
		}
		require.NoError(t, artifact.PutPayload(ctx, store, artifact.DayKey("metrics/relax", date), m))

		if d%2 == 0 {
			e := artifact.Payload{
				"index":           {10, 40},
				"error_disk_full": {9000, 0},
				"warning_slow":    {0, 36000},
			}
			require.NoError(t, artifact.PutPayload(ctx, store, artifact.DayKey("metrics/events", date), e))
		}
	}
}

type recorder struct{ runs []models.RunRecord }

func (r *recorder) InsertRun(_ context.Context, run *models.RunRecord) error {
	r.runs = append(r.runs, *run)
	return nil
}

func newFlow(t *testing.T, store artifact.Store, runs RunRecorder) *ModelFlow {
	f := New(store, runs, testOptions(), zaptest.NewLogger(t))
	f.now = func() time.Time { return now }
	return f
}

func intp(v int) *int { return &v }

func TestProcessEventsAlignsAndFilters(t *testing.T) {
	f := newFlow(t, artifact.NewLocalStore(t.TempDir()), nil)
	d1 := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)

	out, err := f.ProcessEvents([]artifact.Day{{
		Date: d2,
		Payload: artifact.Payload{
			"index":        {5},
			"warning_a":    {43200},
			"success_x":    {100},
			"error_b":      {86400},
			"error_unused": {0},
		},
	}}, []time.Time{d1, d2})
	require.NoError(t, err)

	assert.Equal(t, []string{"error_b", "warning_a"}, out.Columns)
	require.Equal(t, 192, out.Len())
	assert.Equal(t, []float64{0, 0}, out.Rows[5])
	assert.Equal(t, []float64{1, 0.5}, out.Rows[96+5])
}

func TestProcessEventsWithoutArtifacts(t *testing.T) {
	f := newFlow(t, artifact.NewLocalStore(t.TempDir()), nil)
	out, err := f.ProcessEvents(nil, []time.Time{now})
	require.NoError(t, err)
	assert.Equal(t, 96, out.Len())
	assert.Zero(t, out.Width())
}

func TestProcessMetricsClipsAndZeroFills(t *testing.T) {
	f := newFlow(t, artifact.NewLocalStore(t.TempDir()), nil)
	a := make([]float64, 96)
	a[0], a[1] = -3, 40
	out, err := f.ProcessMetrics([]artifact.Day{
		{Key: "d1", Payload: artifact.Payload{"a": a}},
		{Key: "d2", Payload: artifact.Payload{"b": make([]float64, 90)}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Columns)
	assert.Equal(t, 192, out.Len())
	assert.Zero(t, out.Rows[0][0])
	assert.InDelta(t, 15, out.Rows[1][0], 1e-9)

	_, err = f.ProcessMetrics([]artifact.Day{{Key: "d3", Payload: artifact.Payload{"a": make([]float64, 97)}}})
	require.ErrorIs(t, err, table.ErrShape)
}

func TestBuildCombinesTenDays(t *testing.T) {
	store := artifact.NewLocalStore(t.TempDir())
	seed(t, store, 10)
	f := newFlow(t, store, nil)

	ds, err := f.Build(context.Background(), testOptions().Paths, 10, 0)
	require.NoError(t, err)
	assert.Len(t, ds.Days, 10)
	assert.Equal(t, 960, ds.Table.Len())
	assert.Equal(t, 2, ds.Targets)
	assert.Equal(t, []string{"imagine", "upscale", "error_disk_full", "warning_slow"}, ds.Table.Columns[:4])
	assert.Equal(t, 4+12, ds.Table.Width())

	errCol, _ := ds.Table.Column("error_disk_full")
	assert.InDelta(t, 9000.0/86400, errCol[10], 1e-12)
	assert.Zero(t, errCol[96+10])
}

func TestBuildWithoutMetrics(t *testing.T) {
	store := artifact.NewLocalStore(t.TempDir())
	seed(t, store, 2)
	f := newFlow(t, store, nil)

	_, err := f.Build(context.Background(), testOptions().Paths, 30, 20)
	require.Error(t, err)
}

func TestFitWalksThreeFolds(t *testing.T) {
	store := artifact.NewLocalStore(t.TempDir())
	seed(t, store, 10)
	f := newFlow(t, store, nil)

	ds, err := f.Build(context.Background(), testOptions().Paths, 10, 0)
	require.NoError(t, err)

	res, err := f.Fit(context.Background(), "dense", ds.Table, 96)
	require.NoError(t, err)
	require.Len(t, res.Performance, 3)
	for i, p := range res.Performance {
		assert.Equal(t, i, p.Fold)
		assert.False(t, math.IsNaN(p.Val))
	}
	assert.Equal(t, 3, res.Summary.Folds)

	// the retained parameters are those of the last fold's training rows
	last, err := ds.Table.Take(preprocessing.Range{Start: 192, End: 576}.Rows(960))
	require.NoError(t, err)
	want, err := preprocessing.FitParams(last)
	require.NoError(t, err)
	assert.Equal(t, want, res.Params)
}

func TestFitRejectsShortTable(t *testing.T) {
	store := artifact.NewLocalStore(t.TempDir())
	seed(t, store, 5)
	f := newFlow(t, store, nil)

	ds, err := f.Build(context.Background(), testOptions().Paths, 10, 0)
	require.NoError(t, err)
	_, err = f.Fit(context.Background(), "dense", ds.Table, 96)
	require.ErrorIs(t, err, preprocessing.ErrInvalidSplit)
}

func TestRunFitThenPredict(t *testing.T) {
	ctx := context.Background()
	store := artifact.NewLocalStore(t.TempDir())
	seed(t, store, 10)
	runs := &recorder{}
	f := newFlow(t, store, runs)

	fit, err := f.Run(ctx, RunRequest{Model: "dense", Action: Action{Type: ActionFit, Start: intp(10)}})
	require.NoError(t, err)
	assert.Equal(t, []string{"models/dense.json", "models/dense.csv"}, fit.Artifacts)
	assert.Len(t, fit.Performance, 3)

	bundle, err := artifact.LoadBundle(ctx, store, "models", "dense")
	require.NoError(t, err)
	assert.Equal(t, fit.ID, bundle.ID)
	assert.Equal(t, 16, bundle.Features)
	assert.Equal(t, 2, bundle.Targets)

	pred, err := f.Run(ctx, RunRequest{Model: "dense", Action: Action{Type: ActionPredict}})
	require.NoError(t, err)
	assert.Equal(t, []string{"predictions/dense_2023-05-15.csv"}, pred.Artifacts)
	assert.Equal(t, []string{"2023-05-14"}, pred.Days)
	require.NotNil(t, pred.Prediction)
	assert.Equal(t, []string{"imagine", "upscale"}, pred.Prediction.Columns)
	require.Len(t, pred.Prediction.Rows, 96)
	for _, r := range pred.Prediction.Rows {
		for _, v := range r {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 15.0)
		}
	}

	data, err := store.Get(ctx, "predictions/dense_2023-05-15.csv")
	require.NoError(t, err)
	assert.Contains(t, string(data), "imagine,upscale\n")

	require.Len(t, runs.runs, 2)
	assert.Equal(t, models.StatusSuccess, runs.runs[0].Status)
	assert.Equal(t, 3, runs.runs[0].Folds)
	assert.Equal(t, ActionPredict, runs.runs[1].Action)
}

func TestRunPredictWithoutBundle(t *testing.T) {
	store := artifact.NewLocalStore(t.TempDir())
	seed(t, store, 2)
	runs := &recorder{}
	f := newFlow(t, store, runs)

	_, err := f.Run(context.Background(), RunRequest{Model: "cnn", Action: Action{Type: ActionPredict}})
	require.ErrorIs(t, err, artifact.ErrNotFound)
	require.Len(t, runs.runs, 1)
	assert.Equal(t, models.StatusFailed, runs.runs[0].Status)
	assert.NotEmpty(t, runs.runs[0].Error)
}

func TestRunRequestValidation(t *testing.T) {
	for name, req := range map[string]RunRequest{
		"no model":       {Action: Action{Type: ActionFit}},
		"unknown action": {Model: "dense", Action: Action{Type: "train"}},
		"negative start": {Model: "dense", Action: Action{Type: ActionFit, Start: intp(-1)}},
		"end past start": {Model: "dense", Action: Action{Type: ActionFit, Start: intp(2), End: intp(3)}},
		"negative steps": {Model: "dense", Action: Action{Type: ActionFit}, Steps: -1},
	} {
		assert.Error(t, req.Validate(), name)
	}

	err := RunRequest{Model: "transformer", Action: Action{Type: ActionFit}}.Validate()
	require.ErrorIs(t, err, forecast.ErrUnknownModel)

	require.NoError(t, RunRequest{Model: "feedback", Action: Action{Type: ActionPredict}}.Validate())
}

func TestActionOffsetsDefaults(t *testing.T) {
	start, end := Action{Type: ActionFit}.Offsets()
	assert.Equal(t, 28, start)
	assert.Zero(t, end)

	start, end = Action{Type: ActionPredict}.Offsets()
	assert.Equal(t, 1, start)
	assert.Zero(t, end)

	start, end = Action{Type: ActionPredict, Start: intp(3), End: intp(1)}.Offsets()
	assert.Equal(t, 3, start)
	assert.Equal(t, 1, end)
}
