// Package flow runs the fit and predict paths: it assembles the feature table from day artifacts,
// walks the folds, and persists model bundles and result tables.
package flow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mj-status/forecaster/internal/artifact"
	"github.com/mj-status/forecaster/internal/evaluation"
	"github.com/mj-status/forecaster/internal/features"
	"github.com/mj-status/forecaster/internal/forecast"
	"github.com/mj-status/forecaster/internal/metrics"
	"github.com/mj-status/forecaster/internal/preprocessing"
	"github.com/mj-status/forecaster/internal/storage/models"
	"github.com/mj-status/forecaster/internal/table"
	"github.com/mj-status/forecaster/internal/window"
	"github.com/mj-status/forecaster/pkg/config"
)

const secondsPerDay = 60 * 60 * 24

// RunRecorder keeps the run history.
type RunRecorder interface {
	InsertRun(ctx context.Context, run *models.RunRecord) error
}

type Options struct {
	Pipeline config.PipelineConfig
	Split    config.SplitConfig
	Window   config.WindowConfig
	Paths    config.PathsConfig
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{Pipeline: cfg.Pipeline, Split: cfg.Split, Window: cfg.Window, Paths: cfg.Paths}
}

type ModelFlow struct {
	store     artifact.Store
	runs      RunRecorder
	opts      Options
	clipper   features.SoftClipper
	encoder   features.TimeEncoder
	resampler *features.SampleResampler
	logger    *zap.Logger
	now       func() time.Time
}

// New builds a flow over store. runs may be nil, in which case no run history is kept.
func New(store artifact.Store, runs RunRecorder, opts Options, logger *zap.Logger) *ModelFlow {
	p := opts.Pipeline
	return &ModelFlow{
		store:     store,
		runs:      runs,
		opts:      opts,
		clipper:   features.NewSoftClipper(p.ClipCeiling, p.ClipSoftness),
		encoder:   features.NewTimeEncoder(p.SamplesPerDay, p.MinutesPerSample, p.DaysPerCycle, p.Periods),
		resampler: features.NewSampleResampler(p.MinutesPerSample, p.SamplesPerDay),
		logger:    logger,
		now:       time.Now,
	}
}

// Dataset is the combined feature table of a run.
type Dataset struct {
	Table *table.Table
	// Targets is the number of leading metric columns that predictions report.
	Targets int
	Days    []string
}

// ProcessMetrics stacks the metric days in order, zero-filling labels a day lacks, and soft-clips
// every value.
func (f *ModelFlow) ProcessMetrics(days []artifact.Day) (*table.Table, error) {
	tables := make([]*table.Table, 0, len(days))
	for _, d := range days {
		t, err := table.FromColumns(d.Payload)
		if err != nil {
			return nil, fmt.Errorf("metric artifact %s: %w", d.Key, err)
		}
		if t.Len() > f.opts.Pipeline.SamplesPerDay {
			return nil, fmt.Errorf("metric artifact %s: %w: %d rows, day has %d slots",
				d.Key, table.ErrShape, t.Len(), f.opts.Pipeline.SamplesPerDay)
		}
		if missing := f.opts.Pipeline.SamplesPerDay - t.Len(); missing > 0 {
			f.logger.Warn("Metric artifact short of a full day, padding with zeros",
				zap.String("key", d.Key), zap.Int("missing_rows", missing))
			t = table.Concat(t, table.Zeros(t.Columns, missing))
		}
		tables = append(tables, t)
	}
	out := table.Concat(tables...)
	f.clipper.ClipTable(out)
	return out, nil
}

// ProcessEvents places the event day matching each date on the full slot grid. Dates without an
// event artifact become zero rows. Columns that stay zero are dropped, offsets are scaled by the
// length of a day, and only columns of the configured event types are kept, grouped by type.
func (f *ModelFlow) ProcessEvents(days []artifact.Day, dates []time.Time) (*table.Table, error) {
	byDate := make(map[string]artifact.Payload, len(days))
	for _, d := range days {
		byDate[d.Date.Format(models.DayLayout)] = d.Payload
	}

	grids := make([]*table.Table, 0, len(dates))
	for _, date := range dates {
		grid, err := f.resampler.Densify(byDate[date.Format(models.DayLayout)])
		if err != nil {
			return nil, fmt.Errorf("event artifact %s: %w", date.Format(models.DayLayout), err)
		}
		grids = append(grids, grid)
	}

	all := table.Concat(grids...).DropZeroColumns()
	all.Apply(func(v float64) float64 { return v / secondsPerDay })

	var keep []string
	for _, typ := range f.opts.Pipeline.EventTypes {
		for _, c := range all.Columns {
			if prefix, _, _ := strings.Cut(c, "_"); prefix == typ {
				keep = append(keep, c)
			}
		}
	}
	return all.Select(keep)
}

// Combine joins event features onto metric rows by position and appends the time encodings.
func (f *ModelFlow) Combine(metricTable, eventTable *table.Table) (*table.Table, error) {
	out, err := table.Join(metricTable, eventTable)
	if err != nil {
		return nil, err
	}
	if err := f.encoder.Apply(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Build loads the day artifacts selected by the offsets and assembles the feature table.
func (f *ModelFlow) Build(ctx context.Context, paths config.PathsConfig, start, end int) (*Dataset, error) {
	r := artifact.Offsets(f.now(), start, end)

	metricDays, err := artifact.LoadDays(ctx, f.store, paths.Metrics, r)
	if err != nil {
		return nil, err
	}
	if len(metricDays) == 0 {
		return nil, fmt.Errorf("no metric artifacts under %s between %s and %s",
			paths.Metrics, r.From.Format(time.DateTime), r.To.Format(time.DateTime))
	}
	eventDays, err := artifact.LoadDays(ctx, f.store, paths.Events, r)
	if err != nil && !errors.Is(err, artifact.ErrNotFound) {
		return nil, err
	}

	ds := &Dataset{}
	dates := make([]time.Time, len(metricDays))
	for i, d := range metricDays {
		dates[i] = d.Date
		ds.Days = append(ds.Days, d.Date.Format(models.DayLayout))
	}

	metricTable, err := f.ProcessMetrics(metricDays)
	if err != nil {
		return nil, err
	}
	eventTable, err := f.ProcessEvents(eventDays, dates)
	if err != nil {
		return nil, err
	}
	ds.Table, err = f.Combine(metricTable, eventTable)
	if err != nil {
		return nil, err
	}

	if metricTable.Width() == 0 {
		return nil, fmt.Errorf("metric artifacts under %s hold no labels", paths.Metrics)
	}
	ds.Targets = metricTable.Width()
	if t := f.opts.Pipeline.Targets; t > 0 && t < ds.Targets {
		ds.Targets = t
	}

	f.logger.Info("Feature table built",
		zap.Int("days", len(metricDays)),
		zap.Int("event_days", len(eventDays)),
		zap.Int("rows", ds.Table.Len()),
		zap.Int("columns", ds.Table.Width()),
		zap.Int("targets", ds.Targets),
	)
	return ds, nil
}

// FitResult is the outcome of a walk-forward fit. Model and Params belong to the last fold.
type FitResult struct {
	Model       forecast.Forecaster
	Params      preprocessing.Params
	Spec        window.Spec
	Performance []models.FoldPerformance
	Summary     evaluation.Summary
}

// Fit trains one forecaster per fold, sequentially. Normalization parameters are fit on each
// fold's training rows only.
func (f *ModelFlow) Fit(ctx context.Context, model string, t *table.Table, steps int) (*FitResult, error) {
	split := preprocessing.NewWalkForward(f.opts.Split.SampleSize, f.opts.Split.Cycles, f.opts.Split.StepSize)
	folds, err := split.Folds(t.Len())
	if err != nil {
		return nil, err
	}

	res := &FitResult{Spec: window.Spec{InputWidth: steps, LabelWidth: steps, Shift: steps}}
	for fold := range folds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		started := time.Now()

		m, params, perf, err := f.fitFold(ctx, model, t, fold, res.Spec, steps)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", fold.Index, err)
		}
		res.Model, res.Params = m, params
		res.Performance = append(res.Performance, perf)

		foldLabel := strconv.Itoa(fold.Index)
		metrics.FoldDuration.WithLabelValues(model).Observe(time.Since(started).Seconds())
		metrics.FoldError.WithLabelValues(model, foldLabel, "val").Set(perf.Val)
		metrics.FoldError.WithLabelValues(model, foldLabel, "test").Set(perf.Test)

		f.logger.Info("Fold fitted",
			zap.String("model", model),
			zap.Int("fold", fold.Index),
			zap.Int("train_start", fold.Train.Start),
			zap.Int("train_end", fold.Train.End),
			zap.Int("test_end", fold.Test.End),
			zap.Float64("val_mae", perf.Val),
			zap.Float64("test_mae", perf.Test),
			zap.Duration("took", time.Since(started)),
		)
	}

	res.Summary = evaluation.Summarize(res.Performance)
	res.Summary.Log(f.logger, model)
	return res, nil
}

func (f *ModelFlow) fitFold(ctx context.Context, model string, t *table.Table, fold preprocessing.Fold, spec window.Spec, steps int) (forecast.Forecaster, preprocessing.Params, models.FoldPerformance, error) {
	perf := models.FoldPerformance{Fold: fold.Index}
	population := t.Len()

	parts := make([]*table.Table, 3)
	for i, r := range []preprocessing.Range{fold.Train, fold.Val, fold.Test} {
		part, err := t.Take(r.Rows(population))
		if err != nil {
			return nil, preprocessing.Params{}, perf, err
		}
		parts[i] = part
	}

	var norm preprocessing.Normalizer
	params, err := norm.Fit(parts[0])
	if err != nil {
		return nil, params, perf, err
	}
	for i, part := range parts {
		if parts[i], err = norm.Transform(part); err != nil {
			return nil, params, perf, err
		}
	}

	w, err := window.New(parts[0], parts[1], parts[2], spec, f.opts.Window.BatchSize)
	if err != nil {
		return nil, params, perf, err
	}

	m, err := forecast.New(model, t.Width(), steps)
	if err != nil {
		return nil, params, perf, err
	}
	if err := m.Fit(ctx, w.Train, w.Val); err != nil {
		return nil, params, perf, err
	}
	if perf.Val, err = m.Evaluate(w.Val); err != nil {
		return nil, params, perf, err
	}
	if perf.Test, err = m.Evaluate(w.Test); err != nil {
		return nil, params, perf, err
	}
	return m, params, perf, nil
}

// Predict forecasts the steps following t with a persisted bundle. The leading target columns are
// denormalized and soft-clipped.
func (f *ModelFlow) Predict(b *artifact.Bundle, t *table.Table) (*table.Table, error) {
	if b.Targets <= 0 || b.Targets > b.Features {
		return nil, fmt.Errorf("bundle %s: %d targets for %d features", b.Model, b.Targets, b.Features)
	}
	aligned := f.conform(t, b.Params.Columns)
	normalized, err := b.Params.Transform(aligned)
	if err != nil {
		return nil, err
	}
	ex, err := window.PredictExample(normalized, b.Spec)
	if err != nil {
		return nil, err
	}
	m, err := forecast.Load(b.Model, b.Features, b.Steps, b.State)
	if err != nil {
		return nil, err
	}
	out, err := m.Predict(ex)
	if err != nil {
		return nil, err
	}

	rows := make([][]float64, len(out))
	for i, r := range out {
		rows[i] = append([]float64(nil), r[:b.Targets]...)
	}
	if err := b.Params.InverseRows(rows); err != nil {
		return nil, err
	}
	f.clipper.ClipRows(rows)
	return table.New(append([]string(nil), b.Params.Columns[:b.Targets]...), rows)
}

// conform reorders t to columns. Columns t lacks become zero; columns the bundle never saw are
// dropped.
func (f *ModelFlow) conform(t *table.Table, columns []string) *table.Table {
	out := table.Zeros(columns, t.Len())
	var missing []string
	for k, c := range columns {
		j := t.Index(c)
		if j < 0 {
			missing = append(missing, c)
			continue
		}
		for i, r := range t.Rows {
			out.Rows[i][k] = r[j]
		}
	}
	if len(missing) > 0 {
		f.logger.Warn("Prediction input lacks fitted columns, using zeros", zap.Strings("columns", missing))
	}
	if extra := t.Width() - (len(columns) - len(missing)); extra > 0 {
		f.logger.Warn("Prediction input has columns the model was not fitted on", zap.Int("dropped", extra))
	}
	return out
}

type RunResult struct {
	ID          string                   `json:"id"`
	Model       string                   `json:"model"`
	Action      string                   `json:"action"`
	Days        []string                 `json:"days"`
	Rows        int                      `json:"rows"`
	Columns     []string                 `json:"columns"`
	Performance []models.FoldPerformance `json:"performance,omitempty"`
	Summary     *evaluation.Summary      `json:"summary,omitempty"`
	Prediction  *table.Table             `json:"prediction,omitempty"`
	Artifacts   []string                 `json:"artifacts"`
}

// Run executes one fit or predict request end to end and records it in the run history.
func (f *ModelFlow) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	paths := f.opts.Paths
	if req.Paths != nil {
		paths = *req.Paths
	}
	steps := req.Steps
	if steps == 0 {
		steps = f.opts.Window.Steps
	}

	started := time.Now()
	res := &RunResult{ID: uuid.NewString(), Model: req.Model, Action: req.Action.Type}
	log := f.logger.With(zap.String("run_id", res.ID), zap.String("model", req.Model), zap.String("action", req.Action.Type))
	log.Info("Run started", zap.Int("steps", steps))

	var err error
	switch req.Action.Type {
	case ActionFit:
		err = f.runFit(ctx, req, paths, steps, res)
	case ActionPredict:
		err = f.runPredict(ctx, req, paths, res)
	}

	status := models.StatusSuccess
	if err != nil {
		status = models.StatusFailed
		log.Error("Run failed", zap.Error(err))
	} else {
		log.Info("Run finished", zap.Int("rows", res.Rows), zap.Strings("artifacts", res.Artifacts))
	}
	metrics.RunDuration.WithLabelValues(req.Action.Type).Observe(time.Since(started).Seconds())
	metrics.RunTotal.WithLabelValues(req.Action.Type, req.Model, status).Inc()

	if f.runs != nil {
		rec := &models.RunRecord{
			ID:        res.ID,
			Model:     req.Model,
			Action:    req.Action.Type,
			Status:    status,
			Folds:     len(res.Performance),
			Rows:      res.Rows,
			ValMAE:    math.NaN(),
			TestMAE:   math.NaN(),
			CreatedAt: started,
			LatencyMS: time.Since(started).Milliseconds(),
		}
		if res.Summary != nil {
			rec.ValMAE, rec.TestMAE = res.Summary.Val.Mean, res.Summary.Test.Mean
		}
		if err != nil {
			rec.Error = err.Error()
		}
		if rerr := f.runs.InsertRun(ctx, rec); rerr != nil {
			log.Warn("Failed to record run", zap.Error(rerr))
		}
	}

	if err != nil {
		return nil, err
	}
	return res, nil
}

func (f *ModelFlow) runFit(ctx context.Context, req RunRequest, paths config.PathsConfig, steps int, res *RunResult) error {
	start, end := req.Action.Offsets()
	ds, err := f.Build(ctx, paths, start, end)
	if err != nil {
		return err
	}
	res.Days, res.Rows, res.Columns = ds.Days, ds.Table.Len(), ds.Table.Columns
	metrics.TableRows.WithLabelValues(ActionFit).Set(float64(ds.Table.Len()))

	fit, err := f.Fit(ctx, req.Model, ds.Table, steps)
	if err != nil {
		return err
	}
	res.Performance, res.Summary = fit.Performance, &fit.Summary

	state, err := fit.Model.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", req.Model, err)
	}
	bundle := &artifact.Bundle{
		ID:          res.ID,
		Model:       req.Model,
		Features:    ds.Table.Width(),
		Steps:       steps,
		Targets:     ds.Targets,
		Spec:        fit.Spec,
		Params:      fit.Params,
		State:       state,
		Performance: fit.Performance,
		CreatedAt:   f.now().UTC(),
	}
	if err := artifact.SaveBundle(ctx, f.store, paths.Models, bundle); err != nil {
		return err
	}
	if err := artifact.SavePerformance(ctx, f.store, paths.Models, req.Model, fit.Performance); err != nil {
		return err
	}
	res.Artifacts = []string{
		artifact.BundleKey(paths.Models, req.Model),
		artifact.PerformanceKey(paths.Models, req.Model),
	}
	return nil
}

func (f *ModelFlow) runPredict(ctx context.Context, req RunRequest, paths config.PathsConfig, res *RunResult) error {
	bundle, err := artifact.LoadBundle(ctx, f.store, paths.Models, req.Model)
	if err != nil {
		return err
	}
	start, end := req.Action.Offsets()
	ds, err := f.Build(ctx, paths, start, end)
	if err != nil {
		return err
	}
	res.Days, res.Rows = ds.Days, ds.Table.Len()
	metrics.TableRows.WithLabelValues(ActionPredict).Set(float64(ds.Table.Len()))

	pred, err := f.Predict(bundle, ds.Table)
	if err != nil {
		return err
	}
	res.Prediction, res.Columns = pred, pred.Columns

	key := artifact.PredictionKey(paths.Output, req.Model, f.now())
	if err := artifact.SavePrediction(ctx, f.store, key, pred); err != nil {
		return err
	}
	res.Artifacts = []string{key}
	return nil
}
