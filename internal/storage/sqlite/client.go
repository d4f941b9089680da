package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mj-status/forecaster/internal/storage/models"
	"github.com/mj-status/forecaster/pkg/logger"
)

var ErrRunNotFound = errors.New("run not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		date_id TEXT NOT NULL,
		timestamp_id INTEGER NOT NULL,
		date INTEGER NOT NULL,
		alert_id INTEGER NOT NULL,
		short_title TEXT NOT NULL,
		label TEXT,
		type TEXT NOT NULL,
		PRIMARY KEY (date_id, timestamp_id, alert_id)
	);
	CREATE INDEX IF NOT EXISTS idx_events_date ON events(date_id);

	CREATE TABLE IF NOT EXISTS metrics (
		date_id TEXT NOT NULL,
		timestamp_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		value REAL NOT NULL,
		PRIMARY KEY (date_id, timestamp_id, name)
	);
	CREATE INDEX IF NOT EXISTS idx_metrics_date ON metrics(date_id);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		action TEXT NOT NULL,
		status TEXT NOT NULL,
		folds INTEGER,
		val_mae REAL,
		test_mae REAL,
		rows INTEGER,
		error TEXT,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// InsertEvents stores events in one transaction. Rows whose key already exists are left untouched.
// It returns the number of rows inserted.
func (c *Client) InsertEvents(ctx context.Context, events []models.EventRecord) (int, error) {
	query := `
		INSERT INTO events (date_id, timestamp_id, date, alert_id, short_title, label, type)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`
	return c.insertBatch(ctx, "events", query, len(events), func(stmt *sql.Stmt, i int) (sql.Result, error) {
		e := events[i]
		return stmt.ExecContext(ctx,
			e.Day(),
			e.Timestamp.Unix(),
			e.Date.Unix(),
			e.AlertID,
			e.ShortTitle,
			e.Label,
			e.Type,
		)
	})
}

func (c *Client) InsertMetrics(ctx context.Context, metrics []models.MetricRecord) (int, error) {
	query := `
		INSERT INTO metrics (date_id, timestamp_id, name, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`
	return c.insertBatch(ctx, "metrics", query, len(metrics), func(stmt *sql.Stmt, i int) (sql.Result, error) {
		m := metrics[i]
		return stmt.ExecContext(ctx, m.Day(), m.Timestamp.Unix(), m.Name, m.Value)
	})
}

func (c *Client) insertBatch(ctx context.Context, table, query string, n int, exec func(*sql.Stmt, int) (sql.Result, error)) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin %s transaction: %w", table, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare %s insert: %w", table, err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range n {
		res, err := exec(stmt, i)
		if err != nil {
			return 0, fmt.Errorf("failed to insert %s row %d: %w", table, i, err)
		}
		affected, err := res.RowsAffected()
		if err == nil {
			inserted += int(affected)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit %s: %w", table, err)
	}

	logger.Debug("Records inserted", zap.String("table", table), zap.Int("received", n), zap.Int("inserted", inserted))
	return inserted, nil
}

// EventsBetween returns events whose day is in [before, after), ordered by timestamp.
func (c *Client) EventsBetween(ctx context.Context, before, after string) ([]models.EventRecord, error) {
	query := `
		SELECT alert_id, short_title, label, type, timestamp_id, date
		FROM events
		WHERE date_id >= ? AND date_id < ?
		ORDER BY timestamp_id, alert_id
	`

	rows, err := c.db.QueryContext(ctx, query, before, after)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.EventRecord
	for rows.Next() {
		var e models.EventRecord
		var label sql.NullString
		var ts, date int64

		if err := rows.Scan(&e.AlertID, &e.ShortTitle, &label, &e.Type, &ts, &date); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		e.Label = label.String
		e.Timestamp = time.Unix(ts, 0).UTC()
		e.Date = time.Unix(date, 0).UTC()
		events = append(events, e)
	}

	return events, rows.Err()
}

// MetricsBetween returns metric readings whose day is in [before, after), ordered by timestamp.
func (c *Client) MetricsBetween(ctx context.Context, before, after string) ([]models.MetricRecord, error) {
	query := `
		SELECT name, timestamp_id, value
		FROM metrics
		WHERE date_id >= ? AND date_id < ?
		ORDER BY timestamp_id, name
	`

	rows, err := c.db.QueryContext(ctx, query, before, after)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var metrics []models.MetricRecord
	for rows.Next() {
		var m models.MetricRecord
		var ts int64

		if err := rows.Scan(&m.Name, &ts, &m.Value); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}

		m.Timestamp = time.Unix(ts, 0).UTC()
		metrics = append(metrics, m)
	}

	return metrics, rows.Err()
}

func (c *Client) InsertRun(ctx context.Context, run *models.RunRecord) error {
	query := `
		INSERT INTO runs (id, model, action, status, folds, val_mae, test_mae, rows, error, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx,
		query,
		run.ID,
		run.Model,
		run.Action,
		run.Status,
		run.Folds,
		nullFloat(run.ValMAE),
		nullFloat(run.TestMAE),
		run.Rows,
		run.Error,
		run.LatencyMS,
		run.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	logger.Info("Run recorded",
		zap.String("run_id", run.ID),
		zap.String("model", run.Model),
		zap.String("action", run.Action),
		zap.String("status", run.Status),
	)

	return nil
}

const runColumns = `id, model, action, status, folds, val_mae, test_mae, rows, error, latency_ms, created_at`

func (c *Client) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*models.RunRecord, error) {
	var r models.RunRecord
	var valMAE, testMAE sql.NullFloat64
	var errText sql.NullString
	var createdAt int64

	err := s.Scan(&r.ID, &r.Model, &r.Action, &r.Status, &r.Folds, &valMAE, &testMAE, &r.Rows, &errText, &r.LatencyMS, &createdAt)
	if err != nil {
		return nil, err
	}

	r.ValMAE = valMAE.Float64
	r.TestMAE = testMAE.Float64
	r.Error = errText.String
	r.CreatedAt = time.Unix(createdAt, 0)
	return &r, nil
}

// nullFloat stores NaN, which SQLite cannot hold, as NULL.
func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}
