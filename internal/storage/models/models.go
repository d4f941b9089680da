package models

import "time"

// EventRecord is one discrete alert occurrence.
type EventRecord struct {
	AlertID    int64     `json:"alert_id" validate:"required"`
	ShortTitle string    `json:"short_title" validate:"required"`
	Label      string    `json:"label"`
	Type       string    `json:"type" validate:"required"`
	Timestamp  time.Time `json:"timestamp" validate:"required"`
	Date       time.Time `json:"date" validate:"required"`
}

// MetricRecord is one metric reading. Name is a dot-delimited hierarchy that encodes the metric kind
// and its label.
type MetricRecord struct {
	Name      string    `json:"name" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Value     float64   `json:"value"`
}

// Day returns the record's calendar day in UTC.
func (m MetricRecord) Day() string {
	return m.Timestamp.UTC().Format(DayLayout)
}

func (e EventRecord) Day() string {
	return e.Date.UTC().Format(DayLayout)
}

const DayLayout = "2006-01-02"

// RunRecord is one fit or predict run in the run history.
type RunRecord struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Folds     int       `json:"folds"`
	ValMAE    float64   `json:"val_mae"`
	TestMAE   float64   `json:"test_mae"`
	Rows      int       `json:"rows"`
	Error     string    `json:"error,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

type FoldPerformance struct {
	Fold int     `json:"fold"`
	Val  float64 `json:"val"`
	Test float64 `json:"test"`
}

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)
