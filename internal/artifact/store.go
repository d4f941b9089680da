// Package artifact stores the JSON day artifacts, model bundles and result tables the pipeline reads
// and writes, on local disk or in an S3 bucket.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/mj-status/forecaster/internal/metrics"
	"github.com/mj-status/forecaster/internal/storage/models"
)

var (
	ErrNotFound   = errors.New("artifact not found")
	ErrInvalidKey = errors.New("invalid artifact key")
)

// Store is a flat key/value object store. Keys are slash separated.
type Store interface {
	// List returns the keys directly under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Backend() string
}

// DateRange is the half-open interval [From, To).
type DateRange struct {
	From time.Time
	To   time.Time
}

// Offsets selects artifacts dated from start+1 days before now up to end days before now.
func Offsets(now time.Time, start, end int) DateRange {
	return DateRange{
		From: now.AddDate(0, 0, -(start + 1)),
		To:   now.AddDate(0, 0, -end),
	}
}

func (r DateRange) Contains(day time.Time) bool {
	return !day.Before(r.From) && day.Before(r.To)
}

// KeyDate parses the day an artifact covers from the first "_" token of its base name.
func KeyDate(key string, loc *time.Location) (time.Time, error) {
	base := path.Base(key)
	stem := strings.TrimSuffix(base, path.Ext(base))
	first, _, _ := strings.Cut(stem, "_")
	day, err := time.ParseInLocation(models.DayLayout, first, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("artifact key %q: %w", key, err)
	}
	return day, nil
}

// DayKey names the artifact covering day under prefix: "<prefix>/<day>_<day+1>.json".
func DayKey(prefix string, day time.Time) string {
	before := day.Format(models.DayLayout)
	after := day.AddDate(0, 0, 1).Format(models.DayLayout)
	return path.Join(prefix, before+"_"+after+".json")
}

// Payload is the JSON form of a day artifact: column name to values in row order.
type Payload map[string][]float64

type Day struct {
	Key     string
	Date    time.Time
	Payload Payload
}

// LoadDays reads every JSON artifact under prefix whose date falls in r, ordered by key. Keys
// without a parseable date are skipped.
func LoadDays(ctx context.Context, s Store, prefix string, r DateRange) ([]Day, error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	sort.Strings(keys)

	var days []Day
	for _, key := range keys {
		if path.Ext(key) != ".json" {
			continue
		}
		date, err := KeyDate(key, r.From.Location())
		if err != nil || !r.Contains(date) {
			continue
		}
		payload, err := GetPayload(ctx, s, key)
		if err != nil {
			return nil, err
		}
		days = append(days, Day{Key: key, Date: date, Payload: payload})
	}
	return days, nil
}

func GetPayload(ctx context.Context, s Store, key string) (Payload, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	metrics.ArtifactsRead.WithLabelValues(s.Backend()).Inc()

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	if p == nil {
		p = Payload{}
	}
	return p, nil
}

func PutPayload(ctx context.Context, s Store, key string, p Payload) error {
	if p == nil {
		p = Payload{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return Write(ctx, s, key, data)
}

// Write puts data under key and counts the write.
func Write(ctx context.Context, s Store, key string, data []byte) error {
	if err := s.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	metrics.ArtifactsWritten.WithLabelValues(s.Backend()).Inc()
	return nil
}
