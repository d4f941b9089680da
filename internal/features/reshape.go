package features

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mj-status/forecaster/internal/storage/models"
)

const (
	kindSegment  = 2
	labelSegment = 4
	labelFiller  = "job_type_"
)

// Series is the time-ordered value sequence of one metric label for one day.
type Series struct {
	Label  string
	Times  []string
	Values []float64
}

// MetricReshaper pivots long-format metric readings of one kind into a column per label.
type MetricReshaper struct {
	Kind string
}

func NewMetricReshaper(kind string) *MetricReshaper {
	return &MetricReshaper{Kind: kind}
}

// ParseName splits a hierarchical metric name into its kind and label.
func ParseName(name string) (kind, label string, err error) {
	parts := strings.Split(name, ".")
	if len(parts) <= kindSegment {
		return "", "", fmt.Errorf("%w: metric name %q has no kind segment", ErrInvalidRecord, name)
	}
	kind = parts[kindSegment]
	if len(parts) > labelSegment {
		label = strings.ReplaceAll(strings.Join(parts[labelSegment:], ""), labelFiller, "")
	}
	return kind, label, nil
}

// Reshape returns one series per label, ordered by label. Records of other kinds are ignored.
func (r *MetricReshaper) Reshape(records []models.MetricRecord) ([]Series, error) {
	if err := ValidateMetrics(records); err != nil {
		return nil, err
	}

	type reading struct {
		rec   models.MetricRecord
		label string
	}
	var matched []reading
	for i, rec := range records {
		kind, label, err := ParseName(rec.Name)
		if err != nil {
			return nil, fmt.Errorf("metric %d: %w", i, err)
		}
		if kind != r.Kind {
			continue
		}
		if label == "" {
			return nil, fmt.Errorf("%w: metric %d: name %q has no label segments", ErrInvalidRecord, i, rec.Name)
		}
		matched = append(matched, reading{rec: rec, label: label})
	}
	if len(matched) == 0 {
		return nil, nil
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].rec.Timestamp.Before(matched[j].rec.Timestamp)
	})

	byLabel := map[string]*Series{}
	for _, m := range matched {
		s, ok := byLabel[m.label]
		if !ok {
			s = &Series{Label: m.label}
			byLabel[m.label] = s
		}
		s.Times = append(s.Times, m.rec.Timestamp.Format("15:04"))
		s.Values = append(s.Values, m.rec.Value)
	}

	out := make([]Series, 0, len(byLabel))
	for _, s := range byLabel {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

// Payload converts reshaped series into their artifact form.
func Payload(series []Series) map[string][]float64 {
	out := make(map[string][]float64, len(series))
	for _, s := range series {
		out[s.Label] = s.Values
	}
	return out
}

// Grid places each series on the slot grid of one day by reading time. A slot keeps the latest
// reading that falls in it; slots without readings are zero.
func Grid(series []Series, minutesPerSample, samplesPerDay int) (map[string][]float64, error) {
	out := make(map[string][]float64, len(series))
	for _, s := range series {
		values := make([]float64, samplesPerDay)
		for k, hm := range s.Times {
			at, err := time.Parse("15:04", hm)
			if err != nil {
				return nil, fmt.Errorf("%w: series %q: time %q: %v", ErrInvalidRecord, s.Label, hm, err)
			}
			slot := (at.Hour()*60 + at.Minute()) / minutesPerSample
			if slot >= samplesPerDay {
				return nil, fmt.Errorf("%w: series %q: time %s outside grid of %d", ErrInvalidRecord, s.Label, hm, samplesPerDay)
			}
			values[slot] = s.Values[k]
		}
		out[s.Label] = values
	}
	return out, nil
}
