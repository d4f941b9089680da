package features

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/mj-status/forecaster/internal/storage/models"
	"github.com/mj-status/forecaster/internal/table"
)

// IndexColumn holds slot numbers in persisted event artifacts.
const IndexColumn = "index"

// SampleResampler places event occurrences on a fixed grid of slots per day. Each (type, title)
// pair becomes a column whose value in a slot is the time-of-day offset, in seconds, of the
// latest occurrence in that slot.
type SampleResampler struct {
	SlotSeconds   int
	SamplesPerDay int
}

func NewSampleResampler(minutesPerSample, samplesPerDay int) *SampleResampler {
	return &SampleResampler{SlotSeconds: minutesPerSample * 60, SamplesPerDay: samplesPerDay}
}

// EventColumn names the feature column of an event: "<type>_<title>", lower case, spaces as underscores.
func EventColumn(eventType, title string) string {
	return strings.ToLower(strings.ReplaceAll(eventType+"_"+title, " ", "_"))
}

// Offset returns the seconds between the record's timestamp and UTC midnight of its date.
func Offset(e models.EventRecord) int64 {
	d := e.Date.UTC()
	midnight := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return int64(e.Timestamp.Sub(midnight) / time.Second)
}

// Resample returns one row per slot of the day. Columns that stay zero everywhere are dropped.
// An empty batch yields an empty table.
func (r *SampleResampler) Resample(records []models.EventRecord) (*table.Table, error) {
	if len(records) == 0 {
		return &table.Table{}, nil
	}
	if err := ValidateEvents(records); err != nil {
		return nil, err
	}

	daySeconds := int64(r.SlotSeconds * r.SamplesPerDay)
	type cell struct {
		slot   int
		column string
		offset float64
	}
	cells := make([]cell, 0, len(records))
	columns := map[string]struct{}{}
	for i, e := range records {
		off := Offset(e)
		if off < 0 || off >= daySeconds {
			return nil, fmt.Errorf("%w: event %d (alert %d): offset %ds outside day", ErrInvalidRecord, i, e.AlertID, off)
		}
		col := EventColumn(e.Type, e.ShortTitle)
		columns[col] = struct{}{}
		cells = append(cells, cell{slot: int(off / int64(r.SlotSeconds)), column: col, offset: float64(off)})
	}

	names := make([]string, 0, len(columns))
	for c := range columns {
		names = append(names, c)
	}
	sort.Strings(names)

	grid := table.Zeros(names, r.SamplesPerDay)
	for _, c := range cells {
		j := grid.Index(c.column)
		grid.Rows[c.slot][j] = math.Max(grid.Rows[c.slot][j], c.offset)
	}
	return grid.DropZeroColumns(), nil
}

// Payload converts a resampled day into its artifact form, with an explicit slot index column.
func (r *SampleResampler) Payload(t *table.Table) map[string][]float64 {
	if t.Empty() {
		return map[string][]float64{}
	}
	out := t.ColumnMap()
	index := make([]float64, t.Len())
	for i := range index {
		index[i] = float64(i)
	}
	out[IndexColumn] = index
	return out
}

// Densify expands an event artifact onto the full slot grid. Rows are placed by the index column
// and collapsed by maximum when an index repeats. An empty payload yields a grid without columns.
func (r *SampleResampler) Densify(payload map[string][]float64) (*table.Table, error) {
	if len(payload) == 0 {
		return table.Zeros(nil, r.SamplesPerDay), nil
	}
	index, ok := payload[IndexColumn]
	if !ok {
		return nil, fmt.Errorf("%w: event payload has no %q column", ErrInvalidRecord, IndexColumn)
	}

	names := make([]string, 0, len(payload)-1)
	for name, values := range payload {
		if name == IndexColumn {
			continue
		}
		if len(values) != len(index) {
			return nil, fmt.Errorf("%w: event column %q has %d values, index has %d", ErrInvalidRecord, name, len(values), len(index))
		}
		names = append(names, name)
	}
	sort.Strings(names)

	grid := table.Zeros(names, r.SamplesPerDay)
	for k, raw := range index {
		slot := int(raw)
		if float64(slot) != raw || slot < 0 || slot >= r.SamplesPerDay {
			return nil, fmt.Errorf("%w: event slot %v outside grid of %d", ErrInvalidRecord, raw, r.SamplesPerDay)
		}
		for j, name := range names {
			grid.Rows[slot][j] = math.Max(grid.Rows[slot][j], payload[name][k])
		}
	}
	return grid, nil
}
