package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mj-status/forecaster/internal/storage/models"
	"github.com/mj-status/forecaster/internal/table"
)

var day = time.Date(2023, 5, 12, 0, 0, 0, 0, time.UTC)

func event(id int64, typ, title string, offset time.Duration) models.EventRecord {
	return models.EventRecord{
		AlertID:    id,
		ShortTitle: title,
		Type:       typ,
		Timestamp:  day.Add(offset),
		Date:       day,
	}
}

func TestSoftClipper(t *testing.T) {
	c := NewSoftClipper(15, 0.2)

	assert.Equal(t, 0.0, c.Clip(-3))
	assert.InDelta(t, 5.0, c.Clip(5), 1e-9)
	assert.InDelta(t, 15.0, c.Clip(1e6), 1e-9)
	assert.Less(t, c.Clip(15), 15.0)
	assert.Greater(t, c.Clip(15), 14.8)

	prev := c.Clip(-1)
	for x := -1.0; x < 30; x += 0.05 {
		y := c.Clip(x)
		assert.GreaterOrEqual(t, y, prev, "not monotonic at %v", x)
		assert.LessOrEqual(t, y, 15.0)
		prev = y
	}
}

func TestSoftClipperHardLimit(t *testing.T) {
	c := NewSoftClipper(15, 0)
	assert.Equal(t, 15.0, c.Clip(20))
	assert.Equal(t, 7.0, c.Clip(7))
	assert.Equal(t, 0.0, c.Clip(-7))
}

func TestTimeEncoderUnitCircle(t *testing.T) {
	enc := NewTimeEncoder(96, 15, 7, []int{1, 3, 6, 12, 24, 168})
	for _, p := range enc.Periods {
		for i := 0; i < 96*15; i += 7 {
			s, c := enc.Encode(i, p)
			assert.InDelta(t, 1.0, s*s+c*c, 1e-12)
		}
	}
}

func TestTimeEncoderPhaseAlignment(t *testing.T) {
	enc := NewTimeEncoder(96, 15, 7, []int{24, 168})

	assert.Equal(t, 0.0, enc.PhaseSeconds(0))
	assert.Equal(t, 15.0*60, enc.PhaseSeconds(1))
	// The weekly cycle restarts after 7*96 rows.
	assert.Equal(t, 0.0, enc.PhaseSeconds(96*7))
	assert.Equal(t, enc.PhaseSeconds(5), enc.PhaseSeconds(96*7+5))

	s, c := enc.Encode(96, 24)
	assert.InDelta(t, 0.0, s, 1e-9)
	assert.InDelta(t, 1.0, c, 1e-9)

	s, _ = enc.Encode(24, 24)
	assert.InDelta(t, 1.0, s, 1e-9)
}

func TestTimeEncoderApply(t *testing.T) {
	enc := NewTimeEncoder(96, 15, 7, []int{1, 24})
	tbl := table.Zeros([]string{"m"}, 4)

	require.NoError(t, enc.Apply(tbl))
	assert.Equal(t, []string{"m", "1_hours_sin", "1_hours_cos", "24_hours_sin", "24_hours_cos"}, tbl.Columns)
	assert.Equal(t, enc.ColumnNames(), tbl.Columns[1:])

	require.NoError(t, enc.Apply(tbl))
	assert.Len(t, tbl.Columns, 5)
}

func TestResampleEmptyBatch(t *testing.T) {
	r := NewSampleResampler(15, 96)
	out, err := r.Resample(nil)
	require.NoError(t, err)
	assert.True(t, out.Empty())
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, 0, out.Width())
}

func TestResampleCollapsesByMaximum(t *testing.T) {
	r := NewSampleResampler(15, 96)
	out, err := r.Resample([]models.EventRecord{
		event(1, "error", "Relax Down", 500*time.Second),
		event(2, "error", "Relax Down", 100*time.Second),
	})
	require.NoError(t, err)

	require.Equal(t, []string{"error_relax_down"}, out.Columns)
	require.Equal(t, 96, out.Len())
	assert.Equal(t, 500.0, out.Rows[0][0])
	for i := 1; i < 96; i++ {
		assert.Equal(t, 0.0, out.Rows[i][0])
	}
}

func TestResampleColumnsPerPair(t *testing.T) {
	r := NewSampleResampler(15, 96)
	out, err := r.Resample([]models.EventRecord{
		event(1, "error", "Fast", 2*time.Hour),
		event(2, "warning", "Fast", 3*time.Hour+10*time.Second),
		event(3, "error", "Slow", 23*time.Hour+59*time.Minute),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"error_fast", "error_slow", "warning_fast"}, out.Columns)
	col, _ := out.Column("warning_fast")
	assert.Equal(t, 10810.0, col[12])
	col, _ = out.Column("error_slow")
	assert.Equal(t, 86340.0, col[95])
}

func TestResampleRejectsWholeBatch(t *testing.T) {
	r := NewSampleResampler(15, 96)

	bad := event(2, "error", "Fast", time.Hour)
	bad.ShortTitle = ""
	_, err := r.Resample([]models.EventRecord{event(1, "error", "Fast", time.Hour), bad})
	require.ErrorIs(t, err, ErrInvalidRecord)

	_, err = r.Resample([]models.EventRecord{event(1, "error", "Fast", 25*time.Hour)})
	require.ErrorIs(t, err, ErrInvalidRecord)
}

func TestDensifyRoundTrip(t *testing.T) {
	r := NewSampleResampler(15, 96)
	out, err := r.Resample([]models.EventRecord{event(1, "error", "Fast", time.Hour)})
	require.NoError(t, err)

	back, err := r.Densify(r.Payload(out))
	require.NoError(t, err)
	assert.Equal(t, out.Columns, back.Columns)
	assert.Equal(t, out.Rows, back.Rows)

	empty, err := r.Densify(map[string][]float64{})
	require.NoError(t, err)
	assert.Equal(t, 96, empty.Len())
	assert.Equal(t, 0, empty.Width())
}

func TestDensifySparsePayload(t *testing.T) {
	r := NewSampleResampler(15, 4)
	grid, err := r.Densify(map[string][]float64{
		IndexColumn:  {2, 2, 0},
		"error_fast": {100, 400, 7},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{7}, {0}, {400}, {0}}, grid.Rows)

	_, err = r.Densify(map[string][]float64{"error_fast": {1}})
	require.ErrorIs(t, err, ErrInvalidRecord)
	_, err = r.Densify(map[string][]float64{IndexColumn: {9}, "a": {1}})
	require.ErrorIs(t, err, ErrInvalidRecord)
}

func metric(name string, at time.Duration, v float64) models.MetricRecord {
	return models.MetricRecord{Name: name, Timestamp: day.Add(at), Value: v}
}

func TestReshapeFiltersKindAndOrdersByTime(t *testing.T) {
	r := NewMetricReshaper("relax")
	series, err := r.Reshape([]models.MetricRecord{
		metric("mj.queue.relax.wait.job_type_imagine", 15*time.Minute, 2),
		metric("mj.queue.relax.wait.job_type_imagine", 0, 1),
		metric("mj.queue.fast.wait.job_type_imagine", 0, 99),
		metric("mj.queue.relax.wait.job_type_upscale.gpu", 0, 5),
	})
	require.NoError(t, err)

	require.Len(t, series, 2)
	assert.Equal(t, "imagine", series[0].Label)
	assert.Equal(t, []float64{1, 2}, series[0].Values)
	assert.Equal(t, []string{"00:00", "00:15"}, series[0].Times)
	assert.Equal(t, "upscalegpu", series[1].Label)

	assert.Equal(t, map[string][]float64{"imagine": {1, 2}, "upscalegpu": {5}}, Payload(series))
}

func TestReshapeEmptyWhenKindAbsent(t *testing.T) {
	r := NewMetricReshaper("relax")
	series, err := r.Reshape([]models.MetricRecord{metric("mj.queue.fast.wait.x", 0, 1)})
	require.NoError(t, err)
	assert.Empty(t, series)
}

func TestReshapeRejectsMalformed(t *testing.T) {
	r := NewMetricReshaper("relax")

	_, err := r.Reshape([]models.MetricRecord{metric("short", 0, 1)})
	require.ErrorIs(t, err, ErrInvalidRecord)

	_, err = r.Reshape([]models.MetricRecord{metric("mj.queue.relax.wait.x", 0, math.NaN())})
	require.ErrorIs(t, err, ErrInvalidRecord)

	_, err = r.Reshape([]models.MetricRecord{{Name: "mj.queue.relax.wait.x", Value: 1}})
	require.ErrorIs(t, err, ErrInvalidRecord)
}

func TestGridPlacesReadingsBySlot(t *testing.T) {
	grid, err := Grid([]Series{
		{Label: "imagine", Times: []string{"00:00", "00:20", "00:29"}, Values: []float64{1, 2, 3}},
	}, 15, 4)
	require.NoError(t, err)
	assert.Equal(t, map[string][]float64{"imagine": {1, 3, 0, 0}}, grid)

	_, err = Grid([]Series{{Label: "x", Times: []string{"01:00"}, Values: []float64{1}}}, 15, 4)
	require.ErrorIs(t, err, ErrInvalidRecord)
}

func TestValidateEventsRequiresTimestampOnDate(t *testing.T) {
	require.NoError(t, ValidateEvents([]models.EventRecord{
		event(1, "error", "Fast", 0),
		event(2, "error", "Fast", 24*time.Hour-time.Second),
	}))

	for _, offset := range []time.Duration{-time.Second, 24 * time.Hour} {
		err := ValidateEvents([]models.EventRecord{event(1, "error", "Fast", offset)})
		require.ErrorIs(t, err, ErrInvalidRecord, offset.String())
	}

	cest := time.FixedZone("CEST", 2*60*60)
	shifted := event(3, "error", "Fast", 0)
	shifted.Date = time.Date(2023, 5, 12, 0, 0, 0, 0, cest)
	shifted.Timestamp = time.Date(2023, 5, 12, 1, 30, 0, 0, cest)
	require.NoError(t, ValidateEvents([]models.EventRecord{shifted}))
	assert.Equal(t, int64(23*3600+30*60), Offset(shifted))
}
