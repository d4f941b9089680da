package features

import (
	"fmt"
	"math"

	"github.com/mj-status/forecaster/internal/table"
)

// TimeEncoder adds sine/cosine encodings of each row's position in a repeating cycle of
// DaysPerCycle days. Row 0 is the cycle origin, so every table built from whole days shares
// the same phase regardless of where it was sliced from.
type TimeEncoder struct {
	SamplesPerDay    int
	MinutesPerSample int
	DaysPerCycle     int
	// Periods are in hours.
	Periods []int
}

func NewTimeEncoder(samplesPerDay, minutesPerSample, daysPerCycle int, periods []int) TimeEncoder {
	return TimeEncoder{
		SamplesPerDay:    samplesPerDay,
		MinutesPerSample: minutesPerSample,
		DaysPerCycle:     daysPerCycle,
		Periods:          append([]int(nil), periods...),
	}
}

// PhaseSeconds returns the seconds elapsed since the start of the cycle that row i falls in.
func (e TimeEncoder) PhaseSeconds(i int) float64 {
	cycle := i / (e.SamplesPerDay * e.DaysPerCycle)
	minutes := i*e.MinutesPerSample - cycle*e.DaysPerCycle*24*60
	return float64(minutes * 60)
}

// Encode returns the sine and cosine of row i for a period of hours.
func (e TimeEncoder) Encode(i, hours int) (sin, cos float64) {
	angle := e.PhaseSeconds(i) * (2 * math.Pi / float64(hours*3600))
	return math.Sin(angle), math.Cos(angle)
}

func (e TimeEncoder) ColumnNames() []string {
	names := make([]string, 0, 2*len(e.Periods))
	for _, p := range e.Periods {
		names = append(names, fmt.Sprintf("%d_hours_sin", p), fmt.Sprintf("%d_hours_cos", p))
	}
	return names
}

// Apply adds two columns per period to t. Existing encoding columns are overwritten.
func (e TimeEncoder) Apply(t *table.Table) error {
	n := t.Len()
	for _, p := range e.Periods {
		sins := make([]float64, n)
		coss := make([]float64, n)
		for i := 0; i < n; i++ {
			sins[i], coss[i] = e.Encode(i, p)
		}
		if err := t.AddColumn(fmt.Sprintf("%d_hours_sin", p), sins); err != nil {
			return fmt.Errorf("time features: %w", err)
		}
		if err := t.AddColumn(fmt.Sprintf("%d_hours_cos", p), coss); err != nil {
			return fmt.Errorf("time features: %w", err)
		}
	}
	return nil
}
