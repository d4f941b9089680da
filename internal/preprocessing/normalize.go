package preprocessing

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/mj-status/forecaster/internal/table"
)

var ErrNotFitted = errors.New("normalizer not fitted")

// Params are z-score parameters fit on a training partition. They are never refit from
// validation, test or prediction data.
type Params struct {
	Columns []string  `json:"columns"`
	Mean    []float64 `json:"mean"`
	Std     []float64 `json:"std"`
}

// Normalizer holds the parameters of one fit. The zero value is unfitted.
type Normalizer struct {
	params *Params
}

// Fit computes column means and sample standard deviations of train. A zero or undefined
// standard deviation is replaced by 1.
func (n *Normalizer) Fit(train *table.Table) (Params, error) {
	p, err := FitParams(train)
	if err != nil {
		return Params{}, err
	}
	n.params = &p
	return p, nil
}

func (n *Normalizer) Params() (Params, error) {
	if n.params == nil {
		return Params{}, ErrNotFitted
	}
	return *n.params, nil
}

func (n *Normalizer) Transform(t *table.Table) (*table.Table, error) {
	if n.params == nil {
		return nil, ErrNotFitted
	}
	return n.params.Transform(t)
}

func FitParams(train *table.Table) (Params, error) {
	if train.Len() == 0 {
		return Params{}, fmt.Errorf("normalize: empty training partition")
	}
	p := Params{
		Columns: append([]string(nil), train.Columns...),
		Mean:    make([]float64, train.Width()),
		Std:     make([]float64, train.Width()),
	}
	col := make([]float64, train.Len())
	for j := range train.Columns {
		for i, r := range train.Rows {
			col[i] = r[j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		p.Mean[j], p.Std[j] = mean, std
	}
	return p, nil
}

func (p Params) check(t *table.Table) error {
	if len(t.Columns) != len(p.Columns) {
		return fmt.Errorf("normalize: table has %d columns, params have %d", len(t.Columns), len(p.Columns))
	}
	for j, c := range t.Columns {
		if c != p.Columns[j] {
			return fmt.Errorf("normalize: column %d is %q, params expect %q", j, c, p.Columns[j])
		}
	}
	return nil
}

// Transform returns (t - mean) / std.
func (p Params) Transform(t *table.Table) (*table.Table, error) {
	if err := p.check(t); err != nil {
		return nil, err
	}
	out := t.Clone()
	for _, r := range out.Rows {
		for j := range r {
			r[j] = (r[j] - p.Mean[j]) / p.Std[j]
		}
	}
	return out, nil
}

// Inverse maps normalized values of column j back to the original scale.
func (p Params) Inverse(j int, v float64) float64 {
	return v*p.Std[j] + p.Mean[j]
}

// InverseRows denormalizes the leading len(row) columns of every row in place.
func (p Params) InverseRows(rows [][]float64) error {
	for i, r := range rows {
		if len(r) > len(p.Mean) {
			return fmt.Errorf("normalize: row %d has %d values, params cover %d", i, len(r), len(p.Mean))
		}
		for j, v := range r {
			r[j] = p.Inverse(j, v)
		}
	}
	return nil
}
