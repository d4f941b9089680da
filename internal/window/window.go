// Package window slices normalized tables into supervised input/label examples.
package window

import (
	"errors"
	"fmt"
	"iter"

	"github.com/mj-status/forecaster/internal/table"
)

var (
	ErrInvalidSpec = errors.New("invalid window spec")
	ErrTooShort    = errors.New("table too short for window")
)

// Spec describes one example: InputWidth rows of input followed, Shift rows after the input
// start, by LabelWidth rows of labels.
type Spec struct {
	InputWidth int `json:"input_width"`
	LabelWidth int `json:"label_width"`
	Shift      int `json:"shift"`
}

func (s Spec) Validate() error {
	if s.InputWidth <= 0 || s.LabelWidth < 0 || s.Shift < 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidSpec, s)
	}
	return nil
}

// Span is the number of rows one example covers.
func (s Spec) Span() int {
	return max(s.InputWidth, s.Shift+s.LabelWidth)
}

// Count returns how many stride-1 examples fit in n rows.
func (s Spec) Count(n int) int {
	return max(0, n-s.Span()+1)
}

// Example is one supervised pair. Labels is nil for prediction examples.
type Example struct {
	Start  int
	Inputs [][]float64
	Labels [][]float64
}

// LabelStart is the table row of the first label.
func (e Example) LabelStart(s Spec) int {
	return e.Start + s.Shift
}

// Dataset is a restartable view of every example in a table.
type Dataset struct {
	table     *table.Table
	spec      Spec
	batchSize int
}

func NewDataset(t *table.Table, spec Spec, batchSize int) (Dataset, error) {
	if err := spec.Validate(); err != nil {
		return Dataset{}, err
	}
	if batchSize <= 0 {
		return Dataset{}, fmt.Errorf("%w: batch size %d", ErrInvalidSpec, batchSize)
	}
	return Dataset{table: t, spec: spec, batchSize: batchSize}, nil
}

func (d Dataset) Spec() Spec { return d.spec }

func (d Dataset) Len() int { return d.spec.Count(d.table.Len()) }

func (d Dataset) Features() int { return d.table.Width() }

func (d Dataset) Columns() []string { return d.table.Columns }

func (d Dataset) example(start int) Example {
	rows := d.table.Rows
	return Example{
		Start:  start,
		Inputs: rows[start : start+d.spec.InputWidth],
		Labels: rows[start+d.spec.Shift : start+d.spec.Shift+d.spec.LabelWidth],
	}
}

// All yields every example in order of start row. Examples share memory with the table and must
// not be modified.
func (d Dataset) All() iter.Seq[Example] {
	return func(yield func(Example) bool) {
		for start := 0; start < d.Len(); start++ {
			if !yield(d.example(start)) {
				return
			}
		}
	}
}

// Batches yields consecutive groups of up to batchSize examples.
func (d Dataset) Batches() iter.Seq[[]Example] {
	return func(yield func([]Example) bool) {
		batch := make([]Example, 0, d.batchSize)
		for ex := range d.All() {
			batch = append(batch, ex)
			if len(batch) == d.batchSize {
				if !yield(batch) {
					return
				}
				batch = make([]Example, 0, d.batchSize)
			}
		}
		if len(batch) > 0 {
			yield(batch)
		}
	}
}

// Window groups the train, validation and test datasets of one fold.
type Window struct {
	Spec  Spec
	Train Dataset
	Val   Dataset
	Test  Dataset
}

func New(train, val, test *table.Table, spec Spec, batchSize int) (*Window, error) {
	w := &Window{Spec: spec}
	var err error
	for _, p := range []struct {
		name string
		t    *table.Table
		dst  *Dataset
	}{{"train", train, &w.Train}, {"val", val, &w.Val}, {"test", test, &w.Test}} {
		if *p.dst, err = NewDataset(p.t, spec, batchSize); err != nil {
			return nil, err
		}
		if p.dst.Len() == 0 {
			return nil, fmt.Errorf("%w: %s partition has %d rows, window spans %d", ErrTooShort, p.name, p.t.Len(), spec.Span())
		}
	}
	return w, nil
}

// PredictExample returns the most recent InputWidth rows of t as a single example without labels.
func PredictExample(t *table.Table, spec Spec) (Example, error) {
	if err := spec.Validate(); err != nil {
		return Example{}, err
	}
	n := t.Len()
	if n < spec.InputWidth {
		return Example{}, fmt.Errorf("%w: %d rows, input width %d", ErrTooShort, n, spec.InputWidth)
	}
	return Example{Start: n - spec.InputWidth, Inputs: t.Rows[n-spec.InputWidth:]}, nil
}
