package preprocessing

import (
	"errors"
	"fmt"
	"iter"
)

var ErrInvalidSplit = errors.New("invalid walk-forward split")

// Range is a half-open span [Start, End) of positions in the doubled population.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r Range) Len() int { return r.End - r.Start }

// Fold is one (train, validation, test) partition.
type Fold struct {
	Index int   `json:"index"`
	Train Range `json:"train"`
	Val   Range `json:"val"`
	Test  Range `json:"test"`
}

// Rows maps a range onto row indices. Positions past the population wrap around to the start.
func (r Range) Rows(population int) []int {
	out := make([]int, 0, r.Len())
	for k := r.Start; k < r.End; k++ {
		out = append(out, k%population)
	}
	return out
}

// WalkForward produces Cycles successive folds. Validation and test blocks are
// SampleSize*StepSize rows long; the training block keeps a fixed length and advances by
// SampleSize rows per fold.
type WalkForward struct {
	SampleSize int
	Cycles     int
	StepSize   int
}

func NewWalkForward(sampleSize, cycles, stepSize int) WalkForward {
	return WalkForward{SampleSize: sampleSize, Cycles: cycles, StepSize: stepSize}
}

func (w WalkForward) TrainSize(population int) int {
	return population - w.SampleSize*2*w.Cycles
}

func (w WalkForward) fold(i, population int) Fold {
	train := Range{Start: w.SampleSize * i}
	train.End = train.Start + w.TrainSize(population)
	val := Range{Start: train.End, End: train.End + w.SampleSize*w.StepSize}
	test := Range{Start: val.End, End: val.End + w.SampleSize*w.StepSize}
	return Fold{Index: i, Train: train, Val: val, Test: test}
}

// Validate reports whether population supports the configured folds. Ranges may run past the
// population into its repeated copy, but never past the copy and never back into the fold's own
// training rows.
func (w WalkForward) Validate(population int) error {
	if w.SampleSize <= 0 || w.Cycles <= 0 || w.StepSize <= 0 {
		return fmt.Errorf("%w: sample size, cycles and step size must be positive", ErrInvalidSplit)
	}
	if population <= 0 {
		return fmt.Errorf("%w: empty population", ErrInvalidSplit)
	}
	if w.TrainSize(population) <= 0 {
		return fmt.Errorf("%w: population %d too small for %d cycles of %d samples",
			ErrInvalidSplit, population, w.Cycles, w.SampleSize)
	}
	for i := 0; i < w.Cycles; i++ {
		f := w.fold(i, population)
		if f.Test.End > 2*population {
			return fmt.Errorf("%w: fold %d test range ends at %d, past twice the population %d",
				ErrInvalidSplit, i, f.Test.End, population)
		}
		if wrapped := f.Test.End - population; wrapped > f.Train.Start {
			return fmt.Errorf("%w: fold %d wraps into its own training rows", ErrInvalidSplit, i)
		}
	}
	return nil
}

// Folds returns a restartable sequence of folds: every range over it yields the same folds.
func (w WalkForward) Folds(population int) (iter.Seq[Fold], error) {
	if err := w.Validate(population); err != nil {
		return nil, err
	}
	return func(yield func(Fold) bool) {
		for i := 0; i < w.Cycles; i++ {
			if !yield(w.fold(i, population)) {
				return
			}
		}
	}, nil
}
