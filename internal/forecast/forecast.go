// Package forecast defines the forecaster capability consumed by the pipeline and a set of
// closed-form baseline forecasters that satisfy it.
package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/mj-status/forecaster/internal/window"
)

var (
	ErrUnknownModel = errors.New("unknown model")
	ErrNotTrained   = errors.New("model not trained")
	ErrShape        = errors.New("forecaster shape mismatch")
)

// Forecaster is trained on windowed datasets and predicts Steps rows of every feature.
type Forecaster interface {
	Name() string
	Fit(ctx context.Context, train, val window.Dataset) error
	// Evaluate returns the mean absolute error over every label of ds.
	Evaluate(ds window.Dataset) (float64, error)
	// Predict returns a (steps x features) block.
	Predict(ex window.Example) ([][]float64, error)
	json.Marshaler
	json.Unmarshaler
}

// Constructor builds an untrained forecaster for a feature count and a forecast horizon.
type Constructor func(features, steps int) Forecaster

var registry = map[string]Constructor{
	"repeat":   func(f, s int) Forecaster { return NewRepeat(f, s) },
	"dense":    func(f, s int) Forecaster { return NewDense(f, s) },
	"cnn":      func(f, s int) Forecaster { return NewConv(f, s) },
	"rnn":      func(f, s int) Forecaster { return NewRecurrent(f, s) },
	"feedback": func(f, s int) Forecaster { return NewFeedback(f, s) },
}

func New(name string, features, steps int) (Forecaster, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	if features <= 0 || steps <= 0 {
		return nil, fmt.Errorf("%w: %d features, %d steps", ErrShape, features, steps)
	}
	return ctor(features, steps), nil
}

// Load rebuilds a trained forecaster from its serialized state.
func Load(name string, features, steps int, state []byte) (Forecaster, error) {
	f, err := New(name, features, steps)
	if err != nil {
		return nil, err
	}
	if err := f.UnmarshalJSON(state); err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return f, nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MeanAbsoluteError scores predict over every example of ds.
func MeanAbsoluteError(ds window.Dataset, predict func(window.Example) ([][]float64, error)) (float64, error) {
	var sum float64
	var n int
	for ex := range ds.All() {
		pred, err := predict(ex)
		if err != nil {
			return 0, err
		}
		if len(pred) < len(ex.Labels) {
			return 0, fmt.Errorf("%w: %d predicted steps, %d labels", ErrShape, len(pred), len(ex.Labels))
		}
		for i, label := range ex.Labels {
			for j, v := range label {
				sum += math.Abs(pred[i][j] - v)
				n++
			}
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: no labels to evaluate", ErrShape)
	}
	return sum / float64(n), nil
}

func checkFeatures(want int, ds window.Dataset) error {
	if ds.Features() != want {
		return fmt.Errorf("%w: dataset has %d features, model expects %d", ErrShape, ds.Features(), want)
	}
	return nil
}

// reshape turns a flat (steps*features) vector into steps rows.
func reshape(flat []float64, steps, features int) [][]float64 {
	out := make([][]float64, steps)
	for s := range out {
		out[s] = append([]float64(nil), flat[s*features:(s+1)*features]...)
	}
	return out
}

func flatten(rows [][]float64) []float64 {
	var out []float64
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}
