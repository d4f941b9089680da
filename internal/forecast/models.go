package forecast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mj-status/forecaster/internal/window"
)

// Repeat echoes the most recent input rows as the forecast.
type Repeat struct {
	features int
	steps    int
}

func NewRepeat(features, steps int) *Repeat {
	return &Repeat{features: features, steps: steps}
}

func (m *Repeat) Name() string { return "repeat" }

func (m *Repeat) Fit(_ context.Context, train, val window.Dataset) error {
	if err := checkFeatures(m.features, train); err != nil {
		return err
	}
	return checkFeatures(m.features, val)
}

func (m *Repeat) Evaluate(ds window.Dataset) (float64, error) {
	return MeanAbsoluteError(ds, m.Predict)
}

// Predict cycles through the last steps input rows when the input is shorter than the horizon.
func (m *Repeat) Predict(ex window.Example) ([][]float64, error) {
	n := len(ex.Inputs)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrShape)
	}
	from := max(0, n-m.steps)
	out := make([][]float64, m.steps)
	for s := range out {
		out[s] = append([]float64(nil), ex.Inputs[from+s%(n-from)]...)
	}
	return out, nil
}

func (m *Repeat) MarshalJSON() ([]byte, error) { return []byte("{}"), nil }

func (m *Repeat) UnmarshalJSON([]byte) error { return nil }

// Dense forecasts every step from the last input row.
type Dense struct {
	regression
}

func NewDense(features, steps int) *Dense {
	d := &Dense{regression{features: features, steps: steps}}
	d.inputs = func(ex window.Example) ([]float64, error) {
		if len(ex.Inputs) == 0 {
			return nil, fmt.Errorf("%w: empty input", ErrShape)
		}
		return ex.Inputs[len(ex.Inputs)-1], nil
	}
	return d
}

func (m *Dense) Name() string { return "dense" }

func (m *Dense) Fit(ctx context.Context, train, val window.Dataset) error {
	return m.fit(ctx, train, val)
}

func (m *Dense) Evaluate(ds window.Dataset) (float64, error) {
	return MeanAbsoluteError(ds, m.predict)
}

func (m *Dense) Predict(ex window.Example) ([][]float64, error) { return m.predict(ex) }

func (m *Dense) MarshalJSON() ([]byte, error) { return m.marshal() }

func (m *Dense) UnmarshalJSON(data []byte) error { return m.unmarshal(data) }

// ConvWidth is the number of trailing input rows the convolutional forecaster sees.
const ConvWidth = 3

// Conv forecasts every step from the last ConvWidth input rows.
type Conv struct {
	regression
}

func NewConv(features, steps int) *Conv {
	c := &Conv{regression{features: features, steps: steps}}
	c.inputs = func(ex window.Example) ([]float64, error) {
		if len(ex.Inputs) < ConvWidth {
			return nil, fmt.Errorf("%w: %d input rows, convolution needs %d", ErrShape, len(ex.Inputs), ConvWidth)
		}
		return flatten(ex.Inputs[len(ex.Inputs)-ConvWidth:]), nil
	}
	return c
}

func (m *Conv) Name() string { return "cnn" }

func (m *Conv) Fit(ctx context.Context, train, val window.Dataset) error {
	return m.fit(ctx, train, val)
}

func (m *Conv) Evaluate(ds window.Dataset) (float64, error) {
	return MeanAbsoluteError(ds, m.predict)
}

func (m *Conv) Predict(ex window.Example) ([][]float64, error) { return m.predict(ex) }

func (m *Conv) MarshalJSON() ([]byte, error) { return m.marshal() }

func (m *Conv) UnmarshalJSON(data []byte) error { return m.unmarshal(data) }

// Smoothing is the update weight of the recurrent forecaster's hidden state.
const Smoothing = 0.3

// Recurrent folds the input rows into an exponentially smoothed hidden state and forecasts every
// step from that state and the last input row.
type Recurrent struct {
	regression
}

func NewRecurrent(features, steps int) *Recurrent {
	r := &Recurrent{regression{features: features, steps: steps}}
	r.inputs = func(ex window.Example) ([]float64, error) {
		if len(ex.Inputs) == 0 {
			return nil, fmt.Errorf("%w: empty input", ErrShape)
		}
		h := Hidden(ex.Inputs)
		return append(h, ex.Inputs[len(ex.Inputs)-1]...), nil
	}
	return r
}

// Hidden runs the recurrence h = Smoothing*x + (1-Smoothing)*h over rows, starting from the first row.
func Hidden(rows [][]float64) []float64 {
	h := append([]float64(nil), rows[0]...)
	for _, x := range rows[1:] {
		for j := range h {
			h[j] = Smoothing*x[j] + (1-Smoothing)*h[j]
		}
	}
	return h
}

func (m *Recurrent) Name() string { return "rnn" }

func (m *Recurrent) Fit(ctx context.Context, train, val window.Dataset) error {
	return m.fit(ctx, train, val)
}

func (m *Recurrent) Evaluate(ds window.Dataset) (float64, error) {
	return MeanAbsoluteError(ds, m.predict)
}

func (m *Recurrent) Predict(ex window.Example) ([][]float64, error) { return m.predict(ex) }

func (m *Recurrent) MarshalJSON() ([]byte, error) { return m.marshal() }

func (m *Recurrent) UnmarshalJSON(data []byte) error { return m.unmarshal(data) }

// Feedback is autoregressive: a one-step model is applied repeatedly, each step consuming the
// previous prediction.
type Feedback struct {
	features int
	steps    int
	model    linear
	lambda   float64
}

// feedbackState is the value carried between autoregressive steps.
type feedbackState struct {
	Row  []float64
	Step int
}

func NewFeedback(features, steps int) *Feedback {
	return &Feedback{features: features, steps: steps}
}

func (m *Feedback) Name() string { return "feedback" }

// pairs collects one (row, next row) transition per example.
func (m *Feedback) pairs(ds window.Dataset) (xs, ys [][]float64) {
	spec := ds.Spec()
	for ex := range ds.All() {
		n := len(ex.Inputs)
		switch {
		case spec.Shift == spec.InputWidth && len(ex.Labels) > 0:
			xs = append(xs, ex.Inputs[n-1])
			ys = append(ys, ex.Labels[0])
		case n > 1:
			xs = append(xs, ex.Inputs[n-2])
			ys = append(ys, ex.Inputs[n-1])
		}
	}
	return xs, ys
}

func (m *Feedback) Fit(ctx context.Context, train, val window.Dataset) error {
	for _, ds := range []window.Dataset{train, val} {
		if err := checkFeatures(m.features, ds); err != nil {
			return err
		}
	}
	xs, ys := m.pairs(train)

	var best linear
	bestErr := -1.0
	for _, lambda := range lambdas {
		if err := ctx.Err(); err != nil {
			return err
		}
		candidate, err := fitRidge(xs, ys, lambda)
		if err != nil {
			return err
		}
		m.model = candidate
		score, err := m.Evaluate(val)
		if err != nil {
			return err
		}
		if bestErr < 0 || score < bestErr {
			best, bestErr, m.lambda = candidate, score, lambda
		}
	}
	m.model = best
	return nil
}

func (m *Feedback) Evaluate(ds window.Dataset) (float64, error) {
	return MeanAbsoluteError(ds, m.Predict)
}

func (m *Feedback) warmup(inputs [][]float64) feedbackState {
	return feedbackState{Row: m.model.apply(inputs[len(inputs)-1]), Step: 1}
}

func (m *Feedback) step(s feedbackState) feedbackState {
	return feedbackState{Row: m.model.apply(s.Row), Step: s.Step + 1}
}

func (m *Feedback) Predict(ex window.Example) ([][]float64, error) {
	if !m.model.trained() {
		return nil, ErrNotTrained
	}
	if len(ex.Inputs) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrShape)
	}
	out := make([][]float64, 0, m.steps)
	state := m.warmup(ex.Inputs)
	out = append(out, state.Row)
	for state.Step < m.steps {
		state = m.step(state)
		out = append(out, state.Row)
	}
	return out, nil
}

func (m *Feedback) MarshalJSON() ([]byte, error) {
	if !m.model.trained() {
		return nil, ErrNotTrained
	}
	return json.Marshal(m.model.state(m.lambda))
}

func (m *Feedback) UnmarshalJSON(data []byte) error {
	var s linearState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	l, err := s.linear()
	if err != nil {
		return err
	}
	if r, c := l.W.Dims(); r != m.features+1 || c != m.features {
		return fmt.Errorf("%w: %dx%d weights for %d features", ErrShape, r, c, m.features)
	}
	m.model, m.lambda = l, s.Lambda
	return nil
}
