package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/mj-status/forecaster/internal/window"
)

// lambdas are the ridge penalties tried during Fit; the one with the lowest validation error wins.
var lambdas = []float64{1e-3, 1e-2, 1e-1, 1}

// linear maps an input vector plus bias to an output vector.
type linear struct {
	W *mat.Dense
}

type linearState struct {
	Rows   int       `json:"rows"`
	Cols   int       `json:"cols"`
	Data   []float64 `json:"data"`
	Lambda float64   `json:"lambda"`
}

// fitRidge solves (XᵀX + λI)W = XᵀY with a bias column appended to X.
func fitRidge(xs, ys [][]float64, lambda float64) (linear, error) {
	if len(xs) == 0 || len(xs) != len(ys) {
		return linear{}, fmt.Errorf("%w: %d inputs, %d targets", ErrShape, len(xs), len(ys))
	}
	in, out := len(xs[0])+1, len(ys[0])
	X := mat.NewDense(len(xs), in, nil)
	Y := mat.NewDense(len(ys), out, nil)
	for i := range xs {
		X.SetRow(i, append(append([]float64(nil), xs[i]...), 1))
		Y.SetRow(i, ys[i])
	}

	var A mat.Dense
	A.Mul(X.T(), X)
	for k := 0; k < in; k++ {
		A.Set(k, k, A.At(k, k)+lambda)
	}
	var B mat.Dense
	B.Mul(X.T(), Y)

	var W mat.Dense
	if err := W.Solve(&A, &B); err != nil {
		return linear{}, fmt.Errorf("ridge solve: %w", err)
	}
	return linear{W: &W}, nil
}

func (l linear) trained() bool { return l.W != nil }

func (l linear) apply(x []float64) []float64 {
	in, out := l.W.Dims()
	v := mat.NewVecDense(in, append(append([]float64(nil), x...), 1))
	var y mat.VecDense
	y.MulVec(l.W.T(), v)
	res := make([]float64, out)
	for i := range res {
		res[i] = y.AtVec(i)
	}
	return res
}

func (l linear) state(lambda float64) linearState {
	r, c := l.W.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, mat.Row(nil, i, l.W)...)
	}
	return linearState{Rows: r, Cols: c, Data: data, Lambda: lambda}
}

func (s linearState) linear() (linear, error) {
	if s.Rows*s.Cols != len(s.Data) || s.Rows == 0 {
		return linear{}, fmt.Errorf("%w: %dx%d weights with %d values", ErrShape, s.Rows, s.Cols, len(s.Data))
	}
	return linear{W: mat.NewDense(s.Rows, s.Cols, append([]float64(nil), s.Data...))}, nil
}

// regression is shared by forecasters that map one feature vector per example to all steps.
type regression struct {
	features int
	steps    int
	inputs   func(ex window.Example) ([]float64, error)
	model    linear
	lambda   float64
}

func (r *regression) samples(ds window.Dataset) (xs, ys [][]float64, err error) {
	for ex := range ds.All() {
		x, err := r.inputs(ex)
		if err != nil {
			return nil, nil, err
		}
		if len(ex.Labels) != r.steps {
			return nil, nil, fmt.Errorf("%w: %d labels, model forecasts %d steps", ErrShape, len(ex.Labels), r.steps)
		}
		xs = append(xs, x)
		ys = append(ys, flatten(ex.Labels))
	}
	return xs, ys, nil
}

func (r *regression) fit(ctx context.Context, train, val window.Dataset) error {
	for _, ds := range []window.Dataset{train, val} {
		if err := checkFeatures(r.features, ds); err != nil {
			return err
		}
	}
	xs, ys, err := r.samples(train)
	if err != nil {
		return err
	}

	best, bestErr := linear{}, math.Inf(1)
	for _, lambda := range lambdas {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := fitRidge(xs, ys, lambda)
		if err != nil {
			return err
		}
		r.model = m
		score, err := MeanAbsoluteError(val, r.predict)
		if err != nil {
			return err
		}
		if score < bestErr {
			best, bestErr, r.lambda = m, score, lambda
		}
	}
	r.model = best
	return nil
}

func (r *regression) predict(ex window.Example) ([][]float64, error) {
	if !r.model.trained() {
		return nil, ErrNotTrained
	}
	x, err := r.inputs(ex)
	if err != nil {
		return nil, err
	}
	return reshape(r.model.apply(x), r.steps, r.features), nil
}

func (r *regression) marshal() ([]byte, error) {
	if !r.model.trained() {
		return nil, ErrNotTrained
	}
	return json.Marshal(r.model.state(r.lambda))
}

func (r *regression) unmarshal(data []byte) error {
	var s linearState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	m, err := s.linear()
	if err != nil {
		return err
	}
	if _, out := m.W.Dims(); out != r.steps*r.features {
		return fmt.Errorf("%w: weights produce %d values, want %d", ErrShape, out, r.steps*r.features)
	}
	r.model, r.lambda = m, s.Lambda
	return nil
}
