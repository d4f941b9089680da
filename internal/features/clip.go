package features

import (
	"math"

	"github.com/mj-status/forecaster/internal/table"
)

// SoftClipper floors values at zero and saturates them smoothly below Ceiling.
// Softness controls the width of the hinge; zero degenerates to a hard clamp.
type SoftClipper struct {
	Ceiling  float64
	Softness float64
}

func NewSoftClipper(ceiling, softness float64) SoftClipper {
	return SoftClipper{Ceiling: ceiling, Softness: softness}
}

// Clip computes ceiling - softness*ln(1+exp((ceiling-x)/softness)) on max(x, 0).
func (c SoftClipper) Clip(x float64) float64 {
	if math.IsNaN(x) {
		return x
	}
	x = math.Max(x, 0)
	if c.Softness <= 0 {
		return math.Min(x, c.Ceiling)
	}
	y := c.Ceiling - c.Softness*softplus((c.Ceiling-x)/c.Softness)
	// softplus leaves a residue of order softness*exp(-ceiling/softness) at x=0.
	return math.Max(y, 0)
}

func (c SoftClipper) ClipTable(t *table.Table) {
	t.Apply(c.Clip)
}

func (c SoftClipper) ClipRows(rows [][]float64) {
	for _, r := range rows {
		for j, v := range r {
			r[j] = c.Clip(v)
		}
	}
}

// softplus is ln(1+e^z) without overflow for large z.
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
