package evaluation

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/mj-status/forecaster/internal/storage/models"
)

// Stats summarizes one error metric across folds. Lower is better.
type Stats struct {
	Mean      float64 `json:"mean"`
	Best      float64 `json:"best"`
	BestFold  int     `json:"best_fold"`
	Worst     float64 `json:"worst"`
	WorstFold int     `json:"worst_fold"`
}

type Summary struct {
	Folds int   `json:"folds"`
	Val   Stats `json:"val"`
	Test  Stats `json:"test"`
}

// Summarize reduces per-fold performance to mean, best and worst per partition. With no folds every
// statistic is NaN.
func Summarize(perf []models.FoldPerformance) Summary {
	val := make([]float64, len(perf))
	test := make([]float64, len(perf))
	folds := make([]int, len(perf))
	for i, p := range perf {
		val[i], test[i], folds[i] = p.Val, p.Test, p.Fold
	}
	return Summary{
		Folds: len(perf),
		Val:   summarize(val, folds),
		Test:  summarize(test, folds),
	}
}

func summarize(values []float64, folds []int) Stats {
	if len(values) == 0 {
		nan := math.NaN()
		return Stats{Mean: nan, Best: nan, Worst: nan, BestFold: -1, WorstFold: -1}
	}
	s := Stats{
		Mean:  stat.Mean(values, nil),
		Best:  values[0],
		Worst: values[0],
	}
	s.BestFold, s.WorstFold = folds[0], folds[0]
	for i, v := range values[1:] {
		if v < s.Best {
			s.Best, s.BestFold = v, folds[i+1]
		}
		if v > s.Worst {
			s.Worst, s.WorstFold = v, folds[i+1]
		}
	}
	return s
}

// Log writes the summary of a fit to logger.
func (s Summary) Log(logger *zap.Logger, model string) {
	logger.Info("Fit performance",
		zap.String("model", model),
		zap.Int("folds", s.Folds),
		zap.Float64("val_mean", s.Val.Mean),
		zap.Float64("val_best", s.Val.Best),
		zap.Float64("val_worst", s.Val.Worst),
		zap.Float64("test_mean", s.Test.Mean),
		zap.Float64("test_best", s.Test.Best),
		zap.Float64("test_worst", s.Test.Worst),
	)
}
