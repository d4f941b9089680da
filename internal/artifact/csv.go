package artifact

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/mj-status/forecaster/internal/evaluation"
	"github.com/mj-status/forecaster/internal/storage/models"
	"github.com/mj-status/forecaster/internal/table"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func encodeCSV(records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTable renders t as CSV with a header row of column names.
func EncodeTable(t *table.Table) ([]byte, error) {
	records := make([][]string, 0, t.Len()+1)
	records = append(records, append([]string(nil), t.Columns...))
	for _, r := range t.Rows {
		rec := make([]string, len(r))
		for j, v := range r {
			rec[j] = formatFloat(v)
		}
		records = append(records, rec)
	}
	return encodeCSV(records)
}

// EncodePerformance renders per-fold metrics followed by their mean.
func EncodePerformance(perf []models.FoldPerformance) ([]byte, error) {
	records := [][]string{{"fold", "val", "test"}}
	for _, p := range perf {
		records = append(records, []string{strconv.Itoa(p.Fold), formatFloat(p.Val), formatFloat(p.Test)})
	}
	summary := evaluation.Summarize(perf)
	records = append(records, []string{"mean", formatFloat(summary.Val.Mean), formatFloat(summary.Test.Mean)})
	return encodeCSV(records)
}

func PerformanceKey(prefix, model string) string {
	return path.Join(prefix, model+".csv")
}

func PredictionKey(prefix, model string, day time.Time) string {
	return path.Join(prefix, fmt.Sprintf("%s_%s.csv", model, day.Format(models.DayLayout)))
}

func SavePerformance(ctx context.Context, s Store, prefix, model string, perf []models.FoldPerformance) error {
	data, err := EncodePerformance(perf)
	if err != nil {
		return fmt.Errorf("failed to encode %s performance: %w", model, err)
	}
	return Write(ctx, s, PerformanceKey(prefix, model), data)
}

func SavePrediction(ctx context.Context, s Store, key string, t *table.Table) error {
	data, err := EncodeTable(t)
	if err != nil {
		return fmt.Errorf("failed to encode prediction: %w", err)
	}
	return Write(ctx, s, key, data)
}
