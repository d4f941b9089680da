package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/mj-status/forecaster/internal/preprocessing"
	"github.com/mj-status/forecaster/internal/storage/models"
	"github.com/mj-status/forecaster/internal/window"
)

// Bundle is everything the predict path needs from a fit: the trained forecaster state and the
// normalization parameters of the fold that produced it.
type Bundle struct {
	ID          string                   `json:"id"`
	Model       string                   `json:"model"`
	Features    int                      `json:"features"`
	Steps       int                      `json:"steps"`
	Targets     int                      `json:"targets"`
	Spec        window.Spec              `json:"spec"`
	Params      preprocessing.Params     `json:"params"`
	State       json.RawMessage          `json:"state"`
	Performance []models.FoldPerformance `json:"performance"`
	CreatedAt   time.Time                `json:"created_at"`
}

func BundleKey(prefix, model string) string {
	return path.Join(prefix, model+".json")
}

func SaveBundle(ctx context.Context, s Store, prefix string, b *Bundle) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s bundle: %w", b.Model, err)
	}
	return Write(ctx, s, BundleKey(prefix, b.Model), data)
}

func LoadBundle(ctx context.Context, s Store, prefix, model string) (*Bundle, error) {
	key := BundleKey(prefix, model)
	data, err := s.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	if b.Model != model {
		return nil, fmt.Errorf("bundle %s holds model %q, want %q", key, b.Model, model)
	}
	if len(b.Params.Columns) != b.Features {
		return nil, fmt.Errorf("bundle %s has %d normalized columns for %d features", key, len(b.Params.Columns), b.Features)
	}
	return &b, nil
}
