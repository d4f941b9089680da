package handlers

import (
	"errors"
	"path"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mj-status/forecaster/internal/artifact"
	"github.com/mj-status/forecaster/internal/storage/models"
	"github.com/mj-status/forecaster/pkg/config"
	"github.com/mj-status/forecaster/pkg/logger"
)

type ArtifactsHandler struct {
	store artifact.Store
	paths config.PathsConfig
	now   func() time.Time
}

func NewArtifactsHandler(store artifact.Store, paths config.PathsConfig) *ArtifactsHandler {
	return &ArtifactsHandler{
		store: store,
		paths: paths,
		now:   time.Now,
	}
}

type artifactEntry struct {
	Key  string `json:"key"`
	Date string `json:"date,omitempty"`
}

// ListArtifacts lists the artifacts of one kind: metrics, events, models or output. With start or end
// set, only day artifacts within the offsets are returned.
func (h *ArtifactsHandler) ListArtifacts(c *fiber.Ctx) error {
	prefixes := map[string]string{
		"metrics": h.paths.Metrics,
		"events":  h.paths.Events,
		"models":  h.paths.Models,
		"output":  h.paths.Output,
	}
	kind := c.Query("kind", "metrics")
	prefix, ok := prefixes[kind]
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "kind must be one of metrics, events, models, output",
		})
	}

	var r *artifact.DateRange
	if c.Query("start") != "" || c.Query("end") != "" {
		start, end := c.QueryInt("start", 0), c.QueryInt("end", 0)
		if start < 0 || end < 0 || end > start {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "start and end must satisfy 0 <= end <= start",
			})
		}
		dr := artifact.Offsets(h.now(), start, end)
		r = &dr
	}

	keys, err := h.store.List(c.Context(), prefix)
	if errors.Is(err, artifact.ErrNotFound) {
		keys = nil
	} else if err != nil {
		logger.Error("Failed to list artifacts", zap.String("prefix", prefix), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list artifacts",
		})
	}
	sort.Strings(keys)

	entries := make([]artifactEntry, 0, len(keys))
	for _, key := range keys {
		e := artifactEntry{Key: key}
		date, derr := artifact.KeyDate(key, h.now().Location())
		if derr == nil && path.Ext(key) == ".json" {
			e.Date = date.Format(models.DayLayout)
		}
		if r != nil && (e.Date == "" || !r.Contains(date)) {
			continue
		}
		entries = append(entries, e)
	}

	return c.JSON(fiber.Map{
		"kind":      kind,
		"prefix":    prefix,
		"artifacts": entries,
	})
}
