package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mj-status/forecaster/internal/features"
	"github.com/mj-status/forecaster/internal/ingestion"
	"github.com/mj-status/forecaster/pkg/logger"
)

type Ingester interface {
	Ingest(ctx context.Context, batch ingestion.Batch) (*ingestion.Result, error)
}

type Extractor interface {
	Extract(ctx context.Context, before, after time.Time) ([]ingestion.DayArtifacts, error)
}

type RecordsHandler struct {
	ingester  Ingester
	extractor Extractor
	now       func() time.Time
}

func NewRecordsHandler(ingester Ingester, extractor Extractor) *RecordsHandler {
	return &RecordsHandler{
		ingester:  ingester,
		extractor: extractor,
		now:       time.Now,
	}
}

func (h *RecordsHandler) IngestRecords(c *fiber.Ctx) error {
	var batch ingestion.Batch
	if err := c.BodyParser(&batch); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if len(batch.Events) == 0 && len(batch.Metrics) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Events or metrics are required",
		})
	}

	res, err := h.ingester.Ingest(c.Context(), batch)
	if errors.Is(err, features.ErrInvalidRecord) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		logger.Error("Failed to ingest records", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to ingest records",
		})
	}

	return c.JSON(res)
}

func (h *RecordsHandler) Extract(c *fiber.Ctx) error {
	var req struct {
		Date string `json:"date"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	before, after, err := ingestion.ParseWindow(req.Date, h.now())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if days := int(after.Sub(before).Hours() / 24); days > ingestion.MaxExtractDays {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("extraction window of %d days exceeds %d days", days, ingestion.MaxExtractDays),
		})
	}

	days, err := h.extractor.Extract(c.Context(), before, after)
	if err != nil {
		logger.Error("Extraction failed", zap.String("date", req.Date), zap.Error(err))
		status := fiber.StatusInternalServerError
		if errors.Is(err, features.ErrInvalidRecord) {
			status = fiber.StatusUnprocessableEntity
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"days": days,
	})
}
