package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mj-status/forecaster/internal/artifact"
	"github.com/mj-status/forecaster/internal/flow"
	"github.com/mj-status/forecaster/internal/preprocessing"
	"github.com/mj-status/forecaster/internal/storage/models"
	"github.com/mj-status/forecaster/internal/storage/sqlite"
	"github.com/mj-status/forecaster/internal/window"
	"github.com/mj-status/forecaster/pkg/logger"
)

type Runner interface {
	Run(ctx context.Context, req flow.RunRequest) (*flow.RunResult, error)
}

type RunHistory interface {
	ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error)
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
}

type RunsHandler struct {
	runner  Runner
	history RunHistory
}

func NewRunsHandler(runner Runner, history RunHistory) *RunsHandler {
	return &RunsHandler{
		runner:  runner,
		history: history,
	}
}

func (h *RunsHandler) CreateRun(c *fiber.Ctx) error {
	var req flow.RunRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	res, err := h.runner.Run(c.Context(), req)
	if err != nil {
		logger.Error("Run failed", zap.String("model", req.Model), zap.String("action", req.Action.Type), zap.Error(err))
		return c.Status(runStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(res)
}

func runStatus(err error) int {
	switch {
	case errors.Is(err, artifact.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, preprocessing.ErrInvalidSplit), errors.Is(err, window.ErrTooShort):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *RunsHandler) ListRuns(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be between 1 and 500",
		})
	}

	runs, err := h.history.ListRuns(c.Context(), limit)
	if err != nil {
		logger.Error("Failed to list runs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list runs",
		})
	}
	if runs == nil {
		runs = []models.RunRecord{}
	}

	return c.JSON(fiber.Map{
		"runs": runs,
	})
}

func (h *RunsHandler) GetRun(c *fiber.Ctx) error {
	run, err := h.history.GetRun(c.Context(), c.Params("id"))
	if errors.Is(err, sqlite.ErrRunNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Run not found",
		})
	}
	if err != nil {
		logger.Error("Failed to get run", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get run",
		})
	}

	return c.JSON(run)
}
