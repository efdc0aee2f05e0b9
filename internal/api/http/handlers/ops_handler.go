package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/supporthub/internal/observability"
	"github.com/spec-kit/supporthub/internal/worker"
	apperrors "github.com/spec-kit/supporthub/pkg/util/errorutil"
)

// PipelineRunner triggers a named pipeline synchronously.
type PipelineRunner interface {
	Run(ctx context.Context, pipeline string) (observability.RunSummary, error)
	Pipelines() []string
}

// RunLog reports the latest run of each pipeline.
type RunLog interface {
	LastRuns() []observability.RunSummary
}

// OpsHandler exposes pipeline runs to operators.
type OpsHandler struct {
	runner PipelineRunner
	runs   RunLog
}

// NewOpsHandler constructs handler.
func NewOpsHandler(runner PipelineRunner, runs RunLog) *OpsHandler {
	return &OpsHandler{runner: runner, runs: runs}
}

// ListRuns GET /ops/runs.
func (h *OpsHandler) ListRuns(c *fiber.Ctx) error {
	runs := h.runs.LastRuns()
	if runs == nil {
		runs = []observability.RunSummary{}
	}
	return c.JSON(fiber.Map{"data": runs, "pipelines": h.runner.Pipelines()})
}

// TriggerRun POST /ops/runs/:pipeline.
func (h *OpsHandler) TriggerRun(c *fiber.Ctx) error {
	pipeline := c.Params("pipeline")
	summary, err := h.runner.Run(c.UserContext(), pipeline)
	switch {
	case errors.Is(err, worker.ErrUnknownPipeline):
		return apperrors.NewNotFound("pipeline", map[string]any{"pipeline": pipeline})
	case errors.Is(err, worker.ErrRunInProgress), errors.Is(err, worker.ErrLockHeld):
		return apperrors.NewConflict("pipeline run already in progress", map[string]any{"pipeline": pipeline})
	case err != nil:
		return err
	}
	return c.JSON(fiber.Map{"data": summary})
}
