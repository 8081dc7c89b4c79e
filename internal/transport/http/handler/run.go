package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/domain"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/repository"
	"github.com/gin-gonic/gin"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

type RunHandler struct {
	runs   repository.RunRepository
	logger *slog.Logger
}

func NewRunHandler(runs repository.RunRepository, logger *slog.Logger) *RunHandler {
	return &RunHandler{runs: runs, logger: logger.With("component", "run_handler")}
}

type runResponse struct {
	ID          string         `json:"id"`
	JobID       string         `json:"job_id"`
	Attempt     int            `json:"attempt"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     time.Time      `json:"ended_at"`
	DurationMS  int64          `json:"duration_ms"`
	Outcome     domain.Outcome `json:"outcome"`
	Error       string         `json:"error,omitempty"`
	Records     int64          `json:"records"`
}

func toRunResponse(r *domain.JobRun) runResponse {
	return runResponse{
		ID:          r.ID,
		JobID:       r.JobID,
		Attempt:     r.Attempt,
		ScheduledAt: r.ScheduledAt,
		StartedAt:   r.StartedAt,
		EndedAt:     r.EndedAt,
		DurationMS:  r.Duration().Milliseconds(),
		Outcome:     r.Outcome,
		Error:       r.Error,
		Records:     r.Records,
	}
}

// List returns recent run attempts, newest first.
func (h *RunHandler) List(ctx *gin.Context) {
	limit := defaultRunLimit
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRunLimit {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidLimit})
			return
		}
		limit = n
	}

	runs, err := h.runs.List(ctx.Request.Context(), repository.ListRunsInput{
		JobID: ctx.Query("job_id"),
		Limit: limit,
	})
	if err != nil {
		h.logger.ErrorContext(ctx.Request.Context(), "list runs", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	items := make([]runResponse, len(runs))
	for i, r := range runs {
		items[i] = toRunResponse(r)
	}
	ctx.JSON(http.StatusOK, gin.H{"runs": items})
}
