package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/domain"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/scheduler"
	"github.com/gin-gonic/gin"
)

// ScheduleReader is satisfied by *scheduler.Registry.
type ScheduleReader interface {
	Entries() []domain.ScheduleEntry
	Get(jobID string) (domain.ScheduleEntry, error)
}

// Trigger is satisfied by *scheduler.Dispatcher.
type Trigger interface {
	Trigger(ctx context.Context, jobID string) (domain.Firing, error)
}

type ScheduleHandler struct {
	schedules ScheduleReader
	trigger   Trigger
	logger    *slog.Logger
}

func NewScheduleHandler(schedules ScheduleReader, trigger Trigger, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		schedules: schedules,
		trigger:   trigger,
		logger:    logger.With("component", "schedule_handler"),
	}
}

type retryResponse struct {
	MaxAttempts int    `json:"max_attempts,omitempty"`
	MinDelay    string `json:"min_delay,omitempty"`
	MaxDelay    string `json:"max_delay,omitempty"`
	Jitter      bool   `json:"jitter,omitempty"`
}

type scheduleResponse struct {
	JobID      string        `json:"job_id"`
	CronExpr   string        `json:"cron_expr"`
	NextFireAt time.Time     `json:"next_fire_at"`
	Retry      retryResponse `json:"retry"`
}

func toScheduleResponse(e domain.ScheduleEntry) scheduleResponse {
	r := retryResponse{MaxAttempts: e.Retry.MaxAttempts, Jitter: e.Retry.Jitter}
	if e.Retry.MinDelay > 0 {
		r.MinDelay = e.Retry.MinDelay.String()
	}
	if e.Retry.MaxDelay > 0 {
		r.MaxDelay = e.Retry.MaxDelay.String()
	}
	return scheduleResponse{
		JobID:      e.JobID,
		CronExpr:   e.CronExpr,
		NextFireAt: e.NextFireAt,
		Retry:      r,
	}
}

func (h *ScheduleHandler) List(ctx *gin.Context) {
	entries := h.schedules.Entries()
	items := make([]scheduleResponse, len(entries))
	for i, e := range entries {
		items[i] = toScheduleResponse(e)
	}
	ctx.JSON(http.StatusOK, gin.H{"schedules": items})
}

func (h *ScheduleHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	e, err := h.schedules.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrScheduleNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
			return
		}
		h.logger.ErrorContext(ctx.Request.Context(), "get schedule", "job_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, toScheduleResponse(e))
}

// Trigger fires the job once without waiting for it to run.
func (h *ScheduleHandler) Trigger(ctx *gin.Context) {
	id := ctx.Param("id")

	f, err := h.trigger.Trigger(ctx.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrScheduleNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
		case errors.Is(err, scheduler.ErrDraining):
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": errDraining})
		default:
			h.logger.ErrorContext(ctx.Request.Context(), "trigger schedule", "job_id", id, "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{
		"job_id":       f.JobID,
		"triggered_at": f.ScheduledAt,
	})
}
