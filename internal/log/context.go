package log

import (
	"context"

	"github.com/google/uuid"
)

type (
	requestIDKey struct{}
	runKey       struct{}
)

type runInfo struct {
	jobID string
	runID string
}

// NewID generates a random UUID v4 for requests and job runs.
func NewID() string {
	return uuid.NewString()
}

// WithRequestID returns a copy of ctx with the request ID attached.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID extracts the request ID from ctx. Returns "" if absent.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithRun tags ctx with the job being executed and the current run ID.
func WithRun(ctx context.Context, jobID, runID string) context.Context {
	return context.WithValue(ctx, runKey{}, runInfo{jobID: jobID, runID: runID})
}

// Run extracts the job and run IDs attached by WithRun.
func Run(ctx context.Context) (jobID, runID string) {
	info, _ := ctx.Value(runKey{}).(runInfo)
	return info.jobID, info.runID
}
