package pipeline

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/domain"
)

// Definition is everything the scheduler needs to register one pipeline.
type Definition struct {
	JobID    string
	CronExpr string
	Job      domain.Job
	Retry    domain.RetryPolicy
}

// Definitions builds one job per pipeline, in file order. sinks is keyed by
// target name. Pipelines that cannot be built are left out and reported in
// the joined error; the rest are still returned.
func (c *Config) Definitions(client *http.Client, sinks map[string]Sink) ([]Definition, error) {
	defs := make([]Definition, 0, len(c.Pipelines))
	var errs []error
	for _, p := range c.Pipelines {
		src, ok := c.Sources[p.Source]
		if !ok {
			errs = append(errs, fmt.Errorf("pipeline %s: unknown source %q", p.ID, p.Source))
			continue
		}

		var sink Sink
		if p.Target != "" {
			if sink, ok = sinks[p.Target]; !ok {
				errs = append(errs, fmt.Errorf("pipeline %s: no sink for target %q", p.ID, p.Target))
				continue
			}
		}

		defs = append(defs, Definition{
			JobID:    p.ID,
			CronExpr: p.Schedule,
			Job:      NewHTTPJob(client, src, sink, p.Table),
			Retry: domain.RetryPolicy{
				MaxAttempts: p.Retry.MaxAttempts,
				MinDelay:    p.Retry.MinDelay,
				MaxDelay:    p.Retry.MaxDelay,
				Jitter:      p.Retry.Jitter,
			},
		})
	}
	return defs, errors.Join(errs...)
}
