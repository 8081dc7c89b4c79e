package email

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/domain"
	"golang.org/x/time/rate"
)

// ErrAlertRateLimited is returned when an alert is dropped to protect the
// operator's inbox during an outage that fails every pipeline at once.
var ErrAlertRateLimited = errors.New("alert rate limit exceeded")

// FailureAlerter e-mails an operator when a job exhausts its retries.
type FailureAlerter struct {
	sender  Sender
	to      string
	limiter *rate.Limiter
}

// NewFailureAlerter sends at most perHour alerts per hour, all of them in a
// burst if needed.
func NewFailureAlerter(sender Sender, to string, perHour int) *FailureAlerter {
	if perHour < 1 {
		perHour = 1
	}
	return &FailureAlerter{
		sender:  sender,
		to:      to,
		limiter: rate.NewLimiter(rate.Every(time.Hour/time.Duration(perHour)), perHour),
	}
}

func (a *FailureAlerter) NotifyJobFailed(ctx context.Context, run *domain.JobRun, attempts int) error {
	if !a.limiter.Allow() {
		return fmt.Errorf("alert job %s failure: %w", run.JobID, ErrAlertRateLimited)
	}

	subject := fmt.Sprintf("[pipeline-scheduler] job %s failed after %d attempt(s)", run.JobID, attempts)
	body := fmt.Sprintf(`<p>Job <b>%s</b> failed permanently.</p>
<ul>
<li>Scheduled at: %s</li>
<li>Last attempt: %d (run %s)</li>
<li>Duration: %s</li>
<li>Error: <code>%s</code></li>
</ul>`,
		html.EscapeString(run.JobID),
		run.ScheduledAt.Format(time.RFC3339),
		run.Attempt, html.EscapeString(run.ID),
		run.Duration(),
		html.EscapeString(run.Error),
	)

	if err := a.sender.Send(ctx, a.to, subject, body); err != nil {
		return fmt.Errorf("alert job %s failure: %w", run.JobID, err)
	}
	return nil
}
