// Package cronspec parses the 6-field cron expressions used by pipeline
// schedules: second, minute, hour, day-of-month, month, day-of-week.
package cronspec

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const fieldCount = 6

var parser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Schedule computes fire instants of a parsed expression.
type Schedule interface {
	// Next returns the soonest matching instant strictly after t, in t's location.
	// The zero time means the expression never matches again.
	Next(t time.Time) time.Time
}

// Parse validates expr and returns its schedule. Field ranges are enforced
// by the parser: seconds and minutes 0-59, hours 0-23, day-of-month 1-31,
// month 1-12, day-of-week 0-6.
func Parse(expr string) (Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != fieldCount {
		return nil, fmt.Errorf("expected %d fields, got %d in %q", fieldCount, len(fields), expr)
	}
	for _, f := range fields {
		if strings.HasPrefix(f, "@") || strings.Contains(f, "=") {
			return nil, fmt.Errorf("unsupported token %q in %q", f, expr)
		}
	}

	sched, err := parser.Parse(strings.Join(fields, " "))
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", expr, err)
	}

	// robfig gives up after five years of search and returns the zero time.
	ref := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	if sched.Next(ref).IsZero() {
		return nil, fmt.Errorf("%q never fires", expr)
	}
	return sched, nil
}

// NextN returns the next n fire instants after t.
func NextN(s Schedule, t time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for range n {
		t = s.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out
}
