package acgme

import (
	"context"
	"time"

	"github.com/residency-data/goaccredit/internal/logger"
)

// Attempter performs a single resolution attempt.
type Attempter interface {
	Resolve(ctx context.Context, page Page, programID string) Outcome
}

// RecordResolver retries an Attempter until a year is found, the site reports
// no record, or the retry budget is spent.
type RecordResolver struct {
	attempter  Attempter
	maxRetries int
	delay      time.Duration
	log        *logger.Logger
}

// NewRecordResolver creates a RecordResolver. maxRetries below 1 is treated as 1.
func NewRecordResolver(attempter Attempter, maxRetries int, delay time.Duration, log *logger.Logger) *RecordResolver {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RecordResolver{attempter: attempter, maxRetries: maxRetries, delay: delay, log: log}
}

// Resolve returns the first resolved outcome for programID.
func (r *RecordResolver) Resolve(ctx context.Context, page Page, programID string) Outcome {
	log := r.log.WithRecord(programID)
	last := failed("not attempted")

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		alog := log.WithAttempt(attempt)
		alog.Debug("Resolving record")

		out := r.attempter.Resolve(ctx, page, programID)
		out.Attempts = attempt

		switch out.Status {
		case StatusResolved:
			alog.Infow("Record resolved", "year", out.Year, "source", out.Source)
			return out
		case StatusNoRecord:
			return out
		}

		last = out
		alog.Warnw("Attempt failed", "reason", out.Reason)

		if attempt < r.maxRetries {
			if err := wait(ctx, r.delay); err != nil {
				last.Reason = err.Error()
				return last
			}
		}
	}

	log.Warnw("All attempts failed", "attempts", r.maxRetries, "reason", last.Reason)
	return last
}
