// Package poller drives bounded, fixed-interval polling of an external
// asynchronous job.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrExhausted is reported when the engine gave up because status checks
// kept failing, as opposed to the provider reporting a failure.
var ErrExhausted = errors.New("polling exhausted")

type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Check is one normalized status observation.
type Check struct {
	Status   Status
	AudioURL string
	Message  string
}

type CheckFunc func(ctx context.Context, jobID string) (Check, error)

type Outcome string

const (
	OutcomeComplete     Outcome = "complete"
	OutcomeFailed       Outcome = "failed"
	OutcomeStillPending Outcome = "still_pending"
	OutcomeExhausted    Outcome = "exhausted"
)

type Result struct {
	Outcome  Outcome
	AudioURL string
	Checks   int
	// Message holds the provider failure message or the last check error.
	Message string
}

// Err maps non-successful outcomes to an error. StillPending is not an
// error: the caller is expected to poll again later.
func (r Result) Err() error {
	switch r.Outcome {
	case OutcomeExhausted:
		return fmt.Errorf("%w after %d checks: %s", ErrExhausted, r.Checks, r.Message)
	case OutcomeFailed:
		return fmt.Errorf("job failed: %s", r.Message)
	default:
		return nil
	}
}

// Poller checks a job at a fixed interval, at most MaxAttempts times. Running
// out of attempts yields StillPending; MaxCheckErrors consecutive failed
// checks yield Exhausted.
//
// TODO: exponential backoff with jitter once polling budgets grow past ten minutes.
type Poller struct {
	Interval       time.Duration
	MaxAttempts    int
	MaxCheckErrors int

	// Sleep waits between checks. Tests replace it to run instantly.
	Sleep func(ctx context.Context, d time.Duration) error
	// Observe is called with the result label of every check.
	Observe func(result string)
}

func New(interval time.Duration, maxAttempts, maxCheckErrors int) *Poller {
	return &Poller{
		Interval:       interval,
		MaxAttempts:    maxAttempts,
		MaxCheckErrors: maxCheckErrors,
		Sleep:          sleepContext,
	}
}

// Until checks jobID until it reaches a terminal state or the budget runs out.
// The returned error is non-nil only when ctx is done.
func (p *Poller) Until(ctx context.Context, jobID string, check CheckFunc) (Result, error) {
	var (
		consecutiveErrs int
		lastErr         error
		res             Result
	)

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx); err != nil {
				return res, err
			}
		}

		res.Checks = attempt
		c, err := check(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			p.observe("error")
			consecutiveErrs++
			lastErr = err
			slog.Warn("status check failed", "job_id", jobID, "attempt", attempt, "error", err)
			if consecutiveErrs >= p.MaxCheckErrors {
				res.Outcome = OutcomeExhausted
				res.Message = err.Error()
				return res, nil
			}
			continue
		}
		consecutiveErrs = 0
		lastErr = nil
		p.observe(string(c.Status))

		switch {
		case c.Status == StatusFailed:
			res.Outcome = OutcomeFailed
			res.Message = c.Message
			return res, nil
		case c.AudioURL != "":
			// A pending job that already exposes a playable URL counts as done.
			res.Outcome = OutcomeComplete
			res.AudioURL = c.AudioURL
			return res, nil
		}
		slog.Debug("job still pending", "job_id", jobID, "attempt", attempt)
	}

	res.Outcome = OutcomeStillPending
	if lastErr != nil {
		res.Message = lastErr.Error()
	}
	return res, nil
}

func (p *Poller) sleep(ctx context.Context) error {
	if p.Sleep == nil {
		return sleepContext(ctx, p.Interval)
	}
	return p.Sleep(ctx, p.Interval)
}

func (p *Poller) observe(result string) {
	if p.Observe != nil {
		p.Observe(result)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
