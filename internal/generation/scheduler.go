package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dodoapp/lullaby-backend/internal/store"
)

// ErrStopped is returned by Schedule once the scheduler no longer accepts work.
var ErrStopped = errors.New("scheduler stopped")

type Runner interface {
	Run(ctx context.Context, lullabyID uuid.UUID) error
}

// InlineScheduler runs pipelines as goroutines of the current process. A
// lullaby already in flight is not started twice.
type InlineScheduler struct {
	base   context.Context
	runner Runner

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
	stopped  bool
	wg       sync.WaitGroup
}

// NewInlineScheduler runs every pipeline under base, which should live as
// long as the process.
func NewInlineScheduler(base context.Context, runner Runner) *InlineScheduler {
	return &InlineScheduler{base: base, runner: runner, inflight: make(map[uuid.UUID]struct{})}
}

// Schedule starts the pipeline unless it is already running. It refuses work
// once base is done or Stop was called.
func (s *InlineScheduler) Schedule(_ context.Context, lullabyID uuid.UUID) error {
	s.mu.Lock()
	if s.stopped || s.base.Err() != nil {
		s.mu.Unlock()
		return ErrStopped
	}
	if _, ok := s.inflight[lullabyID]; ok {
		s.mu.Unlock()
		return nil
	}
	s.inflight[lullabyID] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, lullabyID)
			s.mu.Unlock()
		}()
		if err := s.runner.Run(s.base, lullabyID); err != nil {
			slog.Warn("inline lullaby pipeline ended early", "lullaby_id", lullabyID, "error", err)
		}
	}()
	return nil
}

// Wait blocks until every scheduled pipeline returned.
func (s *InlineScheduler) Wait() {
	s.wg.Wait()
}

// Stop refuses further work and waits for the running pipelines.
func (s *InlineScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.wg.Wait()
}

// Recover reschedules every generation job the ledger still holds as
// unfinished, typically after a restart. It stops early when ctx is done or
// the scheduler was stopped.
func Recover(ctx context.Context, st store.Store, sched Scheduler) (int, error) {
	jobs, err := st.ListUnfinishedJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unfinished jobs: %w", err)
	}
	n := 0
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		err := sched.Schedule(ctx, j.LullabyID)
		if errors.Is(err, ErrStopped) {
			return n, err
		}
		if err != nil {
			slog.Error("failed to reschedule lullaby", "lullaby_id", j.LullabyID, "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		slog.Info("rescheduled unfinished lullabies", "count", n)
	}
	return n, nil
}
