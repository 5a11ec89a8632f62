package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/dodoapp/lullaby-backend/internal/generation"
	"github.com/dodoapp/lullaby-backend/internal/queue"
)

// Pipeline runs a lullaby and can give up on it once retries are spent.
type Pipeline interface {
	generation.Runner
	Fail(ctx context.Context, lullabyID uuid.UUID, cause error)
}

type LullabyWorker struct {
	pipeline Pipeline
	// retries reports how often the task was retried and its retry limit.
	retries func(ctx context.Context) (retried, maxRetry int, ok bool)
}

func NewLullabyWorker(pipeline Pipeline) *LullabyWorker {
	return &LullabyWorker{pipeline: pipeline, retries: taskRetries}
}

func (w *LullabyWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	lullabyID, err := queue.ParseLullabyGeneratePayload(t)
	if err != nil {
		return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
	}

	slog.Info("generating lullaby", "lullaby_id", lullabyID)
	err = w.pipeline.Run(ctx, lullabyID)
	if err == nil {
		return nil
	}
	err = fmt.Errorf("run lullaby pipeline: %w", err)

	// A shutdown hands the task back to the queue without spending a retry.
	if errors.Is(err, context.Canceled) {
		return err
	}
	if retried, maxRetry, ok := w.retries(ctx); ok && retried >= maxRetry {
		slog.Error("lullaby retries exhausted", "lullaby_id", lullabyID, "retried", retried, "error", err)
		w.pipeline.Fail(ctx, lullabyID, err)
		return nil
	}
	return err
}

func taskRetries(ctx context.Context) (int, int, bool) {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return 0, 0, false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return retried, maxRetry, ok
}
