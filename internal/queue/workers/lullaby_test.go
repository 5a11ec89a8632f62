package workers

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dodoapp/lullaby-backend/internal/queue"
)

type mockRunner struct {
	runFn  func(ctx context.Context, id uuid.UUID) error
	ids    []uuid.UUID
	failed []uuid.UUID
	cause  error
}

func (m *mockRunner) Run(ctx context.Context, id uuid.UUID) error {
	m.ids = append(m.ids, id)
	if m.runFn != nil {
		return m.runFn(ctx, id)
	}
	return nil
}

func (m *mockRunner) Fail(_ context.Context, id uuid.UUID, cause error) {
	m.failed = append(m.failed, id)
	m.cause = cause
}

func onRetry(retried, maxRetry int) func(context.Context) (int, int, bool) {
	return func(context.Context) (int, int, bool) { return retried, maxRetry, true }
}

func TestProcessTaskRunsPipeline(t *testing.T) {
	runner := &mockRunner{}
	id := uuid.New()
	task, err := queue.NewLullabyGenerateTask(id)
	require.NoError(t, err)

	require.NoError(t, NewLullabyWorker(runner).ProcessTask(context.Background(), task))
	assert.Equal(t, []uuid.UUID{id}, runner.ids)
}

func TestProcessTaskBadPayloadSkipsRetry(t *testing.T) {
	runner := &mockRunner{}
	err := NewLullabyWorker(runner).ProcessTask(context.Background(), asynq.NewTask(queue.TypeLullabyGenerate, []byte("{}")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, runner.ids)
}

func TestProcessTaskPropagatesRetryableErrors(t *testing.T) {
	runner := &mockRunner{runFn: func(context.Context, uuid.UUID) error { return context.Canceled }}
	task, _ := queue.NewLullabyGenerateTask(uuid.New())

	err := NewLullabyWorker(runner).ProcessTask(context.Background(), task)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestProcessTaskRetriesBeforeLastAttempt(t *testing.T) {
	runner := &mockRunner{runFn: func(context.Context, uuid.UUID) error { return errors.New("store unreachable") }}
	task, _ := queue.NewLullabyGenerateTask(uuid.New())

	w := NewLullabyWorker(runner)
	w.retries = onRetry(1, 3)
	assert.Error(t, w.ProcessTask(context.Background(), task))
	assert.Empty(t, runner.failed)
}

func TestProcessTaskFailsLullabyOnLastAttempt(t *testing.T) {
	runner := &mockRunner{runFn: func(context.Context, uuid.UUID) error { return context.DeadlineExceeded }}
	id := uuid.New()
	task, _ := queue.NewLullabyGenerateTask(id)

	w := NewLullabyWorker(runner)
	w.retries = onRetry(3, 3)
	require.NoError(t, w.ProcessTask(context.Background(), task))
	assert.Equal(t, []uuid.UUID{id}, runner.failed)
	assert.ErrorIs(t, runner.cause, context.DeadlineExceeded)
}

func TestProcessTaskShutdownOnLastAttemptIsRequeued(t *testing.T) {
	runner := &mockRunner{runFn: func(context.Context, uuid.UUID) error { return context.Canceled }}
	task, _ := queue.NewLullabyGenerateTask(uuid.New())

	w := NewLullabyWorker(runner)
	w.retries = onRetry(3, 3)
	assert.ErrorIs(t, w.ProcessTask(context.Background(), task), context.Canceled)
	assert.Empty(t, runner.failed)
}
