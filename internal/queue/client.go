package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/dodoapp/lullaby-backend/internal/config"
)

type Client struct {
	client      *asynq.Client
	inspector   *asynq.Inspector
	taskTimeout time.Duration
}

// NewClient builds the producer side. taskTimeout bounds one pipeline run.
func NewClient(cfg config.RedisConfig, taskTimeout time.Duration) *Client {
	return NewClientWithRedis(RedisOpt(cfg), taskTimeout)
}

func NewClientWithRedis(opt asynq.RedisConnOpt, taskTimeout time.Duration) *Client {
	return &Client{
		client:      asynq.NewClient(opt),
		inspector:   asynq.NewInspector(opt),
		taskTimeout: taskTimeout,
	}
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}

// Schedule enqueues the generation of a lullaby. A live task for the same
// lullaby counts as success. An archived or completed one is replaced, so a
// record left generating by a task that ran out of retries gets another run.
func (c *Client) Schedule(ctx context.Context, lullabyID uuid.UUID) error {
	task, err := NewLullabyGenerateTask(lullabyID)
	if err != nil {
		return err
	}
	info, err := c.client.EnqueueContext(ctx, task, LullabyTaskOptions(lullabyID, c.taskTimeout)...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		replaced, rerr := c.releaseSpent(lullabyID)
		if rerr != nil {
			return rerr
		}
		if !replaced {
			slog.Info("lullaby task already queued", "lullaby_id", lullabyID)
			return nil
		}
		info, err = c.client.EnqueueContext(ctx, task, LullabyTaskOptions(lullabyID, c.taskTimeout)...)
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeLullabyGenerate, err)
	}
	slog.Debug("lullaby task enqueued", "lullaby_id", lullabyID, "task_id", info.ID, "queue", info.Queue)
	return nil
}

// releaseSpent deletes the lullaby's task when it is archived or completed
// and reports whether the task ID is free again.
func (c *Client) releaseSpent(lullabyID uuid.UUID) (bool, error) {
	id := TaskID(lullabyID)
	info, err := c.inspector.GetTaskInfo(QueueCritical, id)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("inspect task %s: %w", id, err)
	}
	switch info.State {
	case asynq.TaskStateArchived, asynq.TaskStateCompleted:
	default:
		return false, nil
	}
	if err := c.inspector.DeleteTask(QueueCritical, id); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return false, fmt.Errorf("delete spent task %s: %w", id, err)
	}
	slog.Info("replacing spent lullaby task", "lullaby_id", lullabyID, "state", info.State.String())
	return true, nil
}

func LullabyTaskOptions(lullabyID uuid.UUID, timeout time.Duration) []asynq.Option {
	return []asynq.Option{
		asynq.TaskID(TaskID(lullabyID)),
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(3),
		asynq.Timeout(timeout),
	}
}
