package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	sleeps []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.sleeps = append(r.sleeps, d)
	return nil
}

func newTestPoller(attempts int) (*Poller, *recorder) {
	rec := &recorder{}
	p := New(5*time.Second, attempts, 10)
	p.Sleep = rec.sleep
	return p, rec
}

func TestPendingThenComplete(t *testing.T) {
	const n = 4
	p, rec := newTestPoller(60)

	calls := 0
	res, err := p.Until(context.Background(), "task-1", func(context.Context, string) (Check, error) {
		calls++
		if calls <= n {
			return Check{Status: StatusPending}, nil
		}
		return Check{Status: StatusComplete, AudioURL: "https://cdn/song.mp3"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, res.Outcome)
	assert.Equal(t, "https://cdn/song.mp3", res.AudioURL)
	assert.Equal(t, n+1, calls)
	assert.Equal(t, n+1, res.Checks)
	require.Len(t, rec.sleeps, n)
	for _, d := range rec.sleeps {
		assert.Equal(t, 5*time.Second, d)
	}
	assert.NoError(t, res.Err())
}

func TestPendingWithURLReturnsEarly(t *testing.T) {
	p, _ := newTestPoller(60)
	res, err := p.Until(context.Background(), "task-1", func(context.Context, string) (Check, error) {
		return Check{Status: StatusPending, AudioURL: "https://cdn/stream"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, res.Outcome)
	assert.Equal(t, 1, res.Checks)
}

func TestCompleteWithoutURLKeepsPolling(t *testing.T) {
	p, _ := newTestPoller(3)
	res, err := p.Until(context.Background(), "task-1", func(context.Context, string) (Check, error) {
		return Check{Status: StatusComplete}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeStillPending, res.Outcome)
	assert.Equal(t, 3, res.Checks)
}

func TestAlwaysErroringCheckExhausts(t *testing.T) {
	p, rec := newTestPoller(60)

	calls := 0
	res, err := p.Until(context.Background(), "task-1", func(context.Context, string) (Check, error) {
		calls++
		return Check{}, errors.New("connection reset")
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeExhausted, res.Outcome)
	assert.Equal(t, 10, calls)
	assert.Len(t, rec.sleeps, 9)
	assert.ErrorIs(t, res.Err(), ErrExhausted)
}

func TestTransientErrorsAreTolerated(t *testing.T) {
	p, _ := newTestPoller(60)

	calls := 0
	res, err := p.Until(context.Background(), "task-1", func(context.Context, string) (Check, error) {
		calls++
		switch {
		case calls%2 == 1 && calls < 30:
			return Check{}, errors.New("blip")
		case calls < 30:
			return Check{Status: StatusPending}, nil
		}
		return Check{Status: StatusComplete, AudioURL: "u"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, res.Outcome)
	assert.Equal(t, 30, calls)
}

func TestProviderFailure(t *testing.T) {
	p, _ := newTestPoller(60)
	res, err := p.Until(context.Background(), "task-1", func(context.Context, string) (Check, error) {
		return Check{Status: StatusFailed, Message: "content policy"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.NotErrorIs(t, res.Err(), ErrExhausted)
	assert.ErrorContains(t, res.Err(), "content policy")
}

func TestBudgetSpentWhilePending(t *testing.T) {
	p, rec := newTestPoller(5)
	res, err := p.Until(context.Background(), "task-1", func(context.Context, string) (Check, error) {
		return Check{Status: StatusPending}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeStillPending, res.Outcome)
	assert.NoError(t, res.Err())
	assert.Len(t, rec.sleeps, 4)
}

func TestBudgetSpentOnErrorIsStillPending(t *testing.T) {
	p, _ := newTestPoller(3)
	res, err := p.Until(context.Background(), "task-1", func(context.Context, string) (Check, error) {
		return Check{}, errors.New("timeout")
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeStillPending, res.Outcome)
	assert.Equal(t, "timeout", res.Message)
	assert.NoError(t, res.Err())
}

func TestContextCancelled(t *testing.T) {
	p := New(time.Hour, 60, 10)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = p.Until(ctx, "task-1", func(context.Context, string) (Check, error) {
			calls++
			return Check{Status: StatusPending}, nil
		})
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop on cancellation")
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestObserveLabels(t *testing.T) {
	p, _ := newTestPoller(60)
	var labels []string
	p.Observe = func(r string) { labels = append(labels, r) }

	calls := 0
	_, _ = p.Until(context.Background(), "task-1", func(context.Context, string) (Check, error) {
		calls++
		switch calls {
		case 1:
			return Check{}, errors.New("x")
		case 2:
			return Check{Status: StatusPending}, nil
		}
		return Check{Status: StatusComplete, AudioURL: "u"}, nil
	})
	assert.Equal(t, []string{"error", "pending", "complete"}, labels)
}
