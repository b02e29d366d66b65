package sweep

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingSweeper struct {
	calls atomic.Int32
}

func (s *countingSweeper) SweepExpired() int {
	s.calls.Add(1)
	return 1
}

func TestSessionSweepWorker_SweepsOnTick(t *testing.T) {
	sweeper := &countingSweeper{}
	w := NewSessionSweepWorker(sweeper, 10*time.Millisecond, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestSessionSweepWorker_ContextCancel(t *testing.T) {
	w := NewSessionSweepWorker(&countingSweeper{}, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSessionSweepWorker_DefaultInterval(t *testing.T) {
	w := NewSessionSweepWorker(&countingSweeper{}, 0, zap.NewNop())
	assert.Equal(t, defaultInterval, w.interval)
	assert.Equal(t, "session-sweep", w.Name())
}
