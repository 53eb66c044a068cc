package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type stateRecorder struct {
	mu     sync.Mutex
	states []float64
}

func (r *stateRecorder) BreakerState(_ string, s float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func failing(ctx context.Context, cmd redis.Cmder) error {
	err := errors.New("connection refused")
	cmd.SetErr(err)
	return err
}

func TestBreakerHook_StartsClosed(t *testing.T) {
	h := NewBreakerHook(BreakerConfig{}, testLogger(), nil)
	assert.Equal(t, gobreaker.StateClosed, h.State())

	process := h.ProcessHook(func(context.Context, redis.Cmder) error { return nil })
	require.NoError(t, process(context.Background(), redis.NewStringCmd(context.Background(), "get", "k")))
	assert.Equal(t, gobreaker.StateClosed, h.State())
}

func TestBreakerHook_OpensAndFailsFast(t *testing.T) {
	rec := &stateRecorder{}
	h := NewBreakerHook(BreakerConfig{MinRequests: 3}, testLogger(), rec)
	ctx := context.Background()

	process := h.ProcessHook(failing)
	for i := 0; i < 3; i++ {
		_ = process(ctx, redis.NewStatusCmd(ctx, "set", "k", "v"))
	}
	require.Equal(t, gobreaker.StateOpen, h.State())
	assert.Equal(t, []float64{2}, rec.states)

	called := false
	process = h.ProcessHook(func(context.Context, redis.Cmder) error {
		called = true
		return nil
	})
	cmd := redis.NewStatusCmd(ctx, "set", "k", "v")
	err := process(ctx, cmd)

	assert.False(t, called)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ErrorIs(t, cmd.Err(), gobreaker.ErrOpenState)
}

func TestBreakerHook_NilReplyIsSuccess(t *testing.T) {
	h := NewBreakerHook(BreakerConfig{MinRequests: 2}, testLogger(), nil)
	ctx := context.Background()

	process := h.ProcessHook(func(_ context.Context, cmd redis.Cmder) error {
		cmd.SetErr(redis.Nil)
		return redis.Nil
	})
	for i := 0; i < 5; i++ {
		err := process(ctx, redis.NewStringCmd(ctx, "get", "missing"))
		assert.ErrorIs(t, err, redis.Nil)
	}
	assert.Equal(t, gobreaker.StateClosed, h.State())
}

func TestBreakerHook_RecoversThroughHalfOpen(t *testing.T) {
	rec := &stateRecorder{}
	h := NewBreakerHook(BreakerConfig{MinRequests: 2, OpenTimeout: 50 * time.Millisecond}, testLogger(), rec)
	ctx := context.Background()

	fail := h.ProcessPipelineHook(func(context.Context, []redis.Cmder) error { return errors.New("timeout") })
	cmds := []redis.Cmder{redis.NewStatusCmd(ctx, "set", "k", "v"), redis.NewIntCmd(ctx, "publish", "c", "v")}
	for i := 0; i < 2; i++ {
		_ = fail(ctx, cmds)
	}
	require.Equal(t, gobreaker.StateOpen, h.State())

	err := fail(ctx, cmds)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	for _, c := range cmds {
		assert.ErrorIs(t, c.Err(), gobreaker.ErrOpenState)
	}

	time.Sleep(80 * time.Millisecond)
	ok := h.ProcessPipelineHook(func(context.Context, []redis.Cmder) error { return nil })
	require.NoError(t, ok(ctx, cmds))
	assert.Equal(t, gobreaker.StateClosed, h.State())
	assert.Equal(t, []float64{2, 1, 0}, rec.states)
}

func TestStateValue(t *testing.T) {
	assert.Equal(t, 0.0, stateValue(gobreaker.StateClosed))
	assert.Equal(t, 1.0, stateValue(gobreaker.StateHalfOpen))
	assert.Equal(t, 2.0, stateValue(gobreaker.StateOpen))
}
