package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsTasks(t *testing.T) {
	logger := zerolog.Nop()
	p := NewPool("test", 3, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	var ran int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.SubmitWait(ctx, func(ctx context.Context) error {
			defer wg.Done()
			atomic.AddInt32(&ran, 1)
			return nil
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(10), atomic.LoadInt32(&ran))
}

func TestPool_SurvivesPanicsAndErrors(t *testing.T) {
	logger := zerolog.Nop()
	p := NewPool("test", 1, &logger)
	ctx := context.Background()
	p.Start(ctx)
	defer p.Stop()

	require.NoError(t, p.Submit(func(ctx context.Context) error { panic("boom") }))
	require.NoError(t, p.Submit(func(ctx context.Context) error { return errors.New("fail") }))

	done := make(chan struct{})
	require.NoError(t, p.SubmitWait(ctx, func(ctx context.Context) error { close(done); return nil }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panicking task")
	}
}

func TestPool_QueueFullAndStopped(t *testing.T) {
	logger := zerolog.Nop()
	p := NewPool("test", 1, &logger) // not started: nothing drains the queue

	for i := 0; i < 4; i++ {
		require.NoError(t, p.Submit(func(ctx context.Context) error { return nil }))
	}
	assert.ErrorIs(t, p.Submit(func(ctx context.Context) error { return nil }), ErrQueueFull)

	p.Stop()
	assert.ErrorIs(t, p.Submit(func(ctx context.Context) error { return nil }), ErrStopped)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, p.SubmitWait(ctx, func(ctx context.Context) error { return nil }))
	assert.Error(t, p.Submit(nil))
}
