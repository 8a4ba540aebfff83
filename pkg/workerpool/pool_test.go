package workerpool_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/ventas/pkg/workerpool"
)

func TestPoolRunsEveryTask(t *testing.T) {
	pool := workerpool.New(context.Background(), 4)

	const n = 100
	var count atomic.Int64
	for i := 0; i < n; i++ {
		require.NoError(t, pool.SubmitWait(context.Background(), func(context.Context) { count.Add(1) }))
	}
	pool.Wait()

	assert.Equal(t, int64(n), count.Load())
	assert.Equal(t, int64(n), pool.Completed())
}

func TestPoolFull(t *testing.T) {
	pool := workerpool.New(context.Background(), 1)
	defer pool.Shutdown()

	blocker := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.SubmitWait(context.Background(), func(context.Context) {
		close(started)
		<-blocker
	}))
	<-started

	require.NoError(t, pool.Submit(func(context.Context) {}))
	require.NoError(t, pool.Submit(func(context.Context) {}))
	assert.ErrorIs(t, pool.Submit(func(context.Context) {}), workerpool.ErrPoolFull)

	close(blocker)
}

func TestPoolClosed(t *testing.T) {
	pool := workerpool.New(context.Background(), 2)
	pool.Shutdown()
	pool.Shutdown()

	assert.ErrorIs(t, pool.Submit(func(context.Context) {}), workerpool.ErrPoolClosed)
	assert.ErrorIs(t, pool.SubmitWait(context.Background(), func(context.Context) {}), workerpool.ErrPoolClosed)
}

func TestPoolSurvivesPanic(t *testing.T) {
	pool := workerpool.New(context.Background(), 1)

	require.NoError(t, pool.SubmitWait(context.Background(), func(context.Context) { panic("boom") }))
	ran := make(chan struct{})
	require.NoError(t, pool.SubmitWait(context.Background(), func(context.Context) { close(ran) }))

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
	pool.Wait()
	assert.Equal(t, int64(1), pool.Panics())
	assert.Equal(t, int64(2), pool.Completed())
}

func TestShutdownCancelsTasks(t *testing.T) {
	pool := workerpool.New(context.Background(), 1)

	var wg sync.WaitGroup
	wg.Add(1)
	var cancelled atomic.Bool
	require.NoError(t, pool.SubmitWait(context.Background(), func(ctx context.Context) {
		defer wg.Done()
		select {
		case <-ctx.Done():
			cancelled.Store(true)
		case <-time.After(5 * time.Second):
		}
	}))

	pool.Shutdown()
	wg.Wait()
	assert.True(t, cancelled.Load())
}

func TestSubmitWaitHonoursCallerContext(t *testing.T) {
	pool := workerpool.New(context.Background(), 1)
	defer pool.Shutdown()

	blocker := make(chan struct{})
	defer close(blocker)
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.SubmitWait(context.Background(), func(context.Context) { <-blocker }))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.SubmitWait(ctx, func(context.Context) {}), context.DeadlineExceeded)
}
