package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRejectsEmptyPool(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Name: "download", Workers: 0}, nil)
	require.EqualError(t, err, `pool "download" needs at least one worker, got 0`)
}

func TestPoolRunsStages(t *testing.T) {
	t.Parallel()

	p, err := New(Config{Name: "run-stages", Workers: 3}, zap.NewNop())
	require.NoError(t, err)
	p.Start()
	p.Start()

	var ran atomic.Int32
	for i := 0; i < 50; i++ {
		require.NoError(t, p.Submit(func(ctx context.Context) {
			if ctx.Err() == nil {
				ran.Add(1)
			}
		}))
	}
	require.Eventually(t, func() bool { return ran.Load() == 50 }, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	p, err := New(Config{Name: "bounded", Workers: 2}, nil)
	require.NoError(t, err)
	p.Start()

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func(context.Context) {
			defer wg.Done()
			n := active.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
		}))
	}
	wg.Wait()
	require.LessOrEqual(t, peak.Load(), int32(2))
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolSubmitFromStageNeverBlocks(t *testing.T) {
	t.Parallel()

	p, err := New(Config{Name: "reentrant", Workers: 1}, nil)
	require.NoError(t, err)
	p.Start()

	var ran atomic.Int32
	done := make(chan struct{})
	require.NoError(t, p.Submit(func(context.Context) {
		for i := 0; i < 100; i++ {
			assert.NoError(t, p.Submit(func(context.Context) {
				if ran.Add(1) == 100 {
					close(done)
				}
			}))
		}
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested stages did not run")
	}
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolShutdownRunsQueuedStagesCanceled(t *testing.T) {
	t.Parallel()

	p, err := New(Config{Name: "drain", Workers: 1}, nil)
	require.NoError(t, err)

	var canceled atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(func(ctx context.Context) {
			if ctx.Err() != nil {
				canceled.Add(1)
			}
		}))
	}
	require.Equal(t, 5, p.Pending())

	require.NoError(t, p.Shutdown(context.Background()))
	require.Equal(t, int32(5), canceled.Load())
	require.ErrorIs(t, p.Submit(func(context.Context) {}), ErrPoolClosed)
}

func TestPoolRecoversFromPanics(t *testing.T) {
	t.Parallel()

	p, err := New(Config{Name: "panics", Workers: 1}, nil)
	require.NoError(t, err)
	p.Start()

	done := make(chan struct{})
	require.NoError(t, p.Submit(func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive a panicking stage")
	}
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	p, err := New(Config{Name: "run", Workers: 1}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("pool did not stop after context cancel")
	}
}
