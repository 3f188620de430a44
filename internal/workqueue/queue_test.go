package workqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/metrics"
)

func newTestQueue(t *testing.T, size int, opts ...Option) *Queue {
	t.Helper()
	q := New(size, opts...)
	t.Cleanup(func() {
		q.Shutdown()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, q.AwaitTermination(ctx))
	})
	return q
}

func TestNew_DefaultSize(t *testing.T) {
	assert.Equal(t, DefaultSize, newTestQueue(t, 0).Size())
	assert.Equal(t, DefaultSize, newTestQueue(t, -3).Size())
	assert.Equal(t, 3, newTestQueue(t, 3).Size())
}

func TestQueue_AwaitCompletion_CountsRecursiveTasks(t *testing.T) {
	q := newTestQueue(t, 4)
	const roots, fanout = 20, 5

	var mu sync.Mutex
	runs := make(map[[2]int]int)
	record := func(root, child int) {
		mu.Lock()
		runs[[2]int{root, child}]++
		mu.Unlock()
	}

	for r := 0; r < roots; r++ {
		q.Submit(func(ctx context.Context) error {
			record(r, -1)
			// Each root submits r%fanout children, some of which submit again.
			for c := 0; c < r%fanout; c++ {
				q.Submit(func(ctx context.Context) error {
					time.Sleep(time.Millisecond)
					record(r, c)
					if c == 0 {
						q.Submit(func(ctx context.Context) error {
							record(r, 100)
							return nil
						})
					}
					return nil
				})
			}
			return nil
		})
	}

	require.NoError(t, q.AwaitCompletion(context.Background()))

	expected := 0
	for r := 0; r < roots; r++ {
		expected++
		n := r % fanout
		expected += n
		if n > 0 {
			expected++
		}
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, runs, expected)
	for key, count := range runs {
		assert.Equal(t, 1, count, "task %v ran %d times", key, count)
	}
	assert.Zero(t, q.Pending())
}

func TestQueue_AwaitCompletion_Repeatable(t *testing.T) {
	q := newTestQueue(t, 2)
	ctx := context.Background()

	require.NoError(t, q.AwaitCompletion(ctx))

	var ran atomic.Int32
	for round := 0; round < 3; round++ {
		for i := 0; i < 10; i++ {
			q.Submit(func(ctx context.Context) error {
				ran.Add(1)
				return nil
			})
		}
		require.NoError(t, q.AwaitCompletion(ctx))
		assert.Equal(t, int32((round+1)*10), ran.Load())
	}
}

func TestQueue_AwaitCompletion_ConcurrentWaiters(t *testing.T) {
	q := newTestQueue(t, 3)
	release := make(chan struct{})
	var ran atomic.Int32
	for i := 0; i < 6; i++ {
		q.Submit(func(ctx context.Context) error {
			<-release
			ran.Add(1)
			return nil
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, q.AwaitCompletion(context.Background()))
			assert.Equal(t, int32(6), ran.Load())
		}()
	}
	close(release)
	wg.Wait()
}

func TestQueue_FailingTasksDoNotStopWorkers(t *testing.T) {
	var mu sync.Mutex
	var reported []error
	q := newTestQueue(t, 2, WithErrorHandler(func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}))

	boom := errors.New("boom")
	var ok atomic.Int32
	for i := 0; i < 30; i++ {
		switch i % 3 {
		case 0:
			q.Submit(func(ctx context.Context) error { return boom })
		case 1:
			q.Submit(func(ctx context.Context) error { panic("kaboom") })
		default:
			q.Submit(func(ctx context.Context) error {
				ok.Add(1)
				return nil
			})
		}
	}
	require.NoError(t, q.AwaitCompletion(context.Background()))

	assert.Equal(t, int32(10), ok.Load())
	assert.Equal(t, int64(20), q.Failures())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 20)

	var errCount, panicCount int
	for _, err := range reported {
		assert.ErrorIs(t, err, apperrors.ErrTaskFailed)
		var taskErr *TaskError
		require.True(t, errors.As(err, &taskErr))
		if taskErr.Panic != nil {
			panicCount++
		} else {
			assert.ErrorIs(t, err, boom)
			errCount++
		}
	}
	assert.Equal(t, 10, errCount)
	assert.Equal(t, 10, panicCount)
}

func TestQueue_PanickingErrorHandlerKeepsWorkersAlive(t *testing.T) {
	q := newTestQueue(t, 2, WithErrorHandler(func(err error) {
		panic("handler: " + err.Error())
	}))

	var ok atomic.Int32
	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			q.Submit(func(ctx context.Context) error { return errors.New("fail") })
			continue
		}
		q.Submit(func(ctx context.Context) error { panic("task") })
	}
	for i := 0; i < 4; i++ {
		q.Submit(func(ctx context.Context) error {
			ok.Add(1)
			return nil
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.AwaitCompletion(ctx))
	assert.Equal(t, int64(10), q.Failures())
	assert.Equal(t, int32(4), ok.Load())
	assert.Zero(t, q.Pending())
}

func TestQueue_DrainThenShutdownLosesNothing(t *testing.T) {
	q := New(3)
	var ran atomic.Int32
	for i := 0; i < 100; i++ {
		q.Submit(func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
	}
	require.NoError(t, q.AwaitCompletion(context.Background()))
	q.Shutdown()
	require.NoError(t, q.AwaitTermination(context.Background()))
	assert.Equal(t, int32(100), ran.Load())
}

func TestQueue_ShutdownDropsQueuedTasks(t *testing.T) {
	q := New(1)
	started := make(chan struct{})
	release := make(chan struct{})
	var ran atomic.Int32

	q.Submit(func(ctx context.Context) error {
		close(started)
		<-release
		ran.Add(1)
		return nil
	})
	<-started
	for i := 0; i < 5; i++ {
		q.Submit(func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
	}
	assert.Equal(t, 6, q.Pending())

	q.Shutdown()
	assert.Equal(t, 1, q.Pending(), "only the in-flight task remains pending")
	close(release)

	require.NoError(t, q.AwaitCompletion(context.Background()))
	require.NoError(t, q.AwaitTermination(context.Background()))
	assert.Equal(t, int32(1), ran.Load(), "queued tasks must never start after shutdown")
}

func TestQueue_SubmitAfterShutdownIsIgnored(t *testing.T) {
	q := New(2)
	q.Shutdown()
	q.Shutdown()

	var ran atomic.Int32
	q.Submit(func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})
	assert.Zero(t, q.Pending())
	require.NoError(t, q.AwaitCompletion(context.Background()))
	require.NoError(t, q.AwaitTermination(context.Background()))
	assert.Zero(t, ran.Load())
}

func TestQueue_AwaitCompletion_Cancelled(t *testing.T) {
	q := newTestQueue(t, 1)
	release := make(chan struct{})
	defer close(release)
	q.Submit(func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.AwaitCompletion(ctx)
	assert.ErrorIs(t, err, apperrors.ErrInterruptedWait)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, q.Pending())
}

func TestQueue_TasksReceiveQueueContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "run-1")
	q := newTestQueue(t, 1, WithContext(ctx))

	got := make(chan any, 1)
	q.Submit(func(ctx context.Context) error {
		got <- ctx.Value(key{})
		return nil
	})
	require.NoError(t, q.AwaitCompletion(context.Background()))
	assert.Equal(t, "run-1", <-got)
}

func TestQueue_Metrics(t *testing.T) {
	m := metrics.New(nil)
	q := newTestQueue(t, 2, WithMetrics(m), WithErrorHandler(func(error) {}))

	q.Submit(func(ctx context.Context) error { return nil })
	q.Submit(func(ctx context.Context) error { return errors.New("fail") })
	q.Submit(func(ctx context.Context) error { panic("fail") })
	require.NoError(t, q.AwaitCompletion(context.Background()))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.TasksSubmittedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksCompletedTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksCompletedTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksCompletedTotal.WithLabelValues("panic")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.TasksPending))
}
