// Package workqueue runs submitted tasks on a fixed pool of background
// workers and tracks how many tasks are still outstanding, so a caller can
// wait for quiescence even when tasks submit further tasks.
package workqueue

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	apperrors "github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/metrics"
)

// DefaultSize is the number of workers used when none is specified.
const DefaultSize = 5

// Task is a deferred unit of work.
type Task func(ctx context.Context) error

// ErrorHandler receives every task failure, including recovered panics.
type ErrorHandler func(err error)

// TaskError reports a task that returned an error or panicked.
type TaskError struct {
	Worker int
	Err    error
	Panic  any
}

func (e *TaskError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("%s: worker %d: panic: %v", apperrors.ErrTaskFailed, e.Worker, e.Panic)
	}
	return fmt.Sprintf("%s: worker %d: %v", apperrors.ErrTaskFailed, e.Worker, e.Err)
}

func (e *TaskError) Unwrap() []error {
	if e.Err == nil {
		return []error{apperrors.ErrTaskFailed}
	}
	return []error{apperrors.ErrTaskFailed, e.Err}
}

// Queue is a FIFO of tasks consumed by a fixed set of workers.
type Queue struct {
	mu       sync.Mutex
	work     *sync.Cond
	idle     *sync.Cond
	tasks    *list.List
	pending  int
	shutdown bool

	size     int
	ctx      context.Context
	workers  sync.WaitGroup
	exited   chan struct{}
	failures atomic.Int64

	onError ErrorHandler
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithErrorHandler replaces the default handler, which logs the failure.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(q *Queue) {
		q.onError = fn
	}
}

// WithMetrics records queue activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

// WithContext sets the context handed to every task. Shutdown does not
// cancel it; in-flight tasks are never interrupted by the queue.
func WithContext(ctx context.Context) Option {
	return func(q *Queue) {
		q.ctx = ctx
	}
}

// New starts a queue with size workers; size <= 0 means DefaultSize.
func New(size int, opts ...Option) *Queue {
	if size <= 0 {
		size = DefaultSize
	}
	q := &Queue{
		tasks:  list.New(),
		size:   size,
		ctx:    context.Background(),
		exited: make(chan struct{}),
		logger: slog.Default().With("component", "workqueue"),
	}
	q.work = sync.NewCond(&q.mu)
	q.idle = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	if q.onError == nil {
		q.onError = func(err error) {
			q.logger.Error("task failed", "error", err)
		}
	}

	q.workers.Add(size)
	for i := 0; i < size; i++ {
		go q.worker(i)
	}
	go func() {
		q.workers.Wait()
		close(q.exited)
	}()
	q.logger.Debug("work queue started", "workers", size)
	return q
}

// Size returns the number of workers, fixed for the life of the queue.
func (q *Queue) Size() int {
	return q.size
}

// Pending returns the number of submitted tasks that have not finished.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Failures returns how many tasks have failed so far.
func (q *Queue) Failures() int64 {
	return q.failures.Load()
}

// Submit appends task to the queue and wakes one idle worker. It never
// blocks. After Shutdown the task is dropped without being counted.
func (q *Queue) Submit(task Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.shutdown {
		q.logger.Debug("task submitted after shutdown, dropping")
		return
	}
	q.tasks.PushBack(task)
	q.pending++
	if q.metrics != nil {
		q.metrics.TasksSubmittedTotal.Inc()
		q.metrics.TasksPending.Set(float64(q.pending))
	}
	q.work.Signal()
}

// AwaitCompletion blocks until every submitted task, including tasks
// submitted by other tasks, has finished. It may be called repeatedly and
// concurrently with Submit.
func (q *Queue) AwaitCompletion(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return apperrors.Interrupted("awaiting task completion", err)
	}
	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			q.mu.Lock()
			q.idle.Broadcast()
			q.mu.Unlock()
		})
		defer stop()
	}
	for q.pending > 0 {
		if err := ctx.Err(); err != nil {
			return apperrors.Interrupted("awaiting task completion", err)
		}
		q.logger.Debug("awaiting pending tasks", "pending", q.pending)
		q.idle.Wait()
	}
	return nil
}

// Shutdown stops the workers. Tasks already running finish normally; tasks
// still queued are discarded and never started. Call AwaitCompletion first
// for a full drain.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.shutdown {
		return
	}
	q.shutdown = true
	dropped := q.tasks.Len()
	q.tasks.Init()
	q.pending -= dropped
	if q.metrics != nil {
		q.metrics.TasksPending.Set(float64(q.pending))
	}
	if q.pending == 0 {
		q.idle.Broadcast()
	}
	q.work.Broadcast()
	q.logger.Debug("work queue shut down", "dropped", dropped, "in_flight", q.pending)
}

// AwaitTermination blocks until every worker has exited after Shutdown.
func (q *Queue) AwaitTermination(ctx context.Context) error {
	select {
	case <-q.exited:
		return nil
	case <-ctx.Done():
		return apperrors.Interrupted("awaiting worker termination", ctx.Err())
	}
}

func (q *Queue) worker(id int) {
	defer q.workers.Done()
	for {
		q.mu.Lock()
		for q.tasks.Len() == 0 && !q.shutdown {
			q.work.Wait()
		}
		if q.shutdown {
			q.mu.Unlock()
			return
		}
		task := q.tasks.Remove(q.tasks.Front()).(Task)
		q.mu.Unlock()

		status := q.run(id, task)
		q.finish(status)
	}
}

// run executes one task outside the queue lock and reports its outcome.
func (q *Queue) run(id int, task Task) (status string) {
	if q.metrics != nil {
		q.metrics.WorkersBusy.Inc()
		defer q.metrics.WorkersBusy.Dec()
	}
	defer func() {
		if r := recover(); r != nil {
			q.fail(&TaskError{Worker: id, Panic: r})
			status = "panic"
		}
	}()
	if err := task(q.ctx); err != nil {
		q.fail(&TaskError{Worker: id, Err: err})
		return "error"
	}
	return "ok"
}

// fail reports err to the error handler. A panicking handler is logged and
// otherwise ignored so the worker still finishes its task.
func (q *Queue) fail(err *TaskError) {
	q.failures.Add(1)
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("error handler panicked", "error", err, "panic", r)
		}
	}()
	q.onError(err)
}

func (q *Queue) finish(status string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending--
	if q.metrics != nil {
		q.metrics.TasksCompletedTotal.WithLabelValues(status).Inc()
		q.metrics.TasksPending.Set(float64(q.pending))
	}
	if q.pending == 0 {
		q.idle.Broadcast()
	}
}
