package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	DefaultWorkers     = 4
	DefaultQueueSize   = 256
	DefaultEnqueueWait = 5 * time.Second
)

var (
	// ErrQueueFull is returned when no worker frees a slot in time.
	ErrQueueFull = errors.New("webhook queue full")
	// ErrQueueClosed is returned after Shutdown.
	ErrQueueClosed = errors.New("webhook queue closed")
)

// Task is one unit of background reconciliation.
type Task struct {
	Kind EventKind
	ID   string
	Run  func(ctx context.Context) error
}

// TaskError reports a failed or panicking task to the observer.
type TaskError struct {
	Kind EventKind
	ID   string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("webhook task %s (%s): %v", e.Kind, e.ID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Queue is a fixed pool of workers draining a bounded task channel.
// Failures go to an error channel consumed by a logging observer, so
// nothing a task does reaches the webhook sender.
type Queue struct {
	tasks   chan Task
	errs    chan *TaskError
	workers int
	wait    time.Duration
	logger  *slog.Logger
	observe func(*TaskError)

	mu       sync.RWMutex
	closed   bool
	running  sync.WaitGroup
	watcher  sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithEnqueueWait bounds how long Enqueue waits for a free slot.
func WithEnqueueWait(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.wait = d
		}
	}
}

// WithObserver adds a callback run for every task error after it is logged.
func WithObserver(fn func(*TaskError)) QueueOption {
	return func(q *Queue) { q.observe = fn }
}

// NewQueue creates a queue. Non-positive sizes use the defaults.
func NewQueue(workers, size int, logger *slog.Logger, opts ...QueueOption) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		tasks:   make(chan Task, size),
		errs:    make(chan *TaskError, workers),
		workers: workers,
		wait:    DefaultEnqueueWait,
		logger:  logger,
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the workers and the error observer. Tasks run with ctx.
func (q *Queue) Start(ctx context.Context) {
	q.watcher.Add(1)
	go q.watch()

	for i := 0; i < q.workers; i++ {
		q.running.Add(1)
		go q.work(ctx)
	}
	q.logger.Info("webhook workers started", "workers", q.workers, "queue_size", cap(q.tasks))
}

// Enqueue hands t to the pool, waiting up to the configured bound for
// space. It fails with ErrQueueFull rather than block the request.
func (q *Queue) Enqueue(ctx context.Context, t Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- t:
		return nil
	default:
	}

	timer := time.NewTimer(q.wait)
	defer timer.Stop()
	select {
	case q.tasks <- t:
		return nil
	case <-timer.C:
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	q.stopOnce.Do(func() {
		go func() {
			q.running.Wait()
			close(q.errs)
			q.watcher.Wait()
			close(q.stopped)
		}()
	})

	select {
	case <-q.stopped:
		q.logger.Info("webhook workers stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) work(ctx context.Context) {
	defer q.running.Done()
	for t := range q.tasks {
		if err := q.run(ctx, t); err != nil {
			q.errs <- &TaskError{Kind: t.Kind, ID: t.ID, Err: err}
		}
	}
}

// run executes one task, turning a panic into an error so the worker
// survives.
func (q *Queue) run(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	start := time.Now()
	err = t.Run(ctx)
	if err == nil {
		q.logger.Debug("webhook task done",
			"kind", t.Kind,
			"task_id", t.ID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return err
}

func (q *Queue) watch() {
	defer q.watcher.Done()
	for e := range q.errs {
		q.logger.Error("webhook task failed",
			"kind", e.Kind,
			"task_id", e.ID,
			"error", e.Err,
		)
		if q.observe != nil {
			q.observe(e)
		}
	}
}
