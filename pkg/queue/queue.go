// Package queue bounds concurrent outbound calls and paces them to stay under
// an upstream rate limit.
//
// Tasks are admitted in FIFO order while fewer than MaxConcurrent executors
// are running. When an executor settles and other tasks are still waiting,
// the next admission is held back for at least DelayBetweenTasks. The queue
// never retries and never times out a task; callers that need a deadline wrap
// the executor or pass a context with one.
package queue

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Prometheus metrics for queue operations.
var (
	queueRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stockhub_queue_running",
		Help: "Number of executors currently running by queue",
	}, []string{"queue"})

	queuePending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stockhub_queue_pending",
		Help: "Number of tasks waiting for admission by queue",
	}, []string{"queue"})

	queueWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockhub_queue_wait_seconds",
		Help:    "Time a task spent waiting for admission",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"queue"})

	queueTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockhub_queue_tasks_total",
		Help: "Total tasks settled by queue and outcome",
	}, []string{"queue", "outcome"})
)

// ErrClosed is returned for tasks enqueued after Close or still waiting when
// the queue is closed.
var ErrClosed = errors.New("queue closed")

// Executor is a unit of work run by the queue.
type Executor func(ctx context.Context) error

// Config holds the queue configuration.
type Config struct {
	// Name labels the queue in logs and metrics.
	Name string

	// MaxConcurrent is the maximum number of executors running at once.
	MaxConcurrent int

	// DelayBetweenTasks is the minimum gap between an executor settling and
	// the next admission, applied only when tasks were waiting at that time.
	DelayBetweenTasks time.Duration

	// RatePerSecond optionally caps admissions per second (0 disables).
	RatePerSecond float64

	// Burst is the token bucket size used with RatePerSecond.
	Burst int
}

// DefaultConfig returns a configuration suited to a free-tier market data API.
func DefaultConfig() Config {
	return Config{
		Name:              "default",
		MaxConcurrent:     2,
		DelayBetweenTasks: 250 * time.Millisecond,
	}
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Running int
	Pending int
}

type task struct {
	ctx      context.Context
	exec     Executor
	enqueued time.Time
	done     chan error
	elem     *list.Element
}

// Queue is a FIFO admission queue with a concurrency bound and pacing.
type Queue struct {
	cfg     Config
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu        sync.Mutex
	running   int
	pending   *list.List
	notBefore time.Time
	timer     *time.Timer
	closed    bool
}

// New creates a queue. Non-positive MaxConcurrent is treated as 1.
func New(cfg Config) *Queue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.DelayBetweenTasks < 0 {
		cfg.DelayBetweenTasks = 0
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}

	q := &Queue{
		cfg:     cfg,
		pending: list.New(),
		logger:  log.With().Str("component", "queue").Str("queue", cfg.Name).Logger(),
	}

	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		q.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return q
}

// SetLogger replaces the queue logger.
func (q *Queue) SetLogger(logger zerolog.Logger) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.logger = logger.With().Str("queue", q.cfg.Name).Logger()
}

// Do enqueues exec and blocks until it has run and settled, returning its
// error. If ctx is done while the task is still waiting, the task is
// withdrawn and ctx.Err() is returned. If ctx is done after admission, Do
// stops waiting but the executor still runs to completion.
func (q *Queue) Do(ctx context.Context, exec Executor) error {
	if exec == nil {
		return errors.New("executor cannot be nil")
	}

	t := &task{
		ctx:      ctx,
		exec:     exec,
		enqueued: time.Now(),
		done:     make(chan error, 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	t.elem = q.pending.PushBack(t)
	queuePending.WithLabelValues(q.cfg.Name).Set(float64(q.pending.Len()))
	q.admitLocked()
	q.mu.Unlock()

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		q.mu.Lock()
		if t.elem != nil {
			// Still waiting for admission: withdraw it.
			q.pending.Remove(t.elem)
			t.elem = nil
			queuePending.WithLabelValues(q.cfg.Name).Set(float64(q.pending.Len()))
			q.mu.Unlock()
			queueTasksTotal.WithLabelValues(q.cfg.Name, "withdrawn").Inc()
			return ctx.Err()
		}
		q.mu.Unlock()
		return ctx.Err()
	}
}

// Enqueue runs fn through q and returns its result.
func Enqueue[T any](ctx context.Context, q *Queue, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result := make(chan T, 1)

	err := q.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result <- v
		return nil
	})
	if err != nil {
		return zero, err
	}
	return <-result, nil
}

// Stats returns the current running and pending counts.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Running: q.running, Pending: q.pending.Len()}
}

// Close rejects every waiting task with ErrClosed and stops the pacing timer.
// Running executors are left to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true

	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}

	for e := q.pending.Front(); e != nil; e = e.Next() {
		t := e.Value.(*task)
		t.elem = nil
		t.done <- ErrClosed
	}
	q.pending.Init()
	queuePending.WithLabelValues(q.cfg.Name).Set(0)
}

// admitLocked starts waiting tasks while capacity allows and the pacing
// window has passed. Caller must hold q.mu.
func (q *Queue) admitLocked() {
	for q.running < q.cfg.MaxConcurrent && q.pending.Len() > 0 && !q.closed {
		if wait := time.Until(q.notBefore); wait > 0 {
			q.scheduleLocked(wait)
			return
		}

		front := q.pending.Front()
		q.pending.Remove(front)
		t := front.Value.(*task)
		t.elem = nil
		q.running++

		queueRunning.WithLabelValues(q.cfg.Name).Set(float64(q.running))
		queuePending.WithLabelValues(q.cfg.Name).Set(float64(q.pending.Len()))
		queueWaitSeconds.WithLabelValues(q.cfg.Name).Observe(time.Since(t.enqueued).Seconds())

		q.logger.Debug().
			Int("running", q.running).
			Int("pending", q.pending.Len()).
			Dur("waited", time.Since(t.enqueued)).
			Msg("Task admitted")

		go q.run(t)
	}
}

// scheduleLocked arms the pacing timer if it is not already armed.
func (q *Queue) scheduleLocked(wait time.Duration) {
	if q.timer != nil {
		return
	}
	q.timer = time.AfterFunc(wait, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.timer = nil
		q.admitLocked()
	})
}

func (q *Queue) run(t *task) {
	// The executor outlives a caller that stops waiting.
	ctx := context.WithoutCancel(t.ctx)

	var err error
	if q.limiter != nil {
		err = q.limiter.Wait(ctx)
	}
	if err == nil {
		err = t.exec(ctx)
	}

	q.mu.Lock()
	q.running--
	queueRunning.WithLabelValues(q.cfg.Name).Set(float64(q.running))
	if q.pending.Len() > 0 {
		q.notBefore = time.Now().Add(q.cfg.DelayBetweenTasks)
	}
	q.admitLocked()
	q.mu.Unlock()

	if err != nil {
		queueTasksTotal.WithLabelValues(q.cfg.Name, "error").Inc()
	} else {
		queueTasksTotal.WithLabelValues(q.cfg.Name, "ok").Inc()
	}

	t.done <- err
}
