package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/stockhub-client/pkg/queue"
)

// Prometheus metrics for job polling.
var (
	jobPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockhub_job_polls_total",
		Help: "Total job polls by observed status",
	}, []string{"status"})

	jobOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockhub_job_outcomes_total",
		Help: "Total awaited submissions by outcome",
	}, []string{"outcome"}) // immediate, done, failed, timeout, error

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockhub_job_duration_seconds",
		Help:    "Time from acceptance to a terminal job state",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"outcome"})
)

// Default polling parameters.
const (
	DefaultInterval = time.Second
	DefaultTimeout  = 60 * time.Second
)

// SubmitFunc submits work to the backend.
type SubmitFunc func(ctx context.Context) (Submission, error)

// PollFunc fetches the current state of a job.
type PollFunc func(ctx context.Context, jobID string) (Job, error)

// PollOptions controls one polling session.
type PollOptions struct {
	// Timeout is the local deadline measured from acceptance.
	Timeout time.Duration

	// Interval is the gap between polls.
	Interval time.Duration

	// OnStatus, if set, observes every polled job including non-terminal ones.
	OnStatus func(Job)
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	return o
}

// Poller drives submit -> accepted -> poll -> terminal. The submission and
// every poll run through the shared request queue.
type Poller struct {
	queue  *queue.Queue
	logger zerolog.Logger
}

// NewPoller creates a poller issuing requests through q.
func NewPoller(q *queue.Queue) *Poller {
	if q == nil {
		panic("queue cannot be nil")
	}
	return &Poller{
		queue:  q,
		logger: log.With().Str("component", "jobs").Logger(),
	}
}

// SetLogger replaces the poller logger.
func (p *Poller) SetLogger(logger zerolog.Logger) {
	p.logger = logger
}

// SubmitAndAwait submits work and returns its result, polling if the backend
// accepted it as a job.
//
// Errors:
//   - a submit error is returned as-is and polling never starts
//   - a poll error is returned wrapped with the job ID
//   - *FailedError when the backend reports the job failed
//   - *TimeoutError when opts.Timeout elapses without a terminal state
//   - ErrMalformed for responses of unknown shape
//
// SubmitAndAwait returns within opts.Timeout plus one interval of acceptance
// for a job that never terminates.
func (p *Poller) SubmitAndAwait(ctx context.Context, submit SubmitFunc, poll PollFunc, opts PollOptions) (json.RawMessage, error) {
	opts = opts.withDefaults()

	sub, err := queue.Enqueue(ctx, p.queue, func(ctx context.Context) (Submission, error) {
		return submit(ctx)
	})
	if err != nil {
		jobOutcomesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if err := sub.Validate(); err != nil {
		jobOutcomesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if !sub.IsAccepted() {
		jobOutcomesTotal.WithLabelValues("immediate").Inc()
		return sub.Result, nil
	}

	return p.await(ctx, sub.JobID, poll, opts)
}

func (p *Poller) await(ctx context.Context, jobID string, poll PollFunc, opts PollOptions) (json.RawMessage, error) {
	start := time.Now()
	logger := p.logger.With().Str("job_id", jobID).Logger()
	logger.Debug().Dur("timeout", opts.Timeout).Dur("interval", opts.Interval).Msg("Job accepted, polling")

	// Hard bound on the session, covering a poll that never returns.
	loopCtx, cancel := context.WithTimeout(ctx, opts.Timeout+opts.Interval)
	defer cancel()

	var timer *time.Timer
	last := StatusQueued

	for {
		job, err := queue.Enqueue(loopCtx, p.queue, func(ctx context.Context) (Job, error) {
			return poll(ctx, jobID)
		})
		elapsed := time.Since(start)

		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && loopCtx.Err() != nil {
				return nil, p.timeout(logger, jobID, elapsed, last)
			}
			jobOutcomesTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("poll job %s: %w", jobID, err)
		}
		if err := job.Validate(); err != nil {
			jobOutcomesTotal.WithLabelValues("error").Inc()
			return nil, err
		}

		jobPollsTotal.WithLabelValues(string(job.Status)).Inc()
		if opts.OnStatus != nil {
			opts.OnStatus(job)
		}

		switch job.Status {
		case StatusDone:
			jobOutcomesTotal.WithLabelValues("done").Inc()
			jobDuration.WithLabelValues("done").Observe(elapsed.Seconds())
			logger.Debug().Dur("elapsed", elapsed).Msg("Job done")
			return job.Result, nil

		case StatusFailed:
			jobOutcomesTotal.WithLabelValues("failed").Inc()
			jobDuration.WithLabelValues("failed").Observe(elapsed.Seconds())
			logger.Warn().Str("error", job.Error).Dur("elapsed", elapsed).Msg("Job failed")
			return nil, &FailedError{JobID: jobID, Message: job.Error}
		}

		last = job.Status
		logger.Debug().Str("status", string(job.Status)).Dur("elapsed", elapsed).Msg("Job not finished")

		if elapsed >= opts.Timeout {
			return nil, p.timeout(logger, jobID, elapsed, last)
		}

		if timer == nil {
			timer = time.NewTimer(opts.Interval)
			defer timer.Stop()
		} else {
			timer.Reset(opts.Interval)
		}

		select {
		case <-timer.C:
		case <-loopCtx.Done():
			if ctx.Err() != nil {
				jobOutcomesTotal.WithLabelValues("error").Inc()
				return nil, ctx.Err()
			}
			return nil, p.timeout(logger, jobID, time.Since(start), last)
		}
	}
}

func (p *Poller) timeout(logger zerolog.Logger, jobID string, elapsed time.Duration, last Status) error {
	jobOutcomesTotal.WithLabelValues("timeout").Inc()
	jobDuration.WithLabelValues("timeout").Observe(elapsed.Seconds())
	logger.Warn().Dur("elapsed", elapsed).Str("status", string(last)).Msg("Gave up waiting for job")
	return &TimeoutError{JobID: jobID, Elapsed: elapsed, LastStatus: last}
}
