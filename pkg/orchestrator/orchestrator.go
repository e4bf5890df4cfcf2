// Package orchestrator is the single entry point for UI code. It decides
// between cache and network, routes every backend call through the shared
// request queue, resolves prediction jobs and normalizes failures into a
// small error taxonomy.
//
// Fetch flow:
//
//	key -> Tiered.Get -> hit: return
//	                  -> miss: queue -> backend [-> poll job -> derive] -> Tiered.Set -> return
//
// Identical concurrent fetches share one backend call. Errors are never
// cached.
package orchestrator

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
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/stockhub-client/pkg/cache"
	"github.com/Sternrassler/stockhub-client/pkg/client"
	"github.com/Sternrassler/stockhub-client/pkg/forecast"
	"github.com/Sternrassler/stockhub-client/pkg/jobs"
	"github.com/Sternrassler/stockhub-client/pkg/logging"
	"github.com/Sternrassler/stockhub-client/pkg/queue"
)

// Prometheus metrics for orchestrated fetches.
var (
	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockhub_fetch_total",
		Help: "Total fetches by resource and outcome (hit, miss or error kind)",
	}, []string{"resource", "outcome"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockhub_fetch_duration_seconds",
		Help:    "End-to-end fetch duration by resource",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
	}, []string{"resource"})
)

const (
	resourceSeries      = "series"
	resourcePredictions = "predictions"
	resourceTicker      = "ticker"
)

// Backend is the subset of the backend client the orchestrator uses.
type Backend interface {
	GetSeries(ctx context.Context, symbol, rangeToken string) (*client.Series, error)
	GetQuote(ctx context.Context, symbol string) (*client.Quote, error)
	SubmitPrediction(ctx context.Context, symbol string) (jobs.Submission, error)
	GetJob(ctx context.Context, jobID string) (jobs.Job, error)
	Status(ctx context.Context) (*client.BackendStatus, error)
}

// Config holds the orchestrator configuration.
type Config struct {
	// ModelVersion is embedded in prediction cache keys so bundles from an
	// older model simply miss.
	ModelVersion string

	// Roster is the list of model variants derived from each bundle; index 0
	// is the primary model.
	Roster []forecast.ModelSpec

	// PollTimeout bounds how long a prediction job is awaited.
	PollTimeout time.Duration

	// PollInterval is the gap between job polls.
	PollInterval time.Duration

	// BatchConcurrency bounds parallel snapshot fetches in FetchTickers.
	BatchConcurrency int

	// TTL is the freshness table.
	TTL TTLPolicy
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		ModelVersion:     "v1",
		Roster:           forecast.DefaultRoster,
		PollTimeout:      jobs.DefaultTimeout,
		PollInterval:     jobs.DefaultInterval,
		BatchConcurrency: 4,
		TTL:              DefaultTTLPolicy(),
	}
}

// Orchestrator composes the cache, request queue, job poller and deriver.
type Orchestrator struct {
	backend     Backend
	cache       *cache.Tiered
	queue       *queue.Queue
	poller      *jobs.Poller
	config      Config
	credentials client.Credentials
	onReauth    func()
	onJobStatus func(symbol string, job jobs.Job)
	now         func() time.Time
	group       singleflight.Group
	logger      zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCredentials sets the credential invalidated when the backend rejects it.
func WithCredentials(creds client.Credentials) Option {
	return func(o *Orchestrator) {
		o.credentials = creds
	}
}

// WithReauthenticate sets the callback fired on every reauthenticate failure.
func WithReauthenticate(fn func()) Option {
	return func(o *Orchestrator) {
		o.onReauth = fn
	}
}

// WithJobObserver sets a callback receiving every polled prediction job,
// including intermediate states and their progress.
func WithJobObserver(fn func(symbol string, job jobs.Job)) Option {
	return func(o *Orchestrator) {
		o.onJobStatus = fn
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithClock sets the time source used for the market clock and derivation.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an orchestrator. Zero config fields fall back to DefaultConfig.
func New(backend Backend, tiered *cache.Tiered, q *queue.Queue, cfg Config, opts ...Option) *Orchestrator {
	if backend == nil {
		panic("backend cannot be nil")
	}
	if tiered == nil {
		panic("cache cannot be nil")
	}
	if q == nil {
		panic("queue cannot be nil")
	}

	def := DefaultConfig()
	if cfg.ModelVersion == "" {
		cfg.ModelVersion = def.ModelVersion
	}
	if len(cfg.Roster) == 0 {
		cfg.Roster = def.Roster
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = def.BatchConcurrency
	}
	if cfg.TTL == (TTLPolicy{}) {
		cfg.TTL = def.TTL
	}

	o := &Orchestrator{
		backend: backend,
		cache:   tiered,
		queue:   q,
		poller:  jobs.NewPoller(q),
		config:  cfg,
		now:     time.Now,
		logger:  log.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.poller.SetLogger(o.logger.With().Str("component", "jobs").Logger())

	return o
}

// FetchSeries returns the price history of symbol over rangeToken.
func (o *Orchestrator) FetchSeries(ctx context.Context, symbol, rangeToken string) (*Series, error) {
	start := time.Now()
	defer observe(resourceSeries, start)

	sym := cache.NormalizeSymbol(symbol)
	if sym == "" {
		return nil, o.reject(resourceSeries, invalidRequest("symbol is required"))
	}
	r, ok := ParseRange(rangeToken)
	if !ok {
		return nil, o.reject(resourceSeries, invalidRequest("unknown range %q", rangeToken))
	}

	key := cache.SeriesKey(sym, string(r)).String()
	logger := o.requestLogger(resourceSeries, sym).With().Str("range", string(r)).Logger()

	var cached Series
	if o.lookup(ctx, logger, resourceSeries, key, &cached) {
		cached.Cached = true
		return &cached, nil
	}

	v, err := o.coalesce(ctx, key, func(ctx context.Context) (any, error) {
		resp, err := queue.Enqueue(ctx, o.queue, func(ctx context.Context) (*client.Series, error) {
			return o.backend.GetSeries(ctx, sym, string(r))
		})
		if err != nil {
			return nil, err
		}

		series := &Series{Symbol: sym, Range: r, Points: resp.Points}
		o.store(ctx, logger, key, series, o.config.TTL.Series(r, IsMarketOpen(o.now())))
		return series, nil
	})
	if err != nil {
		return nil, o.fail(logger, resourceSeries, err)
	}

	series := *v.(*Series)
	logger.Info().Int("points", len(series.Points)).Dur("elapsed", time.Since(start)).Msg("Series fetched")
	return &series, nil
}

// FetchPredictions returns the model comparison for symbol. The backend
// forecast bundle is cached; model variants are re-derived on every call.
func (o *Orchestrator) FetchPredictions(ctx context.Context, symbol string) (*Predictions, error) {
	start := time.Now()
	defer observe(resourcePredictions, start)

	sym := cache.NormalizeSymbol(symbol)
	if sym == "" {
		return nil, o.reject(resourcePredictions, invalidRequest("symbol is required"))
	}

	key := cache.PredictionsKey(sym, o.config.ModelVersion).String()
	logger := o.requestLogger(resourcePredictions, sym)

	var cached forecast.Bundle
	if o.lookup(ctx, logger, resourcePredictions, key, &cached) {
		if err := cached.Validate(); err == nil {
			p := o.derive(sym, &cached)
			p.Cached = true
			return p, nil
		}
		// Written by an incompatible build; refetch.
		logger.Warn().Str("key", key).Msg("Cached forecast bundle invalid, refetching")
	}

	v, err := o.coalesce(ctx, key, func(ctx context.Context) (any, error) {
		raw, err := o.poller.SubmitAndAwait(ctx,
			func(ctx context.Context) (jobs.Submission, error) {
				return o.backend.SubmitPrediction(ctx, sym)
			},
			o.backend.GetJob,
			jobs.PollOptions{
				Timeout:  o.config.PollTimeout,
				Interval: o.config.PollInterval,
				OnStatus: func(job jobs.Job) {
					logger.Debug().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("Prediction job polled")
					if o.onJobStatus != nil {
						o.onJobStatus(sym, job)
					}
				},
			},
		)
		if err != nil {
			return nil, err
		}

		var bundle forecast.Bundle
		if err := json.Unmarshal(raw, &bundle); err != nil {
			return nil, fmt.Errorf("%w: %v", forecast.ErrInvalidBundle, err)
		}
		if err := bundle.Validate(); err != nil {
			return nil, err
		}

		o.store(ctx, logger, key, &bundle, o.config.TTL.Predictions)
		return &bundle, nil
	})
	if err != nil {
		return nil, o.fail(logger, resourcePredictions, err)
	}

	p := o.derive(sym, v.(*forecast.Bundle))
	logger.Info().Int("models", len(p.Models)).Dur("elapsed", time.Since(start)).Msg("Predictions fetched")
	return p, nil
}

// FetchTickerSnapshot returns the current price overview of symbol.
func (o *Orchestrator) FetchTickerSnapshot(ctx context.Context, symbol string) (*TickerSnapshot, error) {
	start := time.Now()
	defer observe(resourceTicker, start)

	sym := cache.NormalizeSymbol(symbol)
	if sym == "" {
		return nil, o.reject(resourceTicker, invalidRequest("symbol is required"))
	}

	key := cache.TickerKey(sym).String()
	logger := o.requestLogger(resourceTicker, sym)

	var cached TickerSnapshot
	if o.lookup(ctx, logger, resourceTicker, key, &cached) {
		cached.Cached = true
		return &cached, nil
	}

	v, err := o.coalesce(ctx, key, func(ctx context.Context) (any, error) {
		quote, err := queue.Enqueue(ctx, o.queue, func(ctx context.Context) (*client.Quote, error) {
			return o.backend.GetQuote(ctx, sym)
		})
		if err != nil {
			return nil, err
		}

		snap := newSnapshot(sym, quote)
		o.store(ctx, logger, key, snap, o.config.TTL.Intraday(IsMarketOpen(o.now())))
		return snap, nil
	})
	if err != nil {
		return nil, o.fail(logger, resourceTicker, err)
	}

	snap := *v.(*TickerSnapshot)
	logger.Info().Float64("price", snap.Price).Dur("elapsed", time.Since(start)).Msg("Ticker fetched")
	return &snap, nil
}

// Invalidate removes every cached resource of symbol.
func (o *Orchestrator) Invalidate(ctx context.Context, symbol string) error {
	sym := cache.NormalizeSymbol(symbol)
	if sym == "" {
		return invalidRequest("symbol is required")
	}

	keys := make([]string, 0, len(Ranges)+2)
	for _, r := range Ranges {
		keys = append(keys, cache.SeriesKey(sym, string(r)).String())
	}
	keys = append(keys,
		cache.TickerKey(sym).String(),
		cache.PredictionsKey(sym, o.config.ModelVersion).String(),
	)

	if err := o.cache.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("invalidate %s: %w", sym, err)
	}
	o.logger.Info().Str("symbol", sym).Int("keys", len(keys)).Msg("Cache invalidated")
	return nil
}

// Health pings the durable cache and the backend.
func (o *Orchestrator) Health(ctx context.Context) *Health {
	h := &Health{Cache: "ok", Backend: "ok", Queue: o.queue.Stats()}

	if err := o.cache.Ping(ctx); err != nil {
		h.Cache = "error: " + err.Error()
	}

	status, err := queue.Enqueue(ctx, o.queue, o.backend.Status)
	switch {
	case err != nil:
		h.Backend = "error: " + err.Error()
	case !status.Healthy():
		h.Backend = fmt.Sprintf("degraded: redis=%s queue=%s", status.Redis, status.Queue)
	}

	h.Healthy = h.Cache == "ok" && h.Backend == "ok"
	return h
}

// derive expands bundle into the roster. Derivation is deterministic, so a
// cached bundle always yields the same variants.
func (o *Orchestrator) derive(symbol string, bundle *forecast.Bundle) *Predictions {
	return &Predictions{
		Symbol:         symbol,
		ModelVersion:   o.config.ModelVersion,
		Accuracy:       bundle.Accuracy,
		Models:         forecast.Derive(bundle, o.config.Roster, forecast.Options{Symbol: symbol, AsOf: o.now()}),
		HistoricalData: bundle.HistoricalData,
	}
}

func newSnapshot(symbol string, q *client.Quote) *TickerSnapshot {
	snap := &TickerSnapshot{
		Symbol:         symbol,
		Price:          q.Price,
		PreviousClose:  q.PreviousClose,
		HistoricalData: q.HistoricalData,
	}
	if q.PreviousClose > 0 {
		snap.Change = q.Price - q.PreviousClose
		snap.ChangePercent = snap.Change / q.PreviousClose * 100
	}
	return snap
}

// coalesce runs fn once per key among concurrent callers. fn runs detached
// from the caller's cancellation; a caller that gives up stops waiting but
// the fetch completes and is cached.
func (o *Orchestrator) coalesce(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	ch := o.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Shared {
			o.logger.Debug().Str("key", key).Msg("Shared in-flight fetch")
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lookup reads key into dest. Durable-layer failures are logged and treated
// as a miss.
func (o *Orchestrator) lookup(ctx context.Context, logger zerolog.Logger, resource, key string, dest any) bool {
	err := o.cache.Get(ctx, key, dest)
	switch {
	case err == nil:
		fetchTotal.WithLabelValues(resource, "hit").Inc()
		logger.Debug().Str("key", key).Bool("cache_hit", true).Msg("Served from cache")
		return true
	case errors.Is(err, cache.ErrCacheMiss):
		logger.Debug().Str("key", key).Bool("cache_hit", false).Msg("Cache miss")
	default:
		logger.Warn().Err(err).Str("key", key).Msg("Cache read failed, fetching from backend")
	}
	fetchTotal.WithLabelValues(resource, "miss").Inc()
	return false
}

// store writes value under key. A failed write is logged; the fetched value
// is still returned to the caller.
func (o *Orchestrator) store(ctx context.Context, logger zerolog.Logger, key string, value any, ttl time.Duration) {
	if err := o.cache.Set(ctx, key, value, ttl); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Failed to cache fetched value")
		return
	}
	logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("Cached fetched value")
}

// fail classifies err, fires the reauthenticate side effects and records it.
func (o *Orchestrator) fail(logger zerolog.Logger, resource string, err error) *Error {
	e := classify(err)

	if e.Kind == KindReauthenticate {
		if o.credentials != nil {
			o.credentials.Invalidate()
		}
		if o.onReauth != nil {
			o.onReauth()
		}
	}

	fetchTotal.WithLabelValues(resource, string(e.Kind)).Inc()
	logger.Error().Err(err).Str("error_kind", string(e.Kind)).Msg("Fetch failed")
	return e
}

func (o *Orchestrator) reject(resource string, e *Error) *Error {
	fetchTotal.WithLabelValues(resource, string(e.Kind)).Inc()
	return e
}

func (o *Orchestrator) requestLogger(resource, symbol string) zerolog.Logger {
	return logging.ForRequest(o.logger, resource, symbol)
}

func observe(resource string, start time.Time) {
	fetchDuration.WithLabelValues(resource).Observe(time.Since(start).Seconds())
}
