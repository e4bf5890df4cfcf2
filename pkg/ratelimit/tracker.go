package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/stockhub-client/pkg/cache"
)

// Prometheus metrics for rate limit tracking.
var (
	upstreamRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockhub_upstream_remaining",
		Help: "Requests remaining in the current upstream rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockhub_rate_limit_blocks_total",
		Help: "Total number of requests blocked because the upstream budget is exhausted",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockhub_rate_limit_throttles_total",
		Help: "Total number of requests throttled because the upstream budget is low",
	})
)

// ErrBlocked is returned by Allow when the upstream budget is exhausted.
var ErrBlocked = errors.New("request blocked: upstream rate limit exhausted")

// DefaultThrottleDelay is the pause applied to each request in the warning band.
const DefaultThrottleDelay = time.Second

// DefaultMaxStateAge is how long an observed budget is trusted without a
// fresh response confirming it.
const DefaultMaxStateAge = 5 * time.Minute

// Tracker monitors the upstream rate limit and gates requests.
type Tracker struct {
	store    cache.Store
	logger   zerolog.Logger
	now      func() time.Time
	throttle time.Duration
	maxAge   time.Duration

	mu    sync.Mutex
	local *State
}

// NewTracker creates a tracker. store may be nil, in which case state is
// kept in-process only.
func NewTracker(store cache.Store, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:    store,
		logger:   logger,
		now:      time.Now,
		throttle: DefaultThrottleDelay,
		maxAge:   DefaultMaxStateAge,
	}
}

// SetMaxStateAge sets how long an observed budget is trusted.
func (t *Tracker) SetMaxStateAge(d time.Duration) {
	t.maxAge = d
}

// SetThrottleDelay sets the pause applied in the warning band.
func (t *Tracker) SetThrottleDelay(d time.Duration) {
	t.throttle = d
}

// GetState returns the current state. Returns a default healthy state when
// nothing has been observed, the observed window has reset, or a budget that
// is not exhausted has gone unconfirmed for longer than the max state age.
// An exhausted budget holds until its reset.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	now := t.now()

	state, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil || state.IsExpired(now) {
		return defaultState(now), nil
	}
	if !state.NeedsCriticalBlock() && t.maxAge > 0 && state.IsStale(now, t.maxAge) {
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Time("last_update", state.LastUpdate).
			Msg("Ignoring stale rate limit state")
		return defaultState(now), nil
	}
	state.UpdateHealth()
	return state, nil
}

func (t *Tracker) load(ctx context.Context) (*State, error) {
	if t.store == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.local == nil {
			return nil, nil
		}
		s := *t.local
		return &s, nil
	}

	data, err := t.store.Get(ctx, StoreKey)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		t.logger.Warn().Err(err).Msg("Discarding malformed rate limit state")
		return nil, nil
	}
	return &state, nil
}

// UpdateFromHeaders records the budget advertised by a response. A 429 with
// Retry-After exhausts the budget until the given time.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, statusCode int, headers http.Header) error {
	now := t.now()

	var state *State
	switch {
	case statusCode == http.StatusTooManyRequests:
		wait := parseRetryAfter(headers.Get("Retry-After"), now)
		if wait <= 0 {
			wait = 60 * time.Second
		}
		state = &State{Remaining: 0, ResetAt: now.Add(wait), LastUpdate: now}

	case headers.Get("X-RateLimit-Remaining") != "":
		remain, err := strconv.Atoi(headers.Get("X-RateLimit-Remaining"))
		if err != nil {
			return fmt.Errorf("parse X-RateLimit-Remaining header: %w", err)
		}
		resetStr := headers.Get("X-RateLimit-Reset")
		if resetStr == "" {
			return fmt.Errorf("X-RateLimit-Reset header missing")
		}
		resetSeconds, err := strconv.Atoi(resetStr)
		if err != nil {
			return fmt.Errorf("parse X-RateLimit-Reset header: %w", err)
		}
		limit, _ := strconv.Atoi(headers.Get("X-RateLimit-Limit"))

		state = &State{
			Limit:      limit,
			Remaining:  remain,
			ResetAt:    now.Add(time.Duration(resetSeconds) * time.Second),
			LastUpdate: now,
		}

	default:
		// Header not present - the upstream does not advertise a budget here
		return nil
	}
	state.UpdateHealth()

	if err := t.save(ctx, state, now); err != nil {
		return err
	}

	upstreamRemaining.Set(float64(state.Remaining))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Upstream rate limit CRITICAL - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Upstream rate limit WARNING - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy).
			Msg("Upstream rate limit state updated")
	}

	return nil
}

func (t *Tracker) save(ctx context.Context, state *State, now time.Time) error {
	t.mu.Lock()
	s := *state
	t.local = &s
	t.mu.Unlock()

	if t.store == nil {
		return nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal rate limit state: %w", err)
	}
	ttl := state.TimeUntilReset(now)
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := t.store.Set(ctx, StoreKey, data, ttl); err != nil {
		return fmt.Errorf("store rate limit state: %w", err)
	}
	return nil
}

// Allow gates one request. It returns an error wrapping ErrBlocked while the
// budget is exhausted and pauses in the warning band. A state lookup failure
// is logged and the request allowed.
func (t *Tracker) Allow(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Rate limit state unavailable, allowing request")
		return nil
	}

	if state.NeedsCriticalBlock() {
		wait := state.TimeUntilReset(t.now())
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("wait_duration", wait).
			Msg("Upstream rate limit exhausted - blocking request")
		rateLimitBlocksTotal.Inc()
		return fmt.Errorf("%w (resets in %v)", ErrBlocked, wait.Round(time.Second))
	}

	if state.NeedsThrottling() && t.throttle > 0 {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("Upstream rate limit low - throttling request")
		rateLimitThrottlesTotal.Inc()

		timer := time.NewTimer(t.throttle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return at.Sub(now)
	}
	return 0
}
