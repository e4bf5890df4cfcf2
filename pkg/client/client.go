// Package client provides the HTTP transport for the prediction and market
// data backend with error classification, credentials and upstream rate
// limit gating.
//
// The client never caches and never retries on its own. Caching lives in the
// orchestrator; retries are opt-in through RetryWithBackoff.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/stockhub-client/pkg/ratelimit"
)

// Prometheus metrics for backend client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockhub_requests_total",
		Help: "Total backend requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockhub_request_duration_seconds",
		Help:    "Backend request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockhub_errors_total",
		Help: "Total backend errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockhub_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockhub_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockhub_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 8 << 20

// Client is the backend HTTP client.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	credentials Credentials
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the backend, e.g. "http://localhost:8000"
	BaseURL string

	// UserAgent header sent with every request
	UserAgent string

	// Timeout per HTTP request
	Timeout time.Duration

	// Credentials attached as a bearer token (optional)
	Credentials Credentials

	// RateLimiter gates requests on the upstream budget (optional)
	RateLimiter *ratelimit.Tracker
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "stockhub-client/1.0",
		Timeout:   30 * time.Second,
	}
}

// New creates a new backend client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "stockhub-client/1.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     base,
		credentials: cfg.Credentials,
		rateLimiter: cfg.RateLimiter,
		config:      cfg,
		logger:      log.With().Str("component", "backend-client").Logger(),
	}, nil
}

// response is a fully read backend response.
type response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// get performs a GET request with rate limit gating, credentials and error
// classification. endpoint is the route template used for metrics and
// errors. Any 2xx is returned; everything else becomes an *APIError.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values) (*response, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check upstream budget
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Allow(ctx); err != nil {
			requestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			if errors.Is(err, ratelimit.ErrBlocked) {
				errorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
				return nil, &APIError{
					Endpoint:   endpoint,
					ErrorClass: ErrorClassRateLimit,
					Message:    "blocked locally",
					Err:        err,
				}
			}
			return nil, err
		}
	}

	// Step 2: Build request
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	if c.credentials != nil {
		token, err := c.credentials.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("get credentials: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("url", u.Redacted()).
		Msg("Executing backend request")

	// Step 3: Execute
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &APIError{
			Endpoint:   endpoint,
			ErrorClass: ErrorClassNetwork,
			Message:    "transport failure",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		}
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	// Step 4: Update upstream budget from headers
	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.StatusCode, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	// Step 5: Classify
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errClass := classifyStatus(resp.StatusCode)
		if errClass == "" {
			errClass = ErrorClassInvalidResponse
		}
		errorsTotal.WithLabelValues(string(errClass)).Inc()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Backend request error")

		apiErr := &APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    errorMessage(resp.Status, body),
		}
		if errClass == ErrorClassAuth {
			apiErr.Err = ErrUnauthorized
		}
		return nil, apiErr
	}

	return &response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// invalid builds an invalid_response error for a 2xx body of the wrong shape.
func (c *Client) invalid(endpoint string, statusCode int, msg string, err error) error {
	errorsTotal.WithLabelValues(string(ErrorClassInvalidResponse)).Inc()
	c.logger.Warn().
		Err(err).
		Str("endpoint", endpoint).
		Int("status", statusCode).
		Msg("Backend returned malformed payload")

	if err == nil {
		err = ErrInvalidResponse
	} else {
		err = fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return &APIError{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		ErrorClass: ErrorClassInvalidResponse,
		Message:    msg,
		Err:        err,
	}
}

// SetLogger replaces the client logger.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
