// Package metrics exposes the Prometheus metrics of the stockhub client.
// All metrics are defined in their respective packages (queue, cache, jobs,
// client, ratelimit, orchestrator) to maintain modularity and avoid circular
// dependencies.
//
// This package provides the scrape handler and a reference of every metric.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the stockhub client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source scraped by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler serving all registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Queue Metrics (pkg/queue):
//   - stockhub_queue_running{queue} (Gauge): Executors currently running
//   - stockhub_queue_pending{queue} (Gauge): Tasks waiting for admission
//   - stockhub_queue_wait_seconds{queue} (Histogram): Time from enqueue to admission
//   - stockhub_queue_tasks_total{queue, outcome} (Counter): Settled tasks (ok, error, withdrawn)
//
// Cache Metrics (pkg/cache):
//   - stockhub_cache_hits_total{layer} (Counter): Cache hits by layer (memory, durable)
//   - stockhub_cache_misses_total (Counter): Cache misses
//   - stockhub_cache_corrupt_entries_total (Counter): Malformed durable entries treated as misses
//   - stockhub_cache_memory_entries (Gauge): Entries held by the in-process layer
//   - stockhub_cache_errors_total{operation} (Counter): Durable store errors
//
// Job Metrics (pkg/jobs):
//   - stockhub_job_polls_total{status} (Counter): Polls by returned status
//   - stockhub_job_outcomes_total{outcome} (Counter): Submissions by outcome (immediate, done, failed, timeout, error)
//   - stockhub_job_duration_seconds{outcome} (Histogram): Time from acceptance to outcome
//
// Request Metrics (pkg/client):
//   - stockhub_requests_total{endpoint, status} (Counter): Backend requests by route and HTTP status
//   - stockhub_request_duration_seconds{endpoint} (Histogram): Request duration by route
//   - stockhub_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, auth, invalid_response)
//
// Retry Metrics (pkg/client):
//   - stockhub_retries_total{error_class} (Counter): Retry attempts by error class
//   - stockhub_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - stockhub_retry_exhausted_total{error_class} (Counter): Calls that exhausted max retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - stockhub_upstream_remaining (Gauge): Requests remaining in the upstream window
//   - stockhub_rate_limit_blocks_total (Counter): Requests blocked while the budget is exhausted
//   - stockhub_rate_limit_throttles_total (Counter): Requests throttled while the budget is low
//
// Fetch Metrics (pkg/orchestrator):
//   - stockhub_fetch_total{resource, outcome} (Counter): Fetches by resource and outcome (hit, miss, error kind)
//   - stockhub_fetch_duration_seconds{resource} (Histogram): End-to-end fetch duration
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(stockhub_cache_hits_total[5m])) /
//   (sum(rate(stockhub_cache_hits_total[5m])) + sum(rate(stockhub_cache_misses_total[5m])))
//
//   # Upstream Budget
//   stockhub_upstream_remaining < 5
//
//   # Prediction Job Timeouts
//   rate(stockhub_job_outcomes_total{outcome="timeout"}[15m])
//
//   # P95 Fetch Latency
//   histogram_quantile(0.95, rate(stockhub_fetch_duration_seconds_bucket[5m]))
