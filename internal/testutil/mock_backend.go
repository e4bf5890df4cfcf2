// Package testutil provides testing utilities for the stockhub client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock backend endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockBackend is a configurable mock prediction/market data backend.
type MockBackend struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	PathCounts        map[string]int
	LastRequestHeader http.Header
}

// NewMockBackend creates a new mock backend server.
func NewMockBackend() *MockBackend {
	mock := &MockBackend{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		PathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockBackend) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockBackend) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PathCounts = make(map[string]int)
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockBackend) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockBackend) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// SetSequence serves resps in order for path, repeating the last one.
func (m *MockBackend) SetSequence(path string, resps ...MockResponse) {
	var mu sync.Mutex
	next := 0
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := resps[next]
		if next < len(resps)-1 {
			next++
		}
		mu.Unlock()
		writeResponse(w, resp)
	})
}

// SetJobScript makes the predictions endpoint for symbol accept jobID and the
// job endpoint answer with statuses in order.
func (m *MockBackend) SetJobScript(symbol, jobID string, statuses ...MockResponse) {
	m.SetResponse("/api/predictions/"+symbol, NewAcceptedResponse(jobID))
	m.SetSequence("/api/jobs/"+jobID, statuses...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockBackend) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPathCount returns the number of requests made to path.
func (m *MockBackend) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCounts[path]
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockBackend) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// defaultHandler answers /api/status and 404s everything else.
func (m *MockBackend) defaultHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/status" {
		writeResponse(w, NewHealthyResponse(fmt.Sprintf(
			`{"time":%q,"redis":"ok","queue":"ok"}`, time.Now().UTC().Format(time.RFC3339))))
		return
	}
	writeResponse(w, MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"detail":"Not Found"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	})
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewHealthyResponse creates a standard 200 OK response with rate limit headers.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"X-RateLimit-Limit":     "100",
			"X-RateLimit-Remaining": "99",
			"X-RateLimit-Reset":     "60",
			"Content-Type":          "application/json",
		},
	}
}

// NewAcceptedResponse creates a 202 response carrying a job id.
func NewAcceptedResponse(jobID string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusAccepted,
		Body:       fmt.Sprintf(`{"job_id":%q}`, jobID),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewJobResponse creates a job poll response. result is raw JSON and is
// only included when non-empty.
func NewJobResponse(status, result string) MockResponse {
	body := fmt.Sprintf(`{"status":%q}`, status)
	if result != "" {
		body = fmt.Sprintf(`{"status":%q,"result":%s}`, status, result)
	}
	return NewHealthyResponse(body)
}

// NewJobFailedResponse creates a failed job poll response.
func NewJobFailedResponse(message string) MockResponse {
	return NewHealthyResponse(fmt.Sprintf(`{"status":"failed","error":%q}`, message))
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"detail":"Rate limited by provider"}`,
		Headers: map[string]string{
			"Retry-After":  fmt.Sprint(retryAfter),
			"Content-Type": "application/json",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"detail":"Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewUnauthorizedResponse creates a 401 response.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"detail":"Could not validate credentials"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}
