package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/stockhub-client/pkg/client"
	"github.com/Sternrassler/stockhub-client/pkg/forecast"
	"github.com/Sternrassler/stockhub-client/pkg/jobs"
	"github.com/Sternrassler/stockhub-client/pkg/orchestrator"
)

type fakeService struct {
	seriesErr   error
	predErr     error
	healthy     bool
	lastRange   string
	invalidated string
	calls       int
}

func (f *fakeService) FetchSeries(ctx context.Context, symbol, rangeToken string) (*orchestrator.Series, error) {
	f.calls++
	f.lastRange = rangeToken
	if f.seriesErr != nil {
		return nil, f.seriesErr
	}
	return &orchestrator.Series{
		Symbol: strings.ToUpper(symbol),
		Range:  orchestrator.Range(rangeToken),
		Points: []forecast.PricePoint{{Date: "2026-02-27", Price: 100}},
	}, nil
}

func (f *fakeService) FetchPredictions(ctx context.Context, symbol string) (*orchestrator.Predictions, error) {
	f.calls++
	if f.predErr != nil {
		return nil, f.predErr
	}
	bundle := &forecast.Bundle{
		Baseline: forecast.Baseline{
			OneDay:  forecast.HorizonForecast{Price: 101},
			TwoDay:  forecast.HorizonForecast{Price: 102},
			OneWeek: forecast.HorizonForecast{Price: 105},
		},
		Accuracy: 80,
	}
	// No history: change percentages are NaN and must serialize as null.
	return &orchestrator.Predictions{
		Symbol: symbol,
		Models: forecast.Derive(bundle, forecast.DefaultRoster, forecast.Options{Symbol: symbol}),
	}, nil
}

func (f *fakeService) FetchTickerSnapshot(ctx context.Context, symbol string) (*orchestrator.TickerSnapshot, error) {
	f.calls++
	return &orchestrator.TickerSnapshot{Symbol: symbol, Price: 10}, nil
}

func (f *fakeService) FetchTickers(ctx context.Context, symbols []string) *orchestrator.BatchResult {
	res := &orchestrator.BatchResult{
		Snapshots: map[string]*orchestrator.TickerSnapshot{},
		Errors:    map[string]error{},
	}
	for _, s := range symbols {
		if s == "BAD" {
			res.Errors[s] = &orchestrator.Error{Kind: orchestrator.KindNetwork, Message: "Not Found"}
			continue
		}
		res.Snapshots[s] = &orchestrator.TickerSnapshot{Symbol: s, Price: 1}
	}
	return res
}

func (f *fakeService) Invalidate(ctx context.Context, symbol string) error {
	f.invalidated = symbol
	return nil
}

func (f *fakeService) Health(ctx context.Context) *orchestrator.Health {
	return &orchestrator.Health{Healthy: f.healthy, Cache: "ok", Backend: "ok"}
}

func newTestServer(svc Service, cfg Config) *Server {
	return New(svc, cfg, zerolog.Nop())
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestSeries(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(svc, Config{})

	rec := do(t, s, http.MethodGet, "/api/series/aapl?range=1M")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var got orchestrator.Series
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Symbol != "AAPL" || got.Range != "1M" {
		t.Errorf("series = %+v", got)
	}

	do(t, s, http.MethodGet, "/api/series/aapl")
	if svc.lastRange != "1D" {
		t.Errorf("default range = %q, want 1D", svc.lastRange)
	}
}

func TestPredictions_NaNAsNull(t *testing.T) {
	s := newTestServer(&fakeService{}, Config{})

	rec := do(t, s, http.MethodGet, "/api/predictions/MSFT")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"changePercent":null`) {
		t.Errorf("body should carry null change percentages: %s", rec.Body.String())
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   orchestrator.Kind
	}{
		{name: "reauthenticate", err: &orchestrator.Error{Kind: orchestrator.KindReauthenticate, Message: "credentials rejected"}, wantStatus: http.StatusUnauthorized, wantKind: orchestrator.KindReauthenticate},
		{name: "network", err: &orchestrator.Error{Kind: orchestrator.KindNetwork, Message: "transport failure"}, wantStatus: http.StatusBadGateway, wantKind: orchestrator.KindNetwork},
		{name: "job failed", err: &orchestrator.Error{Kind: orchestrator.KindJobFailed, Message: "model crashed"}, wantStatus: http.StatusBadGateway, wantKind: orchestrator.KindJobFailed},
		{name: "job timeout", err: &orchestrator.Error{Kind: orchestrator.KindJobTimeout, Message: "still running"}, wantStatus: http.StatusGatewayTimeout, wantKind: orchestrator.KindJobTimeout},
		{name: "invalid request", err: &orchestrator.Error{Kind: orchestrator.KindInvalidRequest, Message: "unknown range"}, wantStatus: http.StatusBadRequest, wantKind: orchestrator.KindInvalidRequest},
		{name: "unclassified", err: errors.New("boom"), wantStatus: http.StatusBadGateway, wantKind: orchestrator.KindNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeService{predErr: tt.err}, Config{})

			rec := do(t, s, http.MethodGet, "/api/predictions/AAPL")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", body.Kind, tt.wantKind)
			}
			if body.Message == "" {
				t.Error("message should not be empty")
			}
		})
	}
}

func TestRetryOnlyBackendFailures(t *testing.T) {
	jobFailed := &orchestrator.Error{
		Kind:    orchestrator.KindJobFailed,
		Message: "model crashed",
		Err:     &jobs.FailedError{JobID: "j", Message: "model crashed"},
	}
	svc := &fakeService{predErr: jobFailed}
	s := newTestServer(svc, Config{Retry: true})

	rec := do(t, s, http.MethodGet, "/api/predictions/AAPL")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if svc.calls != 1 {
		t.Errorf("calls = %d, want 1 (job failures are not retried)", svc.calls)
	}

	auth := &orchestrator.Error{
		Kind: orchestrator.KindReauthenticate,
		Err:  &client.APIError{ErrorClass: client.ErrorClassAuth, Err: client.ErrUnauthorized},
	}
	svc = &fakeService{seriesErr: auth}
	s = newTestServer(svc, Config{Retry: true})
	if rec := do(t, s, http.MethodGet, "/api/series/AAPL"); rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if svc.calls != 1 {
		t.Errorf("calls = %d, want 1 (auth failures are not retried)", svc.calls)
	}
}

func TestTickers(t *testing.T) {
	s := newTestServer(&fakeService{}, Config{})

	rec := do(t, s, http.MethodGet, "/api/tickers?symbols=AAPL,BAD")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body BatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Snapshots["AAPL"] == nil {
		t.Error("missing AAPL snapshot")
	}
	if body.Errors["BAD"].Kind != orchestrator.KindNetwork {
		t.Errorf("BAD error = %+v, want network", body.Errors["BAD"])
	}

	if rec := do(t, s, http.MethodGet, "/api/tickers"); rec.Code != http.StatusBadRequest {
		t.Errorf("status without symbols = %d, want 400", rec.Code)
	}
}

func TestInvalidate(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(svc, Config{})

	rec := do(t, s, http.MethodDelete, "/api/cache/TSLA")
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if svc.invalidated != "TSLA" {
		t.Errorf("invalidated = %q, want TSLA", svc.invalidated)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		healthy bool
		want    int
	}{
		{healthy: true, want: http.StatusOK},
		{healthy: false, want: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		s := newTestServer(&fakeService{healthy: tt.healthy}, Config{})
		if rec := do(t, s, http.MethodGet, "/health"); rec.Code != tt.want {
			t.Errorf("healthy=%v: status = %d, want %d", tt.healthy, rec.Code, tt.want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&fakeService{}, Config{})

	rec := do(t, s, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

type panickingService struct{ fakeService }

func (p *panickingService) FetchTickerSnapshot(ctx context.Context, symbol string) (*orchestrator.TickerSnapshot, error) {
	panic("boom")
}

func TestRecover(t *testing.T) {
	s := newTestServer(&panickingService{}, Config{})

	rec := do(t, s, http.MethodGet, "/api/ticker/AAPL")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestStart_ReportsBindError(t *testing.T) {
	held, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer held.Close()
	port := held.Addr().(*net.TCPAddr).Port

	srv := New(&fakeService{healthy: true}, Config{Port: port}, zerolog.Nop())
	if err := srv.Start(); err == nil {
		_ = srv.Stop(context.Background())
		t.Fatalf("Start() on port %d in use should fail", port)
	}
	if srv.Addr() != nil {
		t.Errorf("Addr() = %v after failed Start, want nil", srv.Addr())
	}
}

func TestStartStop(t *testing.T) {
	srv := New(&fakeService{healthy: true}, Config{Port: freePort(t)}, zerolog.Nop())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	port := srv.Addr().(*net.TCPAddr).Port
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	select {
	case err := <-srv.Err():
		t.Errorf("Err() = %v after clean shutdown", err)
	case <-time.After(50 * time.Millisecond):
	}
}
