//go:build integration

package di

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/stockhub-client/internal/server"
	"github.com/Sternrassler/stockhub-client/internal/testutil"
	"github.com/Sternrassler/stockhub-client/pkg/config"
	"github.com/Sternrassler/stockhub-client/pkg/orchestrator"
)

// setupRedis starts a Redis container and returns its address.
func setupRedis(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return host + ":" + port.Port()
}

func newIntegrationApp(t *testing.T, redisAddr, backendURL string) *App {
	t.Helper()

	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	cfg.Backend.URL = backendURL
	cfg.Cache.Backend = config.CacheBackendRedis
	cfg.Redis.Addr = redisAddr
	cfg.Queue.DelayBetweenTasks = 5 * time.Millisecond
	cfg.Poller.Interval = 10 * time.Millisecond
	cfg.Poller.Timeout = 2 * time.Second

	app, cleanup, err := InitializeApp(cfg)
	if err != nil {
		t.Fatalf("InitializeApp() error = %v", err)
	}
	t.Cleanup(func() {
		_ = app.Close()
		cleanup()
	})
	return app
}

func get(t *testing.T, app *App, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	app.Server.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestFullPredictionFlow(t *testing.T) {
	redisAddr := setupRedis(t)
	mock := testutil.NewMockBackend()
	defer mock.Close()

	mock.SetJobScript("AAPL", "job-1",
		testutil.NewJobResponse("queued", ""),
		testutil.NewJobResponse("running", ""),
		testutil.NewJobResponse("done", testutil.BundleJSON(101, 102, 105, 88)),
	)

	app := newIntegrationApp(t, redisAddr, mock.URL())

	rec := get(t, app, "/api/predictions/aapl")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var p orchestrator.Predictions
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(p.Models) == 0 || p.Models[0].Prediction != 105 {
		t.Errorf("primary prediction = %+v, want 105", p.Models)
	}
	if p.Cached {
		t.Error("first response should not be cached")
	}

	// A second app over the same Redis starts with an empty memory layer.
	second := newIntegrationApp(t, redisAddr, mock.URL())
	rec = get(t, second, "/api/predictions/AAPL")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !p.Cached {
		t.Error("second app should be served from Redis")
	}
	if n := mock.GetPathCount("/api/predictions/AAPL"); n != 1 {
		t.Errorf("submissions = %d, want 1", n)
	}
}

func TestSeriesCacheHit(t *testing.T) {
	redisAddr := setupRedis(t)
	mock := testutil.NewMockBackend()
	defer mock.Close()
	mock.SetResponse("/api/series/MSFT", testutil.NewHealthyResponse(testutil.SeriesJSON("MSFT", "1M")))

	app := newIntegrationApp(t, redisAddr, mock.URL())

	for i := 0; i < 3; i++ {
		if rec := get(t, app, "/api/series/MSFT?range=1M"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
	if n := mock.GetPathCount("/api/series/MSFT"); n != 1 {
		t.Errorf("backend calls = %d, want 1", n)
	}
}

func TestReauthenticate(t *testing.T) {
	redisAddr := setupRedis(t)
	mock := testutil.NewMockBackend()
	defer mock.Close()
	mock.SetResponse("/api/stock/TSLA", testutil.NewUnauthorizedResponse())

	app := newIntegrationApp(t, redisAddr, mock.URL())

	rec := get(t, app, "/api/ticker/TSLA")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var body server.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Kind != orchestrator.KindReauthenticate {
		t.Errorf("kind = %q, want reauthenticate", body.Kind)
	}
}

func TestRateLimitBlock(t *testing.T) {
	redisAddr := setupRedis(t)
	mock := testutil.NewMockBackend()
	defer mock.Close()
	mock.SetResponse("/api/stock/NVDA", testutil.NewRateLimitResponse(60))

	app := newIntegrationApp(t, redisAddr, mock.URL())

	for i := 0; i < 2; i++ {
		rec := get(t, app, "/api/ticker/NVDA")
		if rec.Code != http.StatusBadGateway {
			t.Errorf("request %d: status = %d, want 502", i, rec.Code)
		}
	}
	if n := mock.GetPathCount("/api/stock/NVDA"); n != 1 {
		t.Errorf("backend calls = %d, want 1 (second call blocked locally)", n)
	}
}

func TestHealthWithRedis(t *testing.T) {
	redisAddr := setupRedis(t)
	mock := testutil.NewMockBackend()
	defer mock.Close()

	app := newIntegrationApp(t, redisAddr, mock.URL())

	if rec := get(t, app, "/health"); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}
