package di

import (
	"context"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/stockhub-client/pkg/cache"
	"github.com/Sternrassler/stockhub-client/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	return cfg
}

func TestInitializeApp(t *testing.T) {
	tests := []struct {
		name      string
		backend   string
		wantStore bool
	}{
		{name: "memory", backend: config.CacheBackendMemory, wantStore: false},
		{name: "sqlite", backend: config.CacheBackendSQLite, wantStore: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Cache.Backend = tt.backend
			cfg.SQLite.Path = filepath.Join(t.TempDir(), "cache.db")

			app, cleanup, err := InitializeApp(cfg)
			if err != nil {
				t.Fatalf("InitializeApp() error = %v", err)
			}
			defer cleanup()
			defer app.Close()

			if app.Server == nil {
				t.Fatal("Server should be wired")
			}
			if (app.store != nil) != tt.wantStore {
				t.Errorf("store = %v, want present=%v", app.store, tt.wantStore)
			}
			if app.store != nil {
				if err := app.store.Ping(context.Background()); err != nil {
					t.Errorf("Ping() error = %v", err)
				}
			}
		})
	}
}

func TestInitializeApp_InvalidBackendURL(t *testing.T) {
	for _, backend := range []string{config.CacheBackendMemory, config.CacheBackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Cache.Backend = backend
			cfg.SQLite.Path = filepath.Join(t.TempDir(), "cache.db")
			cfg.Backend.URL = "ftp://example.com"

			app, cleanup, err := InitializeApp(cfg)
			if err == nil {
				t.Fatal("InitializeApp() should reject a non-http backend URL")
			}
			if app != nil || cleanup != nil {
				t.Error("failed InitializeApp() should return neither app nor cleanup")
			}
		})
	}
}

func TestProvideStore_CleanupClosesStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = config.CacheBackendSQLite
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "cache.db")

	store, cleanup, err := ProvideStore(cfg, ProvideLogger())
	if err != nil {
		t.Fatalf("ProvideStore() error = %v", err)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() before cleanup error = %v", err)
	}

	cleanup()
	if err := store.Ping(context.Background()); err == nil {
		t.Error("Ping() after cleanup should fail on a closed store")
	}
}

func TestProvideStore_MemoryCleanupIsNoop(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = config.CacheBackendMemory

	store, cleanup, err := ProvideStore(cfg, ProvideLogger())
	if err != nil {
		t.Fatalf("ProvideStore() error = %v", err)
	}
	if store != nil {
		t.Errorf("store = %v, want nil", store)
	}
	cleanup()
}

func TestInitializeApp_RedisUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = config.CacheBackendRedis
	cfg.Redis.Addr = "127.0.0.1:1"

	if _, _, err := InitializeApp(cfg); err == nil {
		t.Fatal("InitializeApp() should fail when Redis is unreachable")
	}
}

func TestProvideTracker_Disabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backend.RateLimitGating = false

	if tr := ProvideTracker(cfg, nil, ProvideLogger()); tr != nil {
		t.Error("tracker should be nil when gating is disabled")
	}
}

type countingPruner struct {
	calls atomic.Int32
}

func (p *countingPruner) Prune(context.Context) (int64, error) {
	p.calls.Add(1)
	return 1, nil
}

func TestPruneLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &countingPruner{}
	app := &App{pruneInterval: 5 * time.Millisecond, logger: ProvideLogger()}

	done := make(chan struct{})
	go func() {
		app.pruneLoop(ctx, p)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for p.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := p.calls.Load(); got < 2 {
		t.Errorf("Prune called %d times, want >= 2", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruneLoop did not stop on cancel")
	}
}

func TestSQLiteStoreIsPruned(t *testing.T) {
	store, err := cache.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer store.Close()

	var s cache.Store = store
	if _, ok := s.(pruner); !ok {
		t.Error("SQLite store should be pruned by the app")
	}
}

func newRunnableApp(t *testing.T, port int) *App {
	t.Helper()
	cfg := testConfig(t)
	cfg.Cache.Backend = config.CacheBackendMemory
	cfg.Server.Port = port

	app, cleanup, err := InitializeApp(cfg)
	if err != nil {
		t.Fatalf("InitializeApp() error = %v", err)
	}
	t.Cleanup(cleanup)
	return app
}

func TestAppRun_ReturnsBindError(t *testing.T) {
	held, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer held.Close()

	app := newRunnableApp(t, held.Addr().(*net.TCPAddr).Port)

	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(context.Background()) }()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("Run() should fail when the port is in use")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return on a bind error")
	}
}

func TestAppRun_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	app := newRunnableApp(t, port)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
