package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/stockhub-client/internal/server"
	"github.com/Sternrassler/stockhub-client/pkg/cache"
	"github.com/Sternrassler/stockhub-client/pkg/client"
	"github.com/Sternrassler/stockhub-client/pkg/config"
	"github.com/Sternrassler/stockhub-client/pkg/jobs"
	"github.com/Sternrassler/stockhub-client/pkg/orchestrator"
	"github.com/Sternrassler/stockhub-client/pkg/queue"
	"github.com/Sternrassler/stockhub-client/pkg/ratelimit"
)

// ProvideLogger returns the global logger configured by logging.Setup.
func ProvideLogger() zerolog.Logger {
	return log.Logger
}

// ProvideStore opens the durable cache layer selected by cfg.Cache.Backend.
// The memory backend yields a nil Store. The returned cleanup closes the store.
func ProvideStore(cfg *config.Config, logger zerolog.Logger) (cache.Store, func(), error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, func() {}, nil
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Str("backend", cfg.Cache.Backend).Msg("Failed to close cache store")
		}
	}
	return store, cleanup, nil
}

func openStore(cfg *config.Config) (cache.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.Cache.Backend {
	case config.CacheBackendMemory:
		return nil, nil

	case config.CacheBackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		return cache.NewRedisStore(rdb, cfg.Redis.Prefix), nil

	default:
		store, err := cache.OpenSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite cache: %w", err)
		}
		return store, nil
	}
}

// ProvideTiered layers the in-process cache over store.
func ProvideTiered(cfg *config.Config, store cache.Store, logger zerolog.Logger) *cache.Tiered {
	return cache.NewTiered(store,
		cache.WithMemoryMaxEntries(cfg.Cache.MemoryMaxEntries),
		cache.WithLogger(logger.With().Str("component", "cache").Logger()),
	)
}

// ProvideQueue creates the shared outbound request queue.
func ProvideQueue(cfg *config.Config, logger zerolog.Logger) *queue.Queue {
	q := queue.New(queue.Config{
		Name:              "backend",
		MaxConcurrent:     cfg.Queue.MaxConcurrent,
		DelayBetweenTasks: cfg.Queue.DelayBetweenTasks,
		RatePerSecond:     cfg.Queue.RatePerSecond,
		Burst:             cfg.Queue.Burst,
	})
	q.SetLogger(logger.With().Str("component", "queue").Logger())
	return q
}

// ProvideCredentials holds the configured bearer token.
func ProvideCredentials(cfg *config.Config) client.Credentials {
	return client.NewStaticCredentials(cfg.Backend.Token)
}

// ProvideTracker returns the upstream rate limit tracker, or nil when gating
// is disabled.
func ProvideTracker(cfg *config.Config, store cache.Store, logger zerolog.Logger) *ratelimit.Tracker {
	if !cfg.Backend.RateLimitGating {
		return nil
	}
	return ratelimit.NewTracker(store, logger.With().Str("component", "ratelimit").Logger())
}

// ProvideClient creates the backend HTTP client.
func ProvideClient(cfg *config.Config, creds client.Credentials, tracker *ratelimit.Tracker, logger zerolog.Logger) (*client.Client, error) {
	c, err := client.New(client.Config{
		BaseURL:     cfg.Backend.URL,
		UserAgent:   cfg.Backend.UserAgent,
		Timeout:     cfg.Backend.Timeout,
		Credentials: creds,
		RateLimiter: tracker,
	})
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}
	c.SetLogger(logger.With().Str("component", "backend-client").Logger())
	return c, nil
}

// ProvideOrchestrator composes the data access layer.
func ProvideOrchestrator(
	cfg *config.Config,
	backend *client.Client,
	tiered *cache.Tiered,
	q *queue.Queue,
	creds client.Credentials,
	logger zerolog.Logger,
) *orchestrator.Orchestrator {
	ocfg := orchestrator.DefaultConfig()
	ocfg.ModelVersion = cfg.ModelVersion
	ocfg.PollInterval = cfg.Poller.Interval
	ocfg.PollTimeout = cfg.Poller.Timeout

	ologger := logger.With().Str("component", "orchestrator").Logger()

	return orchestrator.New(backend, tiered, q, ocfg,
		orchestrator.WithCredentials(creds),
		orchestrator.WithLogger(ologger),
		orchestrator.WithReauthenticate(func() {
			ologger.Warn().Msg("Backend rejected credentials, reauthentication required")
		}),
		orchestrator.WithJobObserver(func(symbol string, job jobs.Job) {
			ev := ologger.Debug().
				Str("symbol", symbol).
				Str("job_id", job.ID).
				Str("status", string(job.Status))
			if job.Progress != nil {
				ev = ev.Float64("progress", *job.Progress)
			}
			ev.Msg("Prediction job progress")
		}),
	)
}

// ProvideServer creates the facade HTTP server.
func ProvideServer(cfg *config.Config, orch *orchestrator.Orchestrator, logger zerolog.Logger) *server.Server {
	return server.New(orch, server.Config{
		Port:            cfg.Server.Port,
		RequestTimeout:  cfg.Server.RequestTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Retry:           cfg.Retry.Enabled,
	}, logger)
}

// ProvideApp bundles the wired components.
func ProvideApp(
	cfg *config.Config,
	store cache.Store,
	q *queue.Queue,
	backend *client.Client,
	srv *server.Server,
	logger zerolog.Logger,
) *App {
	return &App{
		Server:        srv,
		store:         store,
		queue:         q,
		backend:       backend,
		pruneInterval: cfg.Cache.PruneInterval,
		logger:        logger.With().Str("component", "app").Logger(),
	}
}
