package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/stockhub-client/internal/server"
	"github.com/Sternrassler/stockhub-client/pkg/cache"
	"github.com/Sternrassler/stockhub-client/pkg/client"
	"github.com/Sternrassler/stockhub-client/pkg/queue"
)

// pruner is implemented by durable stores that need expired rows removed.
type pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// App is the wired application.
type App struct {
	Server *server.Server

	store         cache.Store
	queue         *queue.Queue
	backend       *client.Client
	pruneInterval time.Duration
	logger        zerolog.Logger
}

// Run serves until ctx is done or the server fails, then shuts down the
// server, the queue and the backend client. The durable store is released by
// the cleanup returned from InitializeApp.
func (a *App) Run(ctx context.Context) error {
	if err := a.Server.Start(); err != nil {
		return errors.Join(fmt.Errorf("start server: %w", err), a.Close())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if p, ok := a.store.(pruner); ok && a.pruneInterval > 0 {
		go a.pruneLoop(ctx, p)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info().Msg("Shutting down")
	case err := <-a.Server.Err():
		serveErr = fmt.Errorf("serve: %w", err)
		a.logger.Error().Err(err).Msg("Server failed, shutting down")
	}
	cancel()

	// The server gets a fresh context; ctx is already done.
	err := a.Server.Stop(context.Background())
	return errors.Join(serveErr, err, a.Close())
}

// Close releases the queue and the backend client.
func (a *App) Close() error {
	a.queue.Close()
	return a.backend.Close()
}

func (a *App) pruneLoop(ctx context.Context, p pruner) {
	ticker := time.NewTicker(a.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Prune(ctx)
			if err != nil {
				a.logger.Warn().Err(err).Msg("Cache prune failed")
				continue
			}
			if n > 0 {
				a.logger.Debug().Int64("removed", n).Msg("Pruned expired cache entries")
			}
		}
	}
}
