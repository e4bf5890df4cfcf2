package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/stockhub-client/pkg/cache"
)

// BatchResult holds the outcome of FetchTickers. Every requested symbol
// appears in exactly one of the maps.
type BatchResult struct {
	Snapshots map[string]*TickerSnapshot
	Errors    map[string]error
}

// FetchTickers fetches snapshots for symbols in parallel, bounded by
// Config.BatchConcurrency. Symbols are normalized and deduplicated. A failed
// symbol does not stop the others; partial results are returned.
func (o *Orchestrator) FetchTickers(ctx context.Context, symbols []string) *BatchResult {
	start := time.Now()

	result := &BatchResult{
		Snapshots: make(map[string]*TickerSnapshot, len(symbols)),
		Errors:    make(map[string]error),
	}

	unique := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		sym := cache.NormalizeSymbol(s)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		unique = append(unique, sym)
	}
	if len(unique) == 0 {
		return result
	}

	o.logger.Info().
		Int("symbols", len(unique)).
		Int("concurrency", o.config.BatchConcurrency).
		Msg("Starting batch ticker fetch")

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(o.config.BatchConcurrency)

	for _, sym := range unique {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				result.Errors[sym] = classify(err)
				mu.Unlock()
				return nil
			}

			snap, err := o.FetchTickerSnapshot(ctx, sym)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[sym] = err
				return nil
			}
			result.Snapshots[sym] = snap
			return nil
		})
	}
	// Workers record failures per symbol and never return an error.
	_ = g.Wait()

	event := o.logger.Info()
	if len(result.Errors) > 0 {
		event = o.logger.Warn()
	}
	event.
		Int("fetched", len(result.Snapshots)).
		Int("failed", len(result.Errors)).
		Dur("duration", time.Since(start)).
		Msg("Batch ticker fetch complete")

	return result
}
