package mya

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/JeffersonLab/mya-getter/pkg/metrics"
)

// DefaultMaxWorkers bounds how many archiver queries run at once when the
// caller does not say otherwise.
const DefaultMaxWorkers = 8

// BatchConfig configures one parallel query run.
type BatchConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	// MaxWorkers bounds concurrent fetches. Defaults to DefaultMaxWorkers.
	MaxWorkers int
}

func (cfg *BatchConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.MaxWorkers < 0 {
		return errors.New("max workers must not be negative")
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// DoParallelQueries runs fetch for every query with bounded concurrency and
// concatenates the results, in query order, into a single Batch. Any single
// failure fails the whole batch: remaining fetches are cancelled and no
// partial result is returned. Retries are a caller concern.
func DoParallelQueries[Q any](ctx context.Context, cfg BatchConfig, fetch func(context.Context, Q) (*Table, error), queries []Q) (*Batch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	startedAt := cfg.Clock.Now()
	cfg.Logger.Info("queries: starting batch", "queries", len(queries), "max_workers", cfg.MaxWorkers)

	results := make([]*Table, len(queries))
	var completed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxWorkers)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			metrics.QueriesStarted.Inc()
			queryStart := cfg.Clock.Now()

			table, err := fetch(ctx, q)
			if err != nil {
				metrics.QueriesFailed.Inc()
				return fmt.Errorf("query %d failed: %w", i, err)
			}

			metrics.QueriesCompleted.Inc()
			metrics.QueryDuration.Observe(cfg.Clock.Since(queryStart).Seconds())
			results[i] = table

			cfg.Logger.Info("queries: completed", "done", completed.Add(1), "total", len(queries))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch, err := concatTables(results)
	if err != nil {
		return nil, err
	}

	cfg.Logger.Info("queries: batch finished", "rows", batch.NumRows(), "elapsed", cfg.Clock.Since(startedAt))
	return batch, nil
}
