package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/reaksim/internal/config"
	"github.com/san-kum/reaksim/internal/metrics"
)

type BatchOptions struct {
	// Workers bounds the parallel runs; GOMAXPROCS when <= 0.
	Workers   int
	Logger    *slog.Logger
	Collector *metrics.Collector
}

// RunBatch runs one independent experiment per config in parallel.
// Results keep the order of cfgs. The first failure cancels the remaining
// runs.
func RunBatch(ctx context.Context, cfgs []*config.Config, opts BatchOptions) ([]*Result, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([]*Result, len(cfgs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, cfg := range cfgs {
		i, cfg := i, cfg
		g.Go(func() error {
			exp, err := New(cfg)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			if opts.Logger != nil {
				exp.SetLogger(opts.Logger.With("run", i))
			}
			exp.SetCollector(opts.Collector)
			res, err := exp.Run(ctx)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Sweep returns copies of base with one solver or config field varied by
// set, one copy per value.
func Sweep(base *config.Config, values []float64, set func(*config.Config, float64)) []*config.Config {
	out := make([]*config.Config, len(values))
	for k, v := range values {
		cfg := base.Clone()
		set(cfg, v)
		out[k] = cfg
	}
	return out
}
