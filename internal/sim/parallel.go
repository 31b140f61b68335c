package sim

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Ensemble runs independent configurations in parallel. Each run gets its
// own Runner and a fresh metric set from the factory, so no state is
// shared between goroutines.
type Ensemble struct {
	metrics func() []Metric
	workers int
}

func NewEnsemble(metrics func() []Metric) *Ensemble {
	return &Ensemble{metrics: metrics, workers: runtime.GOMAXPROCS(0)}
}

// WithWorkers caps the number of concurrent runs. n <= 0 means unlimited.
func (e *Ensemble) WithWorkers(n int) *Ensemble {
	e.workers = n
	return e
}

// Run returns results in the order of cfgs. The first failing run cancels
// the rest.
func (e *Ensemble) Run(ctx context.Context, cfgs []Config) ([]*Result, error) {
	results := make([]*Result, len(cfgs))

	g, ctx := errgroup.WithContext(ctx)
	if e.workers > 0 {
		g.SetLimit(e.workers)
	}

	for i, cfg := range cfgs {
		g.Go(func() error {
			r := New(cfg)
			if e.metrics != nil {
				for _, m := range e.metrics() {
					r.AddMetric(m)
				}
			}
			res, err := r.Run(ctx)
			if err != nil {
				return err
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

// Seeds returns n copies of cfg with consecutive seeds starting at start.
func Seeds(cfg Config, start uint64, n int) []Config {
	out := make([]Config, n)
	for i := range out {
		out[i] = cfg
		out[i].Scenario.Seed = start + uint64(i)
	}
	return out
}
