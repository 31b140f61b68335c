package sim

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/san-kum/kftrack/internal/scenario"
)

func TestEnsembleMatchesSequential(t *testing.T) {
	base := testConfig(Adaptive, scenario.Maneuver)
	cfgs := Seeds(base, 500, 6)

	results, err := NewEnsemble(func() []Metric { return []Metric{&countMetric{}} }).
		WithWorkers(3).
		Run(context.Background(), cfgs)
	if err != nil {
		t.Fatalf("ensemble failed: %v", err)
	}
	if len(results) != len(cfgs) {
		t.Fatalf("got %d results, want %d", len(results), len(cfgs))
	}

	for i, cfg := range cfgs {
		if results[i].Config.Scenario.Seed != 500+uint64(i) {
			t.Errorf("result %d seed = %d", i, results[i].Config.Scenario.Seed)
		}
		if results[i].Metrics["count"] != float64(cfg.Scenario.Steps) {
			t.Errorf("result %d count = %f", i, results[i].Metrics["count"])
		}
		want, err := New(cfg).Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want.Records, results[i].Records); diff != "" {
			t.Errorf("seed %d differs from sequential run (-want +got):\n%s", cfg.Scenario.Seed, diff)
		}
	}
}

func TestEnsemblePropagatesError(t *testing.T) {
	good := testConfig(Baseline, scenario.CV)
	bad := good
	bad.Scenario.Steps = 0

	_, err := NewEnsemble(nil).Run(context.Background(), []Config{good, bad, good})
	if err == nil {
		t.Fatal("expected error from invalid config")
	}
}
