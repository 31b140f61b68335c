package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/kftrack/internal/metrics"
	"github.com/san-kum/kftrack/internal/scenario"
	"github.com/san-kum/kftrack/internal/sim"
	"github.com/san-kum/kftrack/internal/tuning"
)

// Registry names the pluggable pieces a run can be assembled from.
type Registry struct {
	metrics  map[string]func() sim.Metric
	policies map[string]tuning.Policy
}

func NewRegistry() *Registry {
	r := &Registry{
		metrics:  make(map[string]func() sim.Metric),
		policies: make(map[string]tuning.Policy),
	}

	r.metrics["pos_rmse"] = func() sim.Metric { return metrics.NewPositionRMSE() }
	r.metrics["vel_rmse"] = func() sim.Metric { return metrics.NewVelocityRMSE() }
	r.metrics["nis_mean"] = func() sim.Metric { return metrics.NewNISMean() }
	r.metrics["nis_p50"] = func() sim.Metric { return metrics.NewNISQuantile(0.50) }
	r.metrics["nis_p95"] = func() sim.Metric { return metrics.NewNISQuantile(0.95) }
	r.metrics["nis_mean_error_vs_2"] = func() sim.Metric { return metrics.NewNISMeanError() }
	r.metrics["detect_rate"] = func() sim.Metric { return metrics.NewDetectRate() }
	r.metrics["final_r"] = func() sim.Metric { return metrics.NewFinalR() }

	r.policies[string(tuning.Deadband)] = tuning.Deadband
	r.policies[string(tuning.BaselineFloor)] = tuning.BaselineFloor

	return r
}

func (r *Registry) GetMetric(name string) (sim.Metric, error) {
	fn, ok := r.metrics[name]
	if !ok {
		return nil, fmt.Errorf("unknown metric: %s", name)
	}
	return fn(), nil
}

func (r *Registry) GetPolicy(name string) (tuning.Policy, error) {
	p, ok := r.policies[name]
	if !ok {
		return "", fmt.Errorf("unknown policy: %s", name)
	}
	return p, nil
}

func (r *Registry) ListMetrics() []string {
	return sortedKeys(r.metrics)
}

func (r *Registry) ListPolicies() []string {
	return sortedKeys(r.policies)
}

func (r *Registry) ListScenarios() []string {
	all := scenario.All()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = string(s)
	}
	return names
}

func (r *Registry) ListModes() []string {
	return []string{string(sim.Baseline), string(sim.Adaptive)}
}

// DefaultMetrics returns fresh instances of every registered metric in
// report order.
func (r *Registry) DefaultMetrics() []sim.Metric {
	return metrics.Standard()
}

// Metrics builds the named metrics, or the defaults when names is empty.
func (r *Registry) Metrics(names []string) ([]sim.Metric, error) {
	if len(names) == 0 {
		return r.DefaultMetrics(), nil
	}
	out := make([]sim.Metric, 0, len(names))
	for _, name := range names {
		m, err := r.GetMetric(name)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
