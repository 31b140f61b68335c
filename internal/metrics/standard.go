// Package metrics implements per-run tracking quality metrics as
// [sim.Metric] values.
package metrics

import "github.com/san-kum/kftrack/internal/sim"

// Standard returns a fresh instance of every metric the evaluation
// report carries, in report order.
func Standard() []sim.Metric {
	return []sim.Metric{
		NewPositionRMSE(),
		NewVelocityRMSE(),
		NewNISMean(),
		NewNISQuantile(0.50),
		NewNISQuantile(0.95),
		NewNISMeanError(),
		NewDetectRate(),
		NewFinalR(),
	}
}

// Names lists the metric names produced by Standard.
func Names() []string {
	ms := Standard()
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Name()
	}
	return out
}

// Evaluate replays records through a fresh Standard set.
func Evaluate(records []sim.Record) map[string]float64 {
	ms := Standard()
	for _, rec := range records {
		for _, m := range ms {
			m.Observe(rec)
		}
	}
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}
