package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/kftrack/internal/kalman"
	"github.com/san-kum/kftrack/internal/scenario"
	"github.com/san-kum/kftrack/internal/sim"
)

func rec(ex, ey, nis float64, valid bool) sim.Record {
	return sim.Record{
		Truth:    scenario.TruthState{X: 1, Y: 1, VX: 1, VY: 0.5},
		Estimate: kalman.State{X: 1 + ex, Y: 1 + ey, VX: 1 + ex, VY: 0.5 + ey},
		Meas:     scenario.Measurement{Valid: valid},
		Diag:     kalman.Diagnostics{NIS: nis},
		R:        4,
	}
}

func TestPositionRMSE(t *testing.T) {
	m := NewPositionRMSE()
	assert.True(t, math.IsNaN(m.Value()), "empty metric should be NaN")

	m.Observe(rec(3, 4, 0, true))
	m.Observe(rec(0, 0, 0, true))
	assert.InDelta(t, math.Sqrt(25.0/2), m.Value(), 1e-12)

	m.Reset()
	m.Observe(rec(1, 0, 0, true))
	assert.InDelta(t, 1.0, m.Value(), 1e-12)
}

func TestVelocityRMSE(t *testing.T) {
	m := NewVelocityRMSE()
	m.Observe(rec(3, 4, 0, true))
	assert.InDelta(t, 5.0, m.Value(), 1e-12)
	assert.Equal(t, "vel_rmse", m.Name())
}

func TestNISMeanAndError(t *testing.T) {
	mean := NewNISMean()
	diff := NewNISMeanError()
	for _, nis := range []float64{1, 2, 3, 0} {
		mean.Observe(rec(0, 0, nis, nis != 0))
		diff.Observe(rec(0, 0, nis, nis != 0))
	}
	assert.InDelta(t, 1.5, mean.Value(), 1e-12)
	assert.InDelta(t, -0.5, diff.Value(), 1e-12)
	assert.Equal(t, "nis_mean_error_vs_2", diff.Name())
}

func TestNISQuantile(t *testing.T) {
	p50 := NewNISQuantile(0.5)
	p95 := NewNISQuantile(0.95)
	assert.Equal(t, "nis_p50", p50.Name())
	assert.Equal(t, "nis_p95", p95.Name())

	for i := 100; i >= 1; i-- {
		p50.Observe(rec(0, 0, float64(i), true))
		p95.Observe(rec(0, 0, float64(i), true))
	}
	assert.InDelta(t, 50, p50.Value(), 1.0)
	assert.InDelta(t, 95, p95.Value(), 1.0)
	assert.Less(t, p50.Value(), p95.Value())

	p50.Reset()
	assert.True(t, math.IsNaN(p50.Value()))
}

func TestQuantileLeavesInputUnsorted(t *testing.T) {
	xs := []float64{3, 1, 2}
	Quantile(xs, 0.5)
	assert.Equal(t, []float64{3, 1, 2}, xs)
	assert.Equal(t, 7.0, Quantile([]float64{7, 7, 7, 7}, 0.95))
}

func TestQuantileInterpolatesBetweenRanks(t *testing.T) {
	tests := []struct {
		xs   []float64
		p    float64
		want float64
	}{
		{[]float64{4, 1, 3, 2}, 0.5, 2.5},
		{[]float64{1, 2, 3, 4}, 0.95, 3.85},
		{[]float64{10, 20}, 0.25, 12.5},
		{[]float64{5, 9, 1}, 0, 1},
		{[]float64{5, 9, 1}, 1, 9},
		{[]float64{42}, 0.95, 42},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Quantile(tt.xs, tt.p), 1e-12, "Quantile(%v, %g)", tt.xs, tt.p)
	}
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
}

func TestDetectRate(t *testing.T) {
	m := NewDetectRate()
	m.Observe(rec(0, 0, 0, true))
	m.Observe(rec(0, 0, 0, false))
	m.Observe(rec(0, 0, 0, true))
	m.Observe(rec(0, 0, 0, true))
	assert.InDelta(t, 0.75, m.Value(), 1e-12)
}

func TestFinalR(t *testing.T) {
	m := NewFinalR()
	assert.True(t, math.IsNaN(m.Value()))
	r := rec(0, 0, 0, true)
	r.R = 9.5
	m.Observe(rec(0, 0, 0, true))
	m.Observe(r)
	assert.Equal(t, 9.5, m.Value())
}

func TestEvaluateMatchesRunnerMetrics(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.Mode = sim.Adaptive
	cfg.Scenario.Scenario = scenario.Clutter
	cfg.Scenario.Steps = 300

	r := sim.New(cfg)
	for _, m := range Standard() {
		r.AddMetric(m)
	}
	result, err := r.Run(t.Context())
	require.NoError(t, err)

	got := Evaluate(result.Records)
	require.Len(t, got, len(Names()))
	for _, name := range Names() {
		assert.InDelta(t, result.Metrics[name], got[name], 1e-12, name)
	}

	assert.InDelta(t, 0.9, got["detect_rate"], 0.06)
	assert.GreaterOrEqual(t, got["nis_p95"], got["nis_p50"])
}
