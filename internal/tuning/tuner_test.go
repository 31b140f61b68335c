package tuning

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadbandIdempotence(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 2.0, cfg.TargetNIS)
	require.Equal(t, 0.25, cfg.Deadband)

	tu := New(cfg)
	for _, r := range []float64{0.5, 4.0, 37.0} {
		tu.Reset()
		assert.Equal(t, r, tu.Step(2.1, r), "r=%g", r)
	}
}

func TestSpikeFactorBounds(t *testing.T) {
	tests := []struct {
		name      string
		spikeGain float64
		nis       float64
		min, max  float64
	}{
		{"default gain at threshold", 0.2, 50, 1.2, 1.2 + 0.2},
		{"default gain far above cap", 0.2, 1e6, 1.2, 1.4},
		{"negative gain clamps to one", -1, 1000, 1, 1},
		{"huge gain clamps to two", 10, 1000, 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.SpikeGain = tt.spikeGain
			f := New(cfg).spikeFactor(tt.nis, cfg.TargetNIS)
			assert.GreaterOrEqual(t, f, tt.min)
			assert.LessOrEqual(t, f, tt.max)
		})
	}
}

func TestSpikeOnlyAboveThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = BaselineFloor

	tu := New(cfg)
	// ema stays below activation, so only a spike can move r off baseline
	assert.Equal(t, 4.0, tu.Step(0, 4.0))
	assert.Equal(t, 4.0, tu.Step(cfg.SpikeNIS, 4.0))
	assert.Greater(t, tu.Step(cfg.SpikeNIS+1, 4.0), 4.0)
}

func TestEMASeedAndBlend(t *testing.T) {
	cfg := DefaultConfig()
	tu := New(cfg)
	assert.False(t, tu.HasEMA())

	tu.Step(3, 4)
	assert.True(t, tu.HasEMA())
	assert.Equal(t, 3.0, tu.NISEMA())

	tu.Step(13, 4)
	assert.InDelta(t, 0.97*3+0.03*13, tu.NISEMA(), 1e-12)
}

func TestClampToBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gain = 1

	hi := New(cfg)
	assert.Equal(t, cfg.RMax, hi.Step(1000, 90))

	lo := New(cfg)
	assert.Equal(t, cfg.RMin, lo.Step(0, 0.3))
}

func TestFloorAppliedAfterClamp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = BaselineFloor
	cfg.RMax = 1

	// baseline above r_max wins over the clamp
	tu := New(cfg)
	assert.Equal(t, 5.0, tu.Step(0, 5))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Deadband, p)

	p, err = ParsePolicy("baseline_floor")
	require.NoError(t, err)
	assert.Equal(t, BaselineFloor, p)

	_, err = ParsePolicy("pid")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := []func(*Config){
		func(c *Config) { c.Policy = "nope" },
		func(c *Config) { c.RMin = 0 },
		func(c *Config) { c.RMax = c.RMin / 2 },
		func(c *Config) { c.EMAAlpha = 1.5 },
		func(c *Config) { c.EMAAlpha = math.NaN() },
		func(c *Config) { c.TargetNIS = 0 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
	}
}
