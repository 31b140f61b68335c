// Package tuning adapts the filter's measurement-noise variance from its
// normalized innovation squared (NIS).
//
// A well-tuned 2D position filter has NIS averaging 2. The tuner smooths NIS
// with an exponential moving average and nudges r multiplicatively toward
// that target. Large single-step NIS values (clutter, outliers) bump r
// immediately. Two mutually exclusive policies decide what happens between
// spikes; see [Policy].
package tuning

import (
	"fmt"
	"math"
)

// Policy selects how the smoothed NIS drives r.
type Policy string

const (
	// Deadband holds r while the smoothed NIS sits within Deadband of the
	// target and corrects it in both directions otherwise.
	Deadband Policy = "deadband"
	// BaselineFloor never lets r fall below the first r it saw. It only
	// raises r once the smoothed NIS exceeds target*ActivationRatio.
	BaselineFloor Policy = "baseline_floor"
)

// Bounds on the smoothed-NIS ratio before tempering.
const (
	MinRatio = 0.05
	MaxRatio = 20.0
)

const (
	minTarget   = 1e-9
	maxSpikeMul = 2.0
)

func ParsePolicy(name string) (Policy, error) {
	switch Policy(name) {
	case Deadband, BaselineFloor:
		return Policy(name), nil
	case "":
		return Deadband, nil
	}
	return "", fmt.Errorf("tuning: unknown policy %q", name)
}

type Config struct {
	Policy          Policy  `yaml:"policy" json:"policy"`
	TargetNIS       float64 `yaml:"target_nis" json:"target_nis"`
	EMAAlpha        float64 `yaml:"ema_alpha" json:"ema_alpha"`
	Gain            float64 `yaml:"gain" json:"gain"`
	Deadband        float64 `yaml:"deadband" json:"deadband"`
	ActivationRatio float64 `yaml:"activation_ratio" json:"activation_ratio"`
	RMin            float64 `yaml:"r_min" json:"r_min"`
	RMax            float64 `yaml:"r_max" json:"r_max"`
	SpikeNIS        float64 `yaml:"spike_nis" json:"spike_nis"`
	SpikeGain       float64 `yaml:"spike_gain" json:"spike_gain"`
	SpikeCapRatio   float64 `yaml:"spike_cap_ratio" json:"spike_cap_ratio"`
}

func DefaultConfig() Config {
	return Config{
		Policy:          Deadband,
		TargetNIS:       2.0,
		EMAAlpha:        0.97,
		Gain:            0.03,
		Deadband:        0.25,
		ActivationRatio: 1.5,
		RMin:            0.2,
		RMax:            100.0,
		SpikeNIS:        50.0,
		SpikeGain:       0.20,
		SpikeCapRatio:   50.0,
	}
}

func (c Config) Validate() error {
	if _, err := ParsePolicy(string(c.Policy)); err != nil {
		return err
	}
	if !(c.RMin > 0) || !(c.RMax >= c.RMin) {
		return fmt.Errorf("tuning: need 0 < r_min <= r_max, got [%g, %g]", c.RMin, c.RMax)
	}
	if c.EMAAlpha < 0 || c.EMAAlpha > 1 || math.IsNaN(c.EMAAlpha) {
		return fmt.Errorf("tuning: ema_alpha must be in [0,1], got %g", c.EMAAlpha)
	}
	if !(c.TargetNIS > 0) {
		return fmt.Errorf("tuning: target_nis must be positive, got %g", c.TargetNIS)
	}
	return nil
}

// Tuner is stateful and not safe for concurrent use. One tuner serves one
// filter for one run.
type Tuner struct {
	cfg     Config
	nisEMA  float64
	hasEMA  bool
	baseR   float64
	hasBase bool
}

func New(cfg Config) *Tuner {
	if cfg.Policy == "" {
		cfg.Policy = Deadband
	}
	return &Tuner{cfg: cfg}
}

func (t *Tuner) Config() Config { return t.cfg }

func (t *Tuner) NISEMA() float64 { return t.nisEMA }

func (t *Tuner) HasEMA() bool { return t.hasEMA }

// BaseR is the r latched on the first Step, or 0 before any call.
func (t *Tuner) BaseR() float64 { return t.baseR }

// Reset forgets the smoothed NIS and the latched baseline.
func (t *Tuner) Reset() {
	t.nisEMA = 0
	t.hasEMA = false
	t.baseR = 0
	t.hasBase = false
}

// Step returns the r to use for the next update. Call it only after a step
// that applied a real measurement.
func (t *Tuner) Step(nis, currentR float64) float64 {
	if !(nis >= 0) || math.IsInf(nis, 0) {
		nis = 0
	}
	if !(currentR > 0) || math.IsInf(currentR, 0) {
		currentR = t.cfg.RMin
	}
	if !t.hasBase {
		t.baseR = currentR
		t.hasBase = true
	}

	target := math.Max(minTarget, t.cfg.TargetNIS)
	r := currentR

	spiked := nis > t.cfg.SpikeNIS
	if spiked {
		r *= t.spikeFactor(nis, target)
	}

	if !t.hasEMA {
		t.nisEMA = nis
		t.hasEMA = true
	} else {
		a := t.cfg.EMAAlpha
		t.nisEMA = a*t.nisEMA + (1-a)*nis
	}

	switch t.cfg.Policy {
	case BaselineFloor:
		if t.nisEMA > target*t.cfg.ActivationRatio {
			r *= t.tempered(target)
		} else if !spiked {
			r = t.baseR
		}
	default:
		if math.Abs(t.nisEMA-target) >= t.cfg.Deadband {
			r *= t.tempered(target)
		}
	}

	r = clamp(r, t.cfg.RMin, t.cfg.RMax)
	if t.cfg.Policy == BaselineFloor {
		r = math.Max(r, t.baseR)
	}
	return r
}

// tempered is the smoothed-NIS ratio raised to the gain exponent.
func (t *Tuner) tempered(target float64) float64 {
	ratio := clamp(t.nisEMA/target, MinRatio, MaxRatio)
	return math.Pow(ratio, clamp(t.cfg.Gain, 0, 1))
}

// spikeFactor is 1 + g*(1 + excess) with excess in [0,1] growing with how
// far nis/target exceeds 1, capped at SpikeCapRatio. The result stays in
// [1, 2].
func (t *Tuner) spikeFactor(nis, target float64) float64 {
	g := clamp(t.cfg.SpikeGain, 0, 1)
	capRatio := math.Max(1, t.cfg.SpikeCapRatio)
	ratio := math.Min(nis/target, capRatio)
	excess := clamp((ratio-1)/capRatio, 0, 1)
	return clamp(1+g*(1+excess), 1, maxSpikeMul)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
