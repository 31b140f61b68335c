package scenario

import (
	"errors"
	"fmt"
	"math"
)

// Scenario names a preset family of simulated conditions.
type Scenario string

const (
	CV        Scenario = "cv"
	Maneuver  Scenario = "maneuver"
	HighNoise Scenario = "high_noise"
	Clutter   Scenario = "clutter"
)

// Preset bounds applied at construction.
const (
	HighNoiseMinSigma = 6.0
	ClutterMinProb    = 0.25
	ClutterMaxPDetect = 0.9
)

// Velocity multipliers applied once at Steps/2 in the maneuver scenario.
const (
	ManeuverScaleVX = 0.55
	ManeuverScaleVY = 1.65
)

var (
	ErrUnknownScenario = errors.New("scenario: unknown scenario")
	ErrInvalidConfig   = errors.New("scenario: invalid config")
)

// All lists the scenarios in evaluation order.
func All() []Scenario {
	return []Scenario{CV, Maneuver, HighNoise, Clutter}
}

func Parse(name string) (Scenario, error) {
	for _, s := range All() {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScenario, name)
}

type TruthState struct {
	X, Y, VX, VY float64
}

// Measurement is one sensor return. When Valid is false ZX/ZY are zero
// placeholders and carry no information.
type Measurement struct {
	ZX, ZY float64
	Valid  bool
}

type Sample struct {
	K     int
	Truth TruthState
	Meas  Measurement
}

type Config struct {
	Dt           float64  `yaml:"dt" json:"dt"`
	Seed         uint64   `yaml:"seed" json:"seed"`
	Steps        int      `yaml:"steps" json:"steps"`
	SigmaZ       float64  `yaml:"sigma_z" json:"sigma_z"`
	PDetect      float64  `yaml:"p_detect" json:"p_detect"`
	ClutterProb  float64  `yaml:"clutter_prob" json:"clutter_prob"`
	ClutterRange float64  `yaml:"clutter_range" json:"clutter_range"`
	Scenario     Scenario `yaml:"scenario" json:"scenario"`
}

func DefaultConfig() Config {
	return Config{
		Dt:           0.02,
		Seed:         123,
		Steps:        500,
		SigmaZ:       2.0,
		PDetect:      1.0,
		ClutterProb:  0.0,
		ClutterRange: 80.0,
		Scenario:     CV,
	}
}

// Resolve applies the scenario's preset bounds. Explicit values are only
// moved toward the bound, never past it.
func (c Config) Resolve() Config {
	switch c.Scenario {
	case HighNoise:
		c.SigmaZ = math.Max(c.SigmaZ, HighNoiseMinSigma)
	case Clutter:
		c.ClutterProb = math.Max(c.ClutterProb, ClutterMinProb)
		c.PDetect = math.Min(c.PDetect, ClutterMaxPDetect)
	}
	return c
}

func (c Config) Validate() error {
	if !(c.Dt > 0) || math.IsInf(c.Dt, 0) {
		return fmt.Errorf("%w: dt must be positive, got %f", ErrInvalidConfig, c.Dt)
	}
	if c.Steps <= 0 {
		return fmt.Errorf("%w: steps must be positive, got %d", ErrInvalidConfig, c.Steps)
	}
	if c.PDetect < 0 || c.PDetect > 1 || math.IsNaN(c.PDetect) {
		return fmt.Errorf("%w: p_detect must be in [0,1], got %f", ErrInvalidConfig, c.PDetect)
	}
	if c.ClutterProb < 0 || c.ClutterProb > 1 || math.IsNaN(c.ClutterProb) {
		return fmt.Errorf("%w: clutter_prob must be in [0,1], got %f", ErrInvalidConfig, c.ClutterProb)
	}
	if c.SigmaZ < 0 || math.IsNaN(c.SigmaZ) {
		return fmt.Errorf("%w: sigma_z must be non-negative, got %f", ErrInvalidConfig, c.SigmaZ)
	}
	if c.ClutterRange < 0 || math.IsNaN(c.ClutterRange) {
		return fmt.Errorf("%w: clutter_range must be non-negative, got %f", ErrInvalidConfig, c.ClutterRange)
	}
	if _, err := Parse(string(c.Scenario)); err != nil {
		return err
	}
	return nil
}
