package sim

import (
	"fmt"

	"github.com/san-kum/kftrack/internal/kalman"
	"github.com/san-kum/kftrack/internal/scenario"
	"github.com/san-kum/kftrack/internal/tuning"
)

// Mode selects whether the tuner writes back into the filter.
type Mode string

const (
	Baseline Mode = "baseline"
	Adaptive Mode = "adaptive"
)

func ParseMode(name string) (Mode, error) {
	switch name {
	case "", string(Baseline):
		return Baseline, nil
	case string(Adaptive), "a1":
		return Adaptive, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, name)
}

type Metric interface {
	Name() string
	Observe(rec Record)
	Value() float64
	Reset()
}

// Observer sees every record as it is produced. A returned error stops
// the run.
type Observer interface {
	OnStep(rec Record) error
}

type Config struct {
	Mode     Mode            `yaml:"mode" json:"mode"`
	Scenario scenario.Config `yaml:"scenario" json:"scenario"`
	Filter   kalman.Config   `yaml:"filter" json:"filter"`
	Tuner    tuning.Config   `yaml:"tuner" json:"tuner"`
}

func DefaultConfig() Config {
	return Config{
		Mode:     Baseline,
		Scenario: scenario.DefaultConfig(),
		Filter:   kalman.DefaultConfig(),
		Tuner:    tuning.DefaultConfig(),
	}
}

// Resolved normalizes the mode name and applies scenario presets.
func (c Config) Resolved() Config {
	if m, err := ParseMode(string(c.Mode)); err == nil {
		c.Mode = m
	}
	c.Scenario = c.Scenario.Resolve()
	return c
}

// Record is everything one step produces. R is the measurement variance
// the filter will use on the next step; NISEMA and BaseR are zero until
// the tuner has seen a measurement.
type Record struct {
	K        int
	Truth    scenario.TruthState
	Meas     scenario.Measurement
	Estimate kalman.State
	Diag     kalman.Diagnostics
	Q        float64
	R        float64
	NISEMA   float64
	BaseR    float64
}

type Result struct {
	// Config is the run configuration with scenario presets resolved.
	Config     Config
	Records    []Record
	Metrics    map[string]float64
	StepsTaken int
}
