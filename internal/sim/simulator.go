// Package sim runs the tracking loop: scenario, filter and, in adaptive
// mode, the noise tuner, one step at a time.
package sim

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/san-kum/kftrack/internal/kalman"
	"github.com/san-kum/kftrack/internal/logging"
	"github.com/san-kum/kftrack/internal/scenario"
	"github.com/san-kum/kftrack/internal/tuning"
)

type Runner struct {
	cfg       Config
	log       logr.Logger
	metrics   []Metric
	observers []Observer
}

func New(cfg Config) *Runner {
	return &Runner{
		cfg:       cfg,
		log:       logr.Discard(),
		metrics:   make([]Metric, 0),
		observers: make([]Observer, 0),
	}
}

func (r *Runner) WithLogger(log logr.Logger) *Runner {
	r.log = log
	return r
}

func (r *Runner) Config() Config { return r.cfg }

func (r *Runner) AddMetric(m Metric)     { r.metrics = append(r.metrics, m) }
func (r *Runner) AddObserver(o Observer) { r.observers = append(r.observers, o) }

func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if err := r.validateConfig(); err != nil {
		return nil, err
	}

	st := NewStepper(r.cfg)
	cfg := st.Config()
	result := &Result{
		Config:  cfg,
		Records: make([]Record, 0, cfg.Scenario.Steps),
		Metrics: make(map[string]float64),
	}

	for _, m := range r.metrics {
		m.Reset()
	}

	r.log.V(logging.VERBOSE).Info("run starting",
		"mode", cfg.Mode, "scenario", cfg.Scenario.Scenario,
		"seed", cfg.Scenario.Seed, "steps", cfg.Scenario.Steps)

	for i := 0; i < cfg.Scenario.Steps; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		rec := st.Step()

		for _, m := range r.metrics {
			m.Observe(rec)
		}
		for _, obs := range r.observers {
			if err := obs.OnStep(rec); err != nil {
				return result, &StepError{Step: rec.K, Wrapped: err}
			}
		}

		result.Records = append(result.Records, rec)
		result.StepsTaken++

		if rec.Diag.NIS > cfg.Tuner.SpikeNIS {
			r.log.V(logging.DEBUG).Info("nis spike", "k", rec.K, "nis", rec.Diag.NIS, "r", rec.R)
		}
	}

	for _, m := range r.metrics {
		result.Metrics[m.Name()] = m.Value()
	}

	r.log.V(logging.VERBOSE).Info("run finished", "steps", result.StepsTaken, "final_r", st.filter.Config().R)
	return result, nil
}

func (r *Runner) validateConfig() error {
	if err := r.cfg.Scenario.Validate(); err != nil {
		return err
	}
	mode, err := ParseMode(string(r.cfg.Mode))
	if err != nil {
		return err
	}
	if mode == Adaptive {
		if err := r.cfg.Tuner.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// Stepper owns one scenario, filter and tuner and advances them together.
// Runner drives it to completion; the live view drives it frame by frame.
type Stepper struct {
	cfg    Config
	sim    *scenario.Simulator
	filter *kalman.Filter
	tuner  *tuning.Tuner
}

// NewStepper does not validate cfg; the core tolerates bad numbers.
func NewStepper(cfg Config) *Stepper {
	cfg = cfg.Resolved()
	s := scenario.New(cfg.Scenario)
	return &Stepper{
		cfg:    cfg,
		sim:    s,
		filter: kalman.New(cfg.Scenario.Dt, cfg.Filter),
		tuner:  tuning.New(cfg.Tuner),
	}
}

// Config returns the configuration with mode and scenario presets resolved.
func (s *Stepper) Config() Config { return s.cfg }

func (s *Stepper) Mode() Mode { return s.cfg.Mode }

// SetMode switches between baseline and adaptive mid-run. Switching to
// baseline leaves r wherever the tuner last put it.
func (s *Stepper) SetMode(m Mode) { s.cfg.Mode = m }

// Done reports whether the configured number of steps has been produced.
func (s *Stepper) Done() bool { return s.sim.K() >= s.cfg.Scenario.Steps }

func (s *Stepper) Step() Record {
	smp := s.sim.Step()
	d := s.filter.Step(smp.Meas.ZX, smp.Meas.ZY, smp.Meas.Valid)

	if s.cfg.Mode == Adaptive && smp.Meas.Valid {
		s.filter.SetR(s.tuner.Step(d.NIS, s.filter.Config().R))
	}

	fc := s.filter.Config()
	rec := Record{
		K:        smp.K,
		Truth:    smp.Truth,
		Meas:     smp.Meas,
		Estimate: s.filter.State(),
		Diag:     d,
		Q:        fc.Q,
		R:        fc.R,
		BaseR:    s.tuner.BaseR(),
	}
	if s.tuner.HasEMA() {
		rec.NISEMA = s.tuner.NISEMA()
	}
	return rec
}
