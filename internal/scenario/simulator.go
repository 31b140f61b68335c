// Package scenario generates ground truth and sensor measurements for a
// single target moving at constant velocity.
//
// The truth is noiseless: the simulator represents the real dynamics and all
// uncertainty enters through the measurement channel (Gaussian noise,
// missed detections and uniform clutter). Every random draw comes from one
// owned [rng.Stream], so a seed and a [Config] fully determine the output.
package scenario

import "github.com/san-kum/kftrack/internal/rng"

var initialTruth = TruthState{X: 0, Y: 0, VX: 1, VY: 0.5}

type Simulator struct {
	cfg   Config
	truth TruthState
	rng   *rng.Stream
	k     int
}

// New resolves scenario presets and seeds the stream. It never fails;
// callers that need to reject bad input use Config.Validate first.
func New(cfg Config) *Simulator {
	cfg = cfg.Resolve()
	return &Simulator{
		cfg:   cfg,
		truth: initialTruth,
		rng:   rng.New(cfg.Seed),
	}
}

// Config returns the resolved configuration the simulator runs with.
func (s *Simulator) Config() Config { return s.cfg }

func (s *Simulator) Truth() TruthState { return s.truth }

// K is the index of the next sample Step will produce.
func (s *Simulator) K() int { return s.k }

func (s *Simulator) Step() Sample {
	s.truth.X += s.truth.VX * s.cfg.Dt
	s.truth.Y += s.truth.VY * s.cfg.Dt

	if s.cfg.Scenario == Maneuver && s.k == s.cfg.Steps/2 {
		s.truth.VX *= ManeuverScaleVX
		s.truth.VY *= ManeuverScaleVY
	}

	out := Sample{K: s.k, Truth: s.truth}

	if s.rng.Float64() < s.cfg.PDetect {
		zx := s.truth.X + s.cfg.SigmaZ*s.rng.Normal()
		zy := s.truth.Y + s.cfg.SigmaZ*s.rng.Normal()

		// clutter replaces the return entirely
		if s.cfg.ClutterProb > 0 && s.rng.Float64() < s.cfg.ClutterProb {
			zx = s.rng.Uniform(-s.cfg.ClutterRange, s.cfg.ClutterRange)
			zy = s.rng.Uniform(-s.cfg.ClutterRange, s.cfg.ClutterRange)
		}
		out.Meas = Measurement{ZX: zx, ZY: zy, Valid: true}
	}

	s.k++
	return out
}
