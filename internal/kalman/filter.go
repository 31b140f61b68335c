// Package kalman implements a constant-velocity Kalman filter for a single
// target in the plane.
//
// The state is [x, y, vx, vy] with a full 4x4 covariance. Measurements
// observe position only. Every [Filter.Step] predicts; steps that carry a
// measurement also update. Diagnostics (innovation, innovation variance and
// NIS) are computed against the predicted state so they can drive the
// adaptive noise tuner.
//
// Numerical hygiene is part of the contract: q and r are floored before use,
// innovation variances are floored before inversion, and the covariance is
// re-symmetrized with a floored diagonal at the end of every step.
package kalman

import "math"

const (
	// NoiseFloor bounds q and r from below before they enter arithmetic.
	NoiseFloor = 1e-9
	// CovFloor is the minimum covariance diagonal after every step.
	CovFloor = 1e-9
	// InnovFloor bounds innovation variances before inversion.
	InnovFloor = 1e-12
)

const (
	DefaultQ          = 1.0
	DefaultR          = 4.0
	DefaultInitPosVar = 100.0
	DefaultInitVelVar = 10.0
)

// Config holds the noise model. Q is the process-noise spectral density
// (white acceleration), R the per-axis measurement variance.
type Config struct {
	Q          float64 `yaml:"q" json:"q"`
	R          float64 `yaml:"r" json:"r"`
	InitPosVar float64 `yaml:"init_pos_var" json:"init_pos_var"`
	InitVelVar float64 `yaml:"init_vel_var" json:"init_vel_var"`
}

func DefaultConfig() Config {
	return Config{
		Q:          DefaultQ,
		R:          DefaultR,
		InitPosVar: DefaultInitPosVar,
		InitVelVar: DefaultInitVelVar,
	}
}

type State struct {
	X, Y, VX, VY float64
}

// Diagnostics describes one step. Innovation and NIS are zero when the step
// had no measurement; Sx and Sy are always reported.
type Diagnostics struct {
	YX, YY  float64
	Sx, Sy  float64
	NIS     float64
	Prior   State
	Updated bool
}

type Filter struct {
	dt  float64
	cfg Config
	st  State
	p   Mat4
	f   Mat4
	ft  Mat4
}

func New(dt float64, cfg Config) *Filter {
	posVar := orDefault(cfg.InitPosVar, DefaultInitPosVar)
	velVar := orDefault(cfg.InitVelVar, DefaultInitVelVar)
	f := transition(dt)
	return &Filter{
		dt:  dt,
		cfg: cfg,
		p:   Diag4(posVar, posVar, velVar, velVar),
		f:   f,
		ft:  f.T(),
	}
}

func (f *Filter) Config() Config { return f.cfg }

// SetR replaces the measurement variance used from the next step on.
func (f *Filter) SetR(r float64) { f.cfg.R = r }

func (f *Filter) State() State { return f.st }

func (f *Filter) Covariance() Mat4 { return f.p }

func (f *Filter) Dt() float64 { return f.dt }

// Step runs predict and, when hasMeas is set, update with (zx, zy).
func (f *Filter) Step(zx, zy float64, hasMeas bool) Diagnostics {
	f.predict()

	r := noise(f.cfg.R)
	d := Diagnostics{
		Prior: f.st,
		Sx:    f.p[0][0] + r,
		Sy:    f.p[1][1] + r,
	}

	if hasMeas {
		invSx := 1.0 / math.Max(InnovFloor, d.Sx)
		invSy := 1.0 / math.Max(InnovFloor, d.Sy)

		d.YX = zx - f.st.X
		d.YY = zy - f.st.Y
		d.NIS = d.YX*d.YX*invSx + d.YY*d.YY*invSy
		d.Updated = true

		f.update(d.YX, d.YY, invSx, invSy)
	}

	f.p.Symmetrize(CovFloor)
	return d
}

func (f *Filter) predict() {
	f.st.X += f.st.VX * f.dt
	f.st.Y += f.st.VY * f.dt

	q := noise(f.cfg.Q)
	f.p = f.f.Mul(f.p).Mul(f.ft).Add(processNoise(f.dt, q))
}

// update applies the correction with a diagonal innovation covariance.
// H selects [x, y], so K is built from P's first two columns.
func (f *Filter) update(yx, yy, invSx, invSy float64) {
	var k [4][2]float64
	for i := 0; i < 4; i++ {
		k[i][0] = f.p[i][0] * invSx
		k[i][1] = f.p[i][1] * invSy
	}

	f.st.X += k[0][0]*yx + k[0][1]*yy
	f.st.Y += k[1][0]*yx + k[1][1]*yy
	f.st.VX += k[2][0]*yx + k[2][1]*yy
	f.st.VY += k[3][0]*yx + k[3][1]*yy

	// P' = (I - KH) P; (KH P)[i][j] = K[i][0] P[0][j] + K[i][1] P[1][j]
	var next Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			next[i][j] = f.p[i][j] - k[i][0]*f.p[0][j] - k[i][1]*f.p[1][j]
		}
	}
	f.p = next
}

func noise(v float64) float64 {
	return floor(v, NoiseFloor)
}

func orDefault(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return def
	}
	return v
}

// floor returns v if it is finite and at least min, otherwise min.
func floor(v, min float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < min {
		return min
	}
	return v
}
