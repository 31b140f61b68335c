package metrics

import (
	"math"

	"github.com/san-kum/kftrack/internal/sim"
)

// PositionRMSE is the root mean square of the Euclidean position error
// between estimate and truth.
type PositionRMSE struct {
	name    string
	sumSq   float64
	samples int
}

func NewPositionRMSE() *PositionRMSE {
	return &PositionRMSE{name: "pos_rmse"}
}

func (p *PositionRMSE) Name() string { return p.name }

func (p *PositionRMSE) Observe(rec sim.Record) {
	ex := rec.Estimate.X - rec.Truth.X
	ey := rec.Estimate.Y - rec.Truth.Y
	p.sumSq += ex*ex + ey*ey
	p.samples++
}

func (p *PositionRMSE) Value() float64 {
	if p.samples == 0 {
		return math.NaN()
	}
	return math.Sqrt(p.sumSq / float64(p.samples))
}

func (p *PositionRMSE) Reset() {
	p.sumSq = 0
	p.samples = 0
}

type VelocityRMSE struct {
	name    string
	sumSq   float64
	samples int
}

func NewVelocityRMSE() *VelocityRMSE {
	return &VelocityRMSE{name: "vel_rmse"}
}

func (v *VelocityRMSE) Name() string { return v.name }

func (v *VelocityRMSE) Observe(rec sim.Record) {
	ex := rec.Estimate.VX - rec.Truth.VX
	ey := rec.Estimate.VY - rec.Truth.VY
	v.sumSq += ex*ex + ey*ey
	v.samples++
}

func (v *VelocityRMSE) Value() float64 {
	if v.samples == 0 {
		return math.NaN()
	}
	return math.Sqrt(v.sumSq / float64(v.samples))
}

func (v *VelocityRMSE) Reset() {
	v.sumSq = 0
	v.samples = 0
}

// PositionError returns the per-step Euclidean position error.
func PositionError(records []sim.Record) []float64 {
	out := make([]float64, len(records))
	for i, rec := range records {
		out[i] = math.Hypot(rec.Estimate.X-rec.Truth.X, rec.Estimate.Y-rec.Truth.Y)
	}
	return out
}
