package metrics

import (
	"math"

	"github.com/san-kum/kftrack/internal/sim"
)

// DetectRate is the fraction of steps that carried a valid measurement.
type DetectRate struct {
	name     string
	detected int
	samples  int
}

func NewDetectRate() *DetectRate {
	return &DetectRate{name: "detect_rate"}
}

func (d *DetectRate) Name() string { return d.name }

func (d *DetectRate) Observe(rec sim.Record) {
	d.samples++
	if rec.Meas.Valid {
		d.detected++
	}
}

func (d *DetectRate) Value() float64 {
	if d.samples == 0 {
		return math.NaN()
	}
	return float64(d.detected) / float64(d.samples)
}

func (d *DetectRate) Reset() {
	d.detected = 0
	d.samples = 0
}

// FinalR is the measurement variance in effect after the last step.
type FinalR struct {
	name string
	r    float64
	seen bool
}

func NewFinalR() *FinalR {
	return &FinalR{name: "final_r"}
}

func (f *FinalR) Name() string { return f.name }

func (f *FinalR) Observe(rec sim.Record) {
	f.r = rec.R
	f.seen = true
}

func (f *FinalR) Value() float64 {
	if !f.seen {
		return math.NaN()
	}
	return f.r
}

func (f *FinalR) Reset() {
	f.r = 0
	f.seen = false
}
