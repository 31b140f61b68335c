package metrics

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/kftrack/internal/sim"
)

// ExpectedNIS is the mean NIS of a consistent filter with a 2D measurement.
const ExpectedNIS = 2.0

// NISMean averages NIS over every step, including steps without a
// measurement, which report zero.
type NISMean struct {
	name   string
	values []float64
}

func NewNISMean() *NISMean {
	return &NISMean{name: "nis_mean"}
}

func (n *NISMean) Name() string { return n.name }

func (n *NISMean) Observe(rec sim.Record) { n.values = append(n.values, rec.Diag.NIS) }

func (n *NISMean) Value() float64 {
	if len(n.values) == 0 {
		return math.NaN()
	}
	return stat.Mean(n.values, nil)
}

func (n *NISMean) Reset() { n.values = n.values[:0] }

// NISMeanError is the signed distance of mean NIS from ExpectedNIS.
type NISMeanError struct {
	NISMean
}

func NewNISMeanError() *NISMeanError {
	return &NISMeanError{NISMean{name: "nis_mean_error_vs_2"}}
}

func (n *NISMeanError) Value() float64 {
	return n.NISMean.Value() - ExpectedNIS
}

// NISQuantile reports the p-quantile of NIS over the run.
type NISQuantile struct {
	name   string
	p      float64
	values []float64
}

// NewNISQuantile names the metric nis_pXX from p in [0,1].
func NewNISQuantile(p float64) *NISQuantile {
	return &NISQuantile{
		name: fmt.Sprintf("nis_p%d", int(math.Round(p*100))),
		p:    p,
	}
}

func (n *NISQuantile) Name() string { return n.name }

func (n *NISQuantile) Observe(rec sim.Record) { n.values = append(n.values, rec.Diag.NIS) }

func (n *NISQuantile) Value() float64 {
	return Quantile(n.values, n.p)
}

func (n *NISQuantile) Reset() { n.values = n.values[:0] }

// Quantile returns the p-quantile of xs without modifying it, interpolating
// linearly between order statistics at rank (n-1)p.
func Quantile(xs []float64, p float64) float64 {
	if len(xs) == 0 || math.IsNaN(p) {
		return math.NaN()
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	h := float64(len(sorted)-1) * math.Max(0, math.Min(1, p))
	lo := int(math.Floor(h))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}
