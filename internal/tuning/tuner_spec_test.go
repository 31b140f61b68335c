package tuning

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Tuner", func() {
	var cfg Config

	BeforeEach(func() {
		cfg = DefaultConfig()
	})

	Describe("deadband policy", func() {
		It("should hold r when the smoothed NIS is inside the band", func() {
			t := New(cfg)
			Expect(t.Step(2.1, 4.0)).To(Equal(4.0))
			Expect(t.NISEMA()).To(BeNumerically("~", 2.1, 1e-12))
		})

		It("should raise r when the filter is overconfident", func() {
			t := New(cfg)
			Expect(t.Step(10, 4.0)).To(BeNumerically(">", 4.0))
		})

		It("should lower r when the filter is underconfident", func() {
			t := New(cfg)
			Expect(t.Step(0.1, 4.0)).To(BeNumerically("<", 4.0))
		})

		It("should drift r down steadily on a run of small NIS", func() {
			t := New(cfg)
			r := 50.0
			for i := 0; i < 500; i++ {
				next := t.Step(0.5, r)
				Expect(next).To(BeNumerically("<=", r))
				r = next
			}
			Expect(r).To(BeNumerically("<", 50.0))
			Expect(r).To(BeNumerically(">=", cfg.RMin))
		})
	})

	Describe("baseline floor policy", func() {
		BeforeEach(func() {
			cfg.Policy = BaselineFloor
		})

		It("should never return less than the first r", func() {
			t := New(cfg)
			seq := []float64{0, 0.01, 300, 1.9, 0.2, 80, 0, 0, 0, 3.1, 1000, 0.4}
			r := 3.0
			for i := 0; i < 40; i++ {
				r = t.Step(seq[i%len(seq)], r)
				Expect(r).To(BeNumerically(">=", 3.0))
			}
			Expect(t.BaseR()).To(Equal(3.0))
		})

		It("should snap back to the baseline once activation lapses", func() {
			t := New(cfg)
			Expect(t.Step(1.0, 3.0)).To(Equal(3.0))
			Expect(t.Step(1.0, 7.0)).To(Equal(3.0))
		})

		It("should raise r above activation", func() {
			t := New(cfg)
			Expect(t.Step(4.0, 3.0)).To(BeNumerically(">", 3.0))
		})
	})

	Describe("spikes", func() {
		for _, p := range []Policy{Deadband, BaselineFloor} {
			policy := p
			It("should strictly raise r within the same call under "+string(policy), func() {
				cfg.Policy = policy
				t := New(cfg)
				// settle the EMA low first
				r := 4.0
				for i := 0; i < 50; i++ {
					r = t.Step(0.3, r)
				}
				Expect(t.Step(1000, r)).To(BeNumerically(">", r))
			})
		}

		It("should bound the bump to 2x even with aggressive gain", func() {
			cfg.SpikeGain = 5
			cfg.Gain = 0
			t := New(cfg)
			Expect(t.Step(1e9, 4.0)).To(BeNumerically("<=", 8.0))
		})
	})

	Describe("input normalisation", func() {
		DescribeTable("should return a finite r inside bounds",
			func(nis, r float64) {
				t := New(cfg)
				got := t.Step(nis, r)
				Expect(math.IsNaN(got)).To(BeFalse())
				Expect(got).To(BeNumerically(">=", cfg.RMin))
				Expect(got).To(BeNumerically("<=", cfg.RMax))
			},
			Entry("NaN nis", math.NaN(), 4.0),
			Entry("negative nis", -3.0, 4.0),
			Entry("infinite nis", math.Inf(1), 4.0),
			Entry("NaN r", 2.0, math.NaN()),
			Entry("zero r", 2.0, 0.0),
			Entry("negative r", 2.0, -1.0),
		)
	})

	Describe("Reset", func() {
		It("should forget the EMA and the baseline", func() {
			t := New(cfg)
			t.Step(5, 4.0)
			Expect(t.HasEMA()).To(BeTrue())

			t.Reset()
			Expect(t.HasEMA()).To(BeFalse())
			Expect(t.NISEMA()).To(BeZero())
			Expect(t.BaseR()).To(BeZero())
		})
	})
})
