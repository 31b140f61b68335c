// Package rng provides the counter-seeded random stream behind the scenario
// simulator.
//
// A [Stream] is a SplitMix64 generator: one 64-bit counter advanced by a
// fixed odd increment and passed through an avalanche mix for every drawn
// value. Given the same seed and call sequence it produces the same values
// on every platform, which is what makes simulated runs bit-reproducible.
//
// Streams are plain values owned by their caller; there is no package-level
// generator.
package rng

import "math"

const (
	increment = 0x9e3779b97f4a7c15
	mix1      = 0xbf58476d1ce4e5b9
	mix2      = 0x94d049bb133111eb

	// MinUniform keeps the Box-Muller logarithm finite.
	MinUniform = 1e-12
)

const twoPow32 = 4294967296.0

type Stream struct {
	state uint64
}

func New(seed uint64) *Stream {
	return &Stream{state: seed}
}

func (s *Stream) next() uint64 {
	s.state += increment
	z := s.state
	z = (z ^ (z >> 30)) * mix1
	z = (z ^ (z >> 27)) * mix2
	return z ^ (z >> 31)
}

// Uint32 advances the stream once and returns the low word of the mixed output.
func (s *Stream) Uint32() uint32 {
	return uint32(s.next() & 0xFFFFFFFF)
}

// Float64 returns a uniform deviate in [0,1).
func (s *Stream) Float64() float64 {
	return float64(s.Uint32()) / twoPow32
}

// Uniform returns a uniform deviate in [a,b).
func (s *Stream) Uniform(a, b float64) float64 {
	return a + (b-a)*s.Float64()
}

// Normal returns a standard Gaussian deviate. Each call consumes two
// uniforms; the paired sine value is discarded.
func (s *Stream) Normal() float64 {
	u1 := s.Float64()
	u2 := s.Float64()
	if u1 < MinUniform {
		u1 = MinUniform
	}
	r := math.Sqrt(-2.0 * math.Log(u1))
	return r * math.Cos(2.0*math.Pi*u2)
}
