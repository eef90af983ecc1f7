// Package rng provides the deterministic pseudo-random generator that drives
// every simulated episode.
//
// The generator is a 64-bit linear congruential generator. Its multiplier,
// increment, zero-seed substitute and float extraction are fixed: changing any
// of them changes every simulated run, so they are part of the output contract.
// It is not safe for concurrent use; each goroutine needs its own Generator.
package rng

import "math"

const (
	// ZeroSeed replaces a seed of 0, which is a degenerate starting point.
	ZeroSeed uint64 = 0x9e3779b97f4a7c15

	multiplier uint64 = 6364136223846793005
	increment  uint64 = 1442695040888963407

	// float53 is 2^53, the denominator for 53-bit uniform doubles.
	float53 = float64(1 << 53)
)

// Generator holds the evolving 64-bit state.
type Generator struct {
	state uint64
}

// New returns a Generator seeded with seed, substituting ZeroSeed for 0.
func New(seed uint64) *Generator {
	if seed == 0 {
		seed = ZeroSeed
	}
	return &Generator{state: seed}
}

// State returns the current internal state.
func (g *Generator) State() uint64 {
	return g.state
}

// Uint64 advances the state and returns it. Arithmetic wraps modulo 2^64.
// Uint64 also makes Generator a math/rand/v2 Source.
func (g *Generator) Uint64() uint64 {
	g.state = g.state*multiplier + increment
	return g.state
}

// Float64 returns a uniform value in [0, 1) built from the top 53 bits of
// the next Uint64 draw.
func (g *Generator) Float64() float64 {
	return float64(g.Uint64()>>11) / float53
}

// Range returns a uniform value in [lo, hi).
func (g *Generator) Range(lo, hi float64) float64 {
	// The explicit conversion keeps the compiler from fusing the
	// multiply-add, which would change results on arm64.
	return lo + float64((hi-lo)*g.Float64())
}

// NormFloat64 returns a standard normal value using the Box-Muller
// transform. It consumes exactly two Float64 draws.
func (g *Generator) NormFloat64() float64 {
	u1 := g.Float64()
	u2 := g.Float64()
	// Float64 may return 0; shift into (0, 1] before taking the log.
	r := math.Sqrt(-2 * math.Log(1-u1))
	return r * math.Cos(2*math.Pi*u2)
}
