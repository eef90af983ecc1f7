package simulation

import (
	"math"

	"github.com/vsoverseer/simcore/internal/models"
	"github.com/vsoverseer/simcore/internal/rng"
)

// DrawsPerEpisode is the number of generator draws RunEpisode consumes.
const DrawsPerEpisode = 4

// Output bounds.
const (
	MinElapsedS = 80.0
	MaxElapsedS = 2000.0

	minObjectiveP = 0.01
	maxObjectiveP = 0.99
)

// RunEpisode produces one episode for traits, advancing g by exactly
// DrawsPerEpisode draws in this order: unlock noise, stability noise,
// objective roll, elapsed-time noise.
//
// Every product is wrapped in float64() so the compiler cannot fuse it into
// a multiply-add; results are bit-identical across architectures.
func RunEpisode(traits models.TraitProfile, g *rng.Generator) models.Episode {
	t := traits

	unlockNoise := g.Range(-0.08, 0.08)
	unlock := float64(0.42*t.Aggression) +
		float64(0.36*t.Greed) +
		float64(0.20*t.Focus) -
		float64(0.10*math.Max(t.Safety-0.72, 0)) +
		unlockNoise
	unlock = models.Clamp(unlock, 0, 1)

	stabilityNoise := g.Range(-0.06, 0.06)
	stability := float64(0.62*t.Safety) +
		float64(0.22*t.Focus) -
		float64(0.12*math.Abs(t.Aggression-t.Greed)) -
		float64(0.08*math.Max(t.Aggression-0.82, 0)) +
		stabilityNoise
	stability = models.Clamp(stability, 0, 1)

	objectiveP := models.Clamp(0.18+float64(0.58*unlock)+float64(0.24*stability), minObjectiveP, maxObjectiveP)
	objectiveComplete := g.Float64() < objectiveP

	// The elapsed noise range is asymmetric on purpose; keep it as is.
	elapsedNoise := g.Range(-0.08, 0.05)
	elapsed := 1800.0 * (1.0 - float64(0.65*unlock))
	elapsed = float64(elapsed * (1.0 + elapsedNoise))
	elapsed = models.Clamp(elapsed, MinElapsedS, MaxElapsedS)

	return models.Episode{
		UnlockRate:        unlock,
		ObjectiveComplete: objectiveComplete,
		Stability:         stability,
		ElapsedS:          elapsed,
	}
}
