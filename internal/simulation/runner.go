package simulation

import (
	"github.com/vsoverseer/simcore/internal/models"
	"github.com/vsoverseer/simcore/internal/rng"
)

// EpisodeObserver is called once per episode, in generation order, as soon
// as the episode exists. index is zero-based.
type EpisodeObserver func(index int, ep models.Episode)

// Run seeds a fresh generator and produces count episodes for traits.
// count must be at least 1; boundary layers normalize it before calling.
// observer may be nil.
func Run(traits models.TraitProfile, seed uint64, count int, observer EpisodeObserver) models.Batch {
	return RunWith(traits, rng.New(seed), count, observer)
}

// RunWith produces count episodes drawing from g, which keeps advancing
// across calls. All episodes in the batch share g.
func RunWith(traits models.TraitProfile, g *rng.Generator, count int, observer EpisodeObserver) models.Batch {
	episodes := make([]models.Episode, 0, count)
	for i := 0; i < count; i++ {
		ep := RunEpisode(traits, g)
		episodes = append(episodes, ep)
		if observer != nil {
			observer(i, ep)
		}
	}
	return models.Batch{
		Episodes:  episodes,
		Aggregate: Aggregate(episodes),
	}
}

// Aggregate folds episodes into summary statistics. Each field is summed in
// generation order and divided by the episode count; a completed objective
// counts as 1.0. An empty slice yields zero rates.
func Aggregate(episodes []models.Episode) models.AggregateStats {
	var acc Accumulator
	for _, ep := range episodes {
		acc.Add(ep)
	}
	return acc.Stats()
}

// Accumulator keeps running sums so callers that stream episodes can
// aggregate without holding the sequence.
type Accumulator struct {
	count        int
	objectiveSum float64
	unlockSum    float64
	stabilitySum float64
	elapsedSum   float64
}

// Add folds one episode into the sums.
func (a *Accumulator) Add(ep models.Episode) {
	a.count++
	if ep.ObjectiveComplete {
		a.objectiveSum += 1.0
	}
	a.unlockSum += ep.UnlockRate
	a.stabilitySum += ep.Stability
	a.elapsedSum += ep.ElapsedS
}

// Count returns the number of episodes added so far.
func (a *Accumulator) Count() int {
	return a.count
}

// Stats normalizes the sums into rates and means.
func (a *Accumulator) Stats() models.AggregateStats {
	if a.count == 0 {
		return models.AggregateStats{}
	}
	n := float64(a.count)
	return models.AggregateStats{
		Episodes:      a.count,
		ObjectiveRate: a.objectiveSum / n,
		UnlockRate:    a.unlockSum / n,
		StabilityRate: a.stabilitySum / n,
		MeanElapsedS:  a.elapsedSum / n,
	}
}
