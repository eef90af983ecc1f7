// Package tuning searches trait space for better policies. A generation
// perturbs the active traits into a population, scores every candidate on
// an independently seeded batch, and promotes the champion only when it
// beats the baseline on fresh canary runs.
package tuning

import (
	"fmt"

	"github.com/vsoverseer/simcore/internal/models"
	"github.com/vsoverseer/simcore/internal/rng"
)

// BaselineID names the unperturbed candidate in every population.
const BaselineID = "baseline"

// Mutation widths. The first half of a population explores with the wide
// sigma, the rest refines with the narrow one.
const (
	WideSigma   = 0.16
	NarrowSigma = 0.09
)

// Candidate is one member of a population.
type Candidate struct {
	ID     string              `json:"id"`
	Traits models.TraitProfile `json:"traits"`
}

// GeneratePopulation returns size candidates (at least 2): the clamped base
// traits followed by gaussian mutants. All noise comes from one generator
// seeded with generationSeed, drawn in trait order per mutant, so the same
// inputs always yield the same population.
func GeneratePopulation(base models.TraitProfile, generationSeed uint64, size int) []Candidate {
	if size < 2 {
		size = 2
	}

	g := rng.New(generationSeed)
	population := make([]Candidate, 0, size)
	population = append(population, Candidate{ID: BaselineID, Traits: base.Clamp()})

	for i := 1; i < size; i++ {
		sigma := NarrowSigma
		if i < size/2 {
			sigma = WideSigma
		}
		// Struct fields are evaluated in order, keeping the draw order fixed.
		traits := models.TraitProfile{
			Aggression: base.Aggression + float64(g.NormFloat64()*sigma),
			Greed:      base.Greed + float64(g.NormFloat64()*sigma),
			Safety:     base.Safety + float64(g.NormFloat64()*sigma),
			Focus:      base.Focus + float64(g.NormFloat64()*sigma),
		}
		population = append(population, Candidate{
			ID:     fmt.Sprintf("mutant-%02d", i),
			Traits: traits.Clamp(),
		})
	}
	return population
}
