package tuning

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/vsoverseer/simcore/internal/models"
	"github.com/vsoverseer/simcore/internal/scoring"
	"github.com/vsoverseer/simcore/internal/simulation"
)

// Result is a scored candidate.
type Result struct {
	CandidateID string                `json:"candidate_id"`
	Traits      models.TraitProfile   `json:"traits"`
	Seed        uint64                `json:"seed"`
	Metrics     models.AggregateStats `json:"metrics"`
	Score       float64               `json:"score"`
}

// EvalOptions configures EvaluatePopulation.
type EvalOptions struct {
	// Episodes per candidate batch.
	Episodes int

	// SeedBase seeds candidate i with SeedBase+i.
	SeedBase uint64

	// Workers bounds concurrent candidate batches.
	Workers int

	Weights scoring.Weights

	// OnEpisode, if set, is called once per simulated episode. It may be
	// called from several goroutines at once.
	OnEpisode func()
}

// EvaluatePopulation runs one batch per candidate and returns the results
// sorted by score descending, ties broken by candidate ID. Each candidate
// owns its generator, so results do not depend on Workers or scheduling.
func EvaluatePopulation(ctx context.Context, population []Candidate, opts EvalOptions) ([]Result, error) {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	episodes := opts.Episodes
	if episodes < 1 {
		episodes = 1
	}

	var observer simulation.EpisodeObserver
	if opts.OnEpisode != nil {
		observer = func(int, models.Episode) { opts.OnEpisode() }
	}

	results := make([]Result, len(population))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for idx, c := range population {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			seed := opts.SeedBase + uint64(idx)
			batch := simulation.Run(c.Traits, seed, episodes, observer)
			results[idx] = Result{
				CandidateID: c.ID,
				Traits:      c.Traits,
				Seed:        seed,
				Metrics:     batch.Aggregate,
				Score:       scoring.Score(batch.Aggregate, opts.Weights).Total,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	SortResults(results)
	return results, nil
}

// SortResults orders results by score descending, then by candidate ID.
func SortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CandidateID < results[j].CandidateID
	})
}
