package simulation

import (
	"testing"

	"github.com/vsoverseer/simcore/internal/models"
	"github.com/vsoverseer/simcore/internal/rng"
)

func TestRun_Deterministic(t *testing.T) {
	traits := models.NewTraitProfile(0.7, 0.3, 0.6, 0.9)

	a := Run(traits, 424242, 250, nil)
	b := Run(traits, 424242, 250, nil)

	if len(a.Episodes) != len(b.Episodes) {
		t.Fatalf("episode counts differ: %d vs %d", len(a.Episodes), len(b.Episodes))
	}
	for i := range a.Episodes {
		if a.Episodes[i] != b.Episodes[i] {
			t.Fatalf("episode %d differs: %+v vs %+v", i, a.Episodes[i], b.Episodes[i])
		}
	}
	if a.Aggregate != b.Aggregate {
		t.Errorf("aggregates differ: %+v vs %+v", a.Aggregate, b.Aggregate)
	}
}

func TestRun_SeedZeroMatchesSubstitute(t *testing.T) {
	traits := models.DefaultTraits()
	zero := Run(traits, 0, 20, nil)
	sub := Run(traits, rng.ZeroSeed, 20, nil)

	for i := range zero.Episodes {
		if zero.Episodes[i] != sub.Episodes[i] {
			t.Fatalf("episode %d differs between seed 0 and substitute seed", i)
		}
	}
}

func TestRun_SharesOneGenerator(t *testing.T) {
	// Episode k of a long run must equal a single episode produced after
	// advancing a fresh generator by k episodes' worth of draws.
	traits := models.NewTraitProfile(0.2, 0.8, 0.4, 0.6)
	batch := Run(traits, 17, 5, nil)

	g := rng.New(17)
	for i := 0; i < 3*DrawsPerEpisode; i++ {
		g.Uint64()
	}
	if got := RunEpisode(traits, g); got != batch.Episodes[3] {
		t.Errorf("episode 3 = %+v, want %+v", batch.Episodes[3], got)
	}
}

func TestRun_PrefixStable(t *testing.T) {
	traits := models.DefaultTraits()
	short := Run(traits, 8, 10, nil)
	long := Run(traits, 8, 40, nil)

	for i := range short.Episodes {
		if short.Episodes[i] != long.Episodes[i] {
			t.Fatalf("episode %d changed when the run was extended", i)
		}
	}
}

func TestRun_SeedOneThreeEpisodes(t *testing.T) {
	batch := Run(models.DefaultTraits(), 1, 3, nil)

	wantComplete := []bool{false, true, false}
	for i, want := range wantComplete {
		if batch.Episodes[i].ObjectiveComplete != want {
			t.Errorf("episode %d objective_complete = %v, want %v", i, batch.Episodes[i].ObjectiveComplete, want)
		}
	}
	if batch.Aggregate.Episodes != 3 {
		t.Errorf("aggregate episodes = %d, want 3", batch.Aggregate.Episodes)
	}
	if batch.Aggregate.ObjectiveRate != 1.0/3.0 {
		t.Errorf("objective_rate = %v, want 1/3", batch.Aggregate.ObjectiveRate)
	}
}

func TestRun_ObserverOrder(t *testing.T) {
	var seen []int
	var observed []models.Episode
	batch := Run(models.DefaultTraits(), 3, 12, func(i int, ep models.Episode) {
		seen = append(seen, i)
		observed = append(observed, ep)
	})

	if len(seen) != 12 {
		t.Fatalf("observer called %d times, want 12", len(seen))
	}
	for i := range seen {
		if seen[i] != i {
			t.Errorf("observer call %d got index %d", i, seen[i])
		}
		if observed[i] != batch.Episodes[i] {
			t.Errorf("observer episode %d differs from batch", i)
		}
	}
}

func TestRunWith_ContinuesGenerator(t *testing.T) {
	traits := models.DefaultTraits()
	g := rng.New(55)
	first := RunWith(traits, g, 4, nil)
	second := RunWith(traits, g, 4, nil)

	whole := Run(traits, 55, 8, nil)
	for i := 0; i < 4; i++ {
		if first.Episodes[i] != whole.Episodes[i] {
			t.Errorf("first half episode %d differs", i)
		}
		if second.Episodes[i] != whole.Episodes[i+4] {
			t.Errorf("second half episode %d differs", i)
		}
	}
}

func TestAggregate_MatchesMeans(t *testing.T) {
	cases := []struct {
		seed   uint64
		count  int
		traits models.TraitProfile
	}{
		{1, 1, models.DefaultTraits()},
		{2, 10, models.NewTraitProfile(0.9, 0.1, 0.3, 0.7)},
		{3, 333, models.NewTraitProfile(0.4, 0.4, 0.9, 0.2)},
	}

	for _, c := range cases {
		batch := Run(c.traits, c.seed, c.count, nil)
		AssertAggregateMatches(t, batch.Episodes, batch.Aggregate, 1e-12)
	}
}

func TestAggregate_Handcrafted(t *testing.T) {
	episodes := []models.Episode{
		{UnlockRate: 0.5, ObjectiveComplete: true, Stability: 0.25, ElapsedS: 100},
		{UnlockRate: 0.25, ObjectiveComplete: false, Stability: 0.75, ElapsedS: 300},
	}
	got := Aggregate(episodes)
	want := models.AggregateStats{
		Episodes:      2,
		ObjectiveRate: 0.5,
		UnlockRate:    0.375,
		StabilityRate: 0.5,
		MeanElapsedS:  200,
	}
	if got != want {
		t.Errorf("Aggregate = %+v, want %+v", got, want)
	}
}

func TestAggregate_Empty(t *testing.T) {
	if got := Aggregate(nil); got != (models.AggregateStats{}) {
		t.Errorf("Aggregate(nil) = %+v, want zero value", got)
	}
}

func TestAccumulator_Streaming(t *testing.T) {
	batch := Run(models.DefaultTraits(), 21, 50, nil)

	var acc Accumulator
	for _, ep := range batch.Episodes {
		acc.Add(ep)
	}
	if acc.Count() != 50 {
		t.Errorf("Count = %d, want 50", acc.Count())
	}
	if acc.Stats() != batch.Aggregate {
		t.Errorf("streamed stats %+v differ from batch %+v", acc.Stats(), batch.Aggregate)
	}
}
