package simulation

import (
	"math"
	"testing"

	"github.com/vsoverseer/simcore/internal/models"
)

// AssertEpisodeRanges asserts that every episode field lies within its
// documented bounds.
func AssertEpisodeRanges(t *testing.T, episodes []models.Episode) {
	t.Helper()
	for i, ep := range episodes {
		if ep.UnlockRate < 0 || ep.UnlockRate > 1 {
			t.Errorf("AssertEpisodeRanges: episode %d: unlock_rate %.6f not in [0, 1]", i, ep.UnlockRate)
		}
		if ep.Stability < 0 || ep.Stability > 1 {
			t.Errorf("AssertEpisodeRanges: episode %d: stability %.6f not in [0, 1]", i, ep.Stability)
		}
		if ep.ElapsedS < MinElapsedS || ep.ElapsedS > MaxElapsedS {
			t.Errorf("AssertEpisodeRanges: episode %d: elapsed_s %.6f not in [%.0f, %.0f]", i, ep.ElapsedS, MinElapsedS, MaxElapsedS)
		}
	}
}

// AssertAggregateMatches asserts that stats equals the arithmetic means of
// episodes, within tol.
func AssertAggregateMatches(t *testing.T, episodes []models.Episode, stats models.AggregateStats, tol float64) {
	t.Helper()
	if stats.Episodes != len(episodes) {
		t.Errorf("AssertAggregateMatches: episodes = %d, want %d", stats.Episodes, len(episodes))
		return
	}
	if len(episodes) == 0 {
		return
	}

	var completed, unlock, stability, elapsed float64
	for _, ep := range episodes {
		if ep.ObjectiveComplete {
			completed++
		}
		unlock += ep.UnlockRate
		stability += ep.Stability
		elapsed += ep.ElapsedS
	}
	n := float64(len(episodes))

	check := func(field string, got, want float64) {
		if math.Abs(got-want) > tol {
			t.Errorf("AssertAggregateMatches: %s = %.9f, want %.9f", field, got, want)
		}
	}
	check("objective_rate", stats.ObjectiveRate, completed/n)
	check("unlock_rate", stats.UnlockRate, unlock/n)
	check("stability_rate", stats.StabilityRate, stability/n)
	check("mean_elapsed_s", stats.MeanElapsedS, elapsed/n)
}
