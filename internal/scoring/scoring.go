// Package scoring turns aggregate run statistics into a single comparable
// score and decides whether a tuned candidate may replace the baseline.
package scoring

import (
	"fmt"
	"math"

	"github.com/vsoverseer/simcore/internal/models"
)

// minBaseline keeps ImprovementRatio finite when the baseline scores zero.
const minBaseline = 1e-9

// Weights configures how aggregate statistics contribute to a score.
type Weights struct {
	// Objective weights the objective completion rate.
	Objective float64 `json:"objective_completion_weight"`

	// Time weights the mean unlock rate.
	Time float64 `json:"time_to_unlock_weight"`

	// Stability weights the mean stability.
	Stability float64 `json:"stability_weight"`
}

// DefaultWeights returns the default scoring weights.
// Objective 60%, Time 25%, Stability 15%
func DefaultWeights() Weights {
	return Weights{
		Objective: 0.6,
		Time:      0.25,
		Stability: 0.15,
	}
}

// WeightedScore is a score together with its per-component breakdown.
type WeightedScore struct {
	Total     float64 `json:"total"`
	Objective float64 `json:"objective_component"`
	Time      float64 `json:"time_component"`
	Stability float64 `json:"stability_component"`
}

// Score weights the aggregate statistics of a run.
func Score(stats models.AggregateStats, w Weights) WeightedScore {
	objective := float64(stats.ObjectiveRate * w.Objective)
	timeComponent := float64(stats.UnlockRate * w.Time)
	stability := float64(stats.StabilityRate * w.Stability)
	return WeightedScore{
		Total:     objective + timeComponent + stability,
		Objective: objective,
		Time:      timeComponent,
		Stability: stability,
	}
}

// ImprovementRatio returns the relative gain of candidate over baseline.
// A baseline at or below zero is treated as 1e-9.
func ImprovementRatio(candidate, baseline float64) float64 {
	base := math.Max(minBaseline, baseline)
	return (candidate - base) / base
}

// Thresholds gate a promotion.
type Thresholds struct {
	// RequiredImprovement is the minimum ImprovementRatio for promotion.
	RequiredImprovement float64

	// MaxStabilityRegression is the largest tolerated stability drop.
	MaxStabilityRegression float64
}

// Decision reason prefixes.
const (
	ReasonImprovementBelowThreshold = "sim_improvement_below_threshold"
	ReasonStabilityRegression       = "sim_stability_regression_too_high"
	ReasonCanaryPass                = "sim_canary_pass"
)

// CanaryDecision is the outcome of comparing a champion against the
// baseline on fresh canary runs.
type CanaryDecision struct {
	Promote             bool    `json:"promote"`
	Reason              string  `json:"reason"`
	Improvement         float64 `json:"improvement"`
	StabilityRegression float64 `json:"stability_regression"`
}

// Decide compares candidate and baseline canary results. The improvement
// check runs first, so a candidate failing both is reported as below
// threshold.
func Decide(candidate, baseline models.AggregateStats, candidateScore, baselineScore float64, th Thresholds) CanaryDecision {
	improvement := ImprovementRatio(candidateScore, baselineScore)
	regression := math.Max(0, baseline.StabilityRate-candidate.StabilityRate)

	d := CanaryDecision{
		Improvement:         improvement,
		StabilityRegression: regression,
	}
	switch {
	case improvement < th.RequiredImprovement:
		d.Reason = fmt.Sprintf("%s:%.4f", ReasonImprovementBelowThreshold, improvement)
	case regression > th.MaxStabilityRegression:
		d.Reason = fmt.Sprintf("%s:%.4f", ReasonStabilityRegression, regression)
	default:
		d.Promote = true
		d.Reason = ReasonCanaryPass
	}
	return d
}
