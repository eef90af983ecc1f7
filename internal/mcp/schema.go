package mcp

import (
	"time"

	"github.com/vsoverseer/simcore/internal/models"
	"github.com/vsoverseer/simcore/internal/scoring"
)

// SimulateInput defines the input for the simcore_simulate tool. Omitted
// fields take the configured defaults; traits are clamped into [0, 1]. The
// individual trait fields take precedence over the Traits object.
type SimulateInput struct {
	Episodes        int            `json:"episodes,omitempty" jsonschema:"Number of episodes to generate (default 10)"`
	Seed            *uint64        `json:"seed,omitempty" jsonschema:"Generator seed (default 1)"`
	Traits          map[string]any `json:"traits,omitempty" jsonschema:"Trait object keyed by aggression, greed, safety and focus; non-numeric values become 0.5"`
	Aggression      *float64       `json:"aggression,omitempty" jsonschema:"Aggression trait in [0, 1] (default 0.5)"`
	Greed           *float64       `json:"greed,omitempty" jsonschema:"Greed trait in [0, 1] (default 0.5)"`
	Safety          *float64       `json:"safety,omitempty" jsonschema:"Safety trait in [0, 1] (default 0.5)"`
	Focus           *float64       `json:"focus,omitempty" jsonschema:"Focus trait in [0, 1] (default 0.5)"`
	IncludeEpisodes bool           `json:"include_episodes,omitempty" jsonschema:"Return every episode, not just the aggregate"`
	Record          bool           `json:"record,omitempty" jsonschema:"Store the run in the history store"`
}

// SimulateOutput defines the output for the simcore_simulate tool.
type SimulateOutput struct {
	RunID     string                `json:"run_id,omitempty" jsonschema:"ID of the recorded run, if recorded"`
	Seed      uint64                `json:"seed" jsonschema:"Seed used for the run"`
	Traits    models.TraitProfile   `json:"traits" jsonschema:"Clamped traits used for the run"`
	Aggregate models.AggregateStats `json:"aggregate" jsonschema:"Aggregate statistics over all episodes"`
	Episodes  []models.Episode      `json:"episodes,omitempty" jsonschema:"Episodes in generation order"`
}

// TuneInput defines the input for the simcore_tune tool.
type TuneInput struct {
	Seed *uint64 `json:"seed,omitempty" jsonschema:"Generation seed (default: current time)"`
}

// TuneOutput defines the output for the simcore_tune tool.
type TuneOutput struct {
	ActivePolicyID string                 `json:"active_policy_id" jsonschema:"Policy the generation started from"`
	PolicyID       string                 `json:"policy_id" jsonschema:"ID of the saved champion policy"`
	PolicyState    models.PromotionState  `json:"policy_state" jsonschema:"PROMOTED_ACTIVE or REJECTED"`
	Champion       string                 `json:"champion" jsonschema:"Winning candidate ID"`
	ChampionTraits models.TraitProfile    `json:"champion_traits" jsonschema:"Winning candidate traits"`
	BaselineScore  float64                `json:"baseline_score" jsonschema:"Canary score of the active policy"`
	ChampionScore  float64                `json:"champion_score" jsonschema:"Canary score of the champion"`
	Decision       scoring.CanaryDecision `json:"decision" jsonschema:"Promotion decision and reason"`
	Episodes       int                    `json:"episodes_simulated" jsonschema:"Episodes simulated by the generation"`
}

// RunsInput defines the input for the simcore_runs tool.
type RunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum runs to return, newest first (default 20)"`
}

// RunsOutput defines the output for the simcore_runs tool.
type RunsOutput struct {
	Runs  []RunListItem `json:"runs" jsonschema:"Recorded runs, newest first"`
	Count int           `json:"count" jsonschema:"Number of runs returned"`
}

// RunListItem is a run without its episodes.
type RunListItem struct {
	ID            string              `json:"id"`
	CreatedAt     time.Time           `json:"created_at"`
	Source        models.RunSource    `json:"source"`
	Seed          uint64              `json:"seed"`
	Traits        models.TraitProfile `json:"traits"`
	Episodes      int                 `json:"episodes"`
	ObjectiveRate float64             `json:"objective_rate"`
	StabilityRate float64             `json:"stability_rate"`
}
