package models

import "time"

// RunSource identifies which entry point produced a recorded run.
type RunSource string

const (
	SourceCLI    RunSource = "cli"
	SourceHTTP   RunSource = "http"
	SourceMCP    RunSource = "mcp"
	SourceTuner  RunSource = "tuner"
	SourceImport RunSource = "import"
)

// RunRecord is a persisted simulation run.
type RunRecord struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Source    RunSource      `json:"source"`
	Seed      uint64         `json:"seed"`
	Traits    TraitProfile   `json:"traits"`
	Aggregate AggregateStats `json:"aggregate"`

	// Episodes may be nil when only the aggregate was recorded.
	Episodes []Episode `json:"episodes,omitempty"`
}

// PromotionState records what the tuner decided about a policy.
type PromotionState string

const (
	StateBaseline PromotionState = "BASELINE"
	StatePromoted PromotionState = "PROMOTED_ACTIVE"
	StateRejected PromotionState = "REJECTED"
)

// Policy is a trait profile the tuner has evaluated.
type Policy struct {
	ID             string         `json:"id"`
	ParentID       string         `json:"parent_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	Traits         TraitProfile   `json:"traits"`
	Score          float64        `json:"score"`
	State          PromotionState `json:"state"`
	CanaryMetrics  AggregateStats `json:"canary_metrics"`
	GenerationSeed uint64         `json:"generation_seed"`
}
