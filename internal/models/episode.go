package models

// Episode is one simulated outcome record.
type Episode struct {
	UnlockRate        float64 `json:"unlock_rate"`
	ObjectiveComplete bool    `json:"objective_complete"`
	Stability         float64 `json:"stability"`
	ElapsedS          float64 `json:"elapsed_s"`
}

// AggregateStats summarizes a run's episodes. Rates and means are computed
// over the full episode sequence; see simulation.Aggregate.
type AggregateStats struct {
	Episodes      int     `json:"episodes"`
	ObjectiveRate float64 `json:"objective_rate"`
	UnlockRate    float64 `json:"unlock_rate"`
	StabilityRate float64 `json:"stability_rate"`
	MeanElapsedS  float64 `json:"mean_elapsed_s"`
}

// Batch is the complete result of one run: the episodes in generation order
// plus their aggregate.
type Batch struct {
	Episodes  []Episode      `json:"episodes"`
	Aggregate AggregateStats `json:"aggregate"`
}
