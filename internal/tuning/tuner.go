package tuning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vsoverseer/simcore/internal/config"
	"github.com/vsoverseer/simcore/internal/logging"
	"github.com/vsoverseer/simcore/internal/models"
	"github.com/vsoverseer/simcore/internal/scoring"
	"github.com/vsoverseer/simcore/internal/simulation"
	"github.com/vsoverseer/simcore/internal/store"
)

// Canary seed offsets from the generation seed.
const (
	BaselineCanaryOffset = 100000
	ChampionCanaryOffset = 200000
)

// Config configures a Tuner.
type Config struct {
	PopulationSize int
	BatchEpisodes  int
	CanaryEpisodes int
	KeepTopK       int
	Workers        int
	Weights        scoring.Weights
	Thresholds     scoring.Thresholds
}

// DefaultConfig returns the default tuning configuration.
func DefaultConfig() Config {
	return Config{
		PopulationSize: 16,
		BatchEpisodes:  24,
		CanaryEpisodes: 50,
		KeepTopK:       8,
		Workers:        4,
		Weights:        scoring.DefaultWeights(),
		Thresholds: scoring.Thresholds{
			RequiredImprovement:    0.03,
			MaxStabilityRegression: 0.02,
		},
	}
}

// ConfigFrom builds a tuner Config from the file configuration.
func ConfigFrom(cfg *config.SimcoreConfig) Config {
	return Config{
		PopulationSize: cfg.Tuning.PopulationSize,
		BatchEpisodes:  cfg.Tuning.BatchEpisodes,
		CanaryEpisodes: cfg.Tuning.CanaryEpisodes,
		KeepTopK:       cfg.Tuning.KeepTopK,
		Workers:        cfg.Tuning.Workers,
		Weights: scoring.Weights{
			Objective: cfg.Scoring.ObjectiveWeight,
			Time:      cfg.Scoring.TimeWeight,
			Stability: cfg.Scoring.StabilityWeight,
		},
		Thresholds: scoring.Thresholds{
			RequiredImprovement:    cfg.Tuning.RequiredImprovement,
			MaxStabilityRegression: cfg.Tuning.MaxStabilityRegression,
		},
	}
}

// GenerationSummary reports one tuning generation.
type GenerationSummary struct {
	GenerationSeed    uint64                 `json:"generation_seed"`
	ActivePolicyID    string                 `json:"active_policy_id"`
	PopulationSize    int                    `json:"population_size"`
	Top               []Result               `json:"top"`
	Champion          Result                 `json:"champion"`
	BaselineCanary    models.AggregateStats  `json:"baseline_canary"`
	ChampionCanary    models.AggregateStats  `json:"champion_canary"`
	BaselineScore     float64                `json:"baseline_canary_score"`
	ChampionScore     float64                `json:"champion_canary_score"`
	Decision          scoring.CanaryDecision `json:"decision"`
	Policy            models.Policy          `json:"policy"`
	EpisodesSimulated int                    `json:"episodes_simulated"`
}

// Tuner runs generations against a policy store.
type Tuner struct {
	cfg       Config
	store     store.Store
	logger    *slog.Logger
	decisions *logging.DecisionLogger

	// OnEpisode, if set, is called for every simulated episode.
	OnEpisode func()

	now   func() time.Time
	newID func() string
}

// New creates a Tuner. logger and decisions may be nil.
func New(cfg Config, s store.Store, logger *slog.Logger, decisions *logging.DecisionLogger) *Tuner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tuner{
		cfg:       cfg,
		store:     s,
		logger:    logger,
		decisions: decisions,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.NewString() },
	}
}

// ActivePolicy returns the store's active policy, creating and activating
// a baseline policy with default traits when there is none.
func (t *Tuner) ActivePolicy(ctx context.Context) (models.Policy, error) {
	p, err := t.store.ActivePolicy(ctx)
	if err == nil {
		return *p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.Policy{}, fmt.Errorf("loading active policy: %w", err)
	}

	baseline := models.Policy{
		ID:        t.newID(),
		CreatedAt: t.now(),
		Traits:    models.DefaultTraits(),
		State:     models.StateBaseline,
	}
	if err := t.store.SavePolicy(ctx, baseline); err != nil {
		return models.Policy{}, fmt.Errorf("saving baseline policy: %w", err)
	}
	if err := t.store.SetActivePolicy(ctx, baseline.ID); err != nil {
		return models.Policy{}, fmt.Errorf("activating baseline policy: %w", err)
	}
	t.logger.Info("created baseline policy", "policy", baseline.ID)
	return baseline, nil
}

// Generation runs one generation seeded with seed starting from the active
// policy. The champion is always saved; it becomes active only when the
// canary decision promotes it.
func (t *Tuner) Generation(ctx context.Context, seed uint64) (*GenerationSummary, error) {
	active, err := t.ActivePolicy(ctx)
	if err != nil {
		return nil, err
	}

	population := GeneratePopulation(active.Traits, seed, t.cfg.PopulationSize)
	results, err := EvaluatePopulation(ctx, population, EvalOptions{
		Episodes:  t.cfg.BatchEpisodes,
		SeedBase:  seed,
		Workers:   t.cfg.Workers,
		Weights:   t.cfg.Weights,
		OnEpisode: t.OnEpisode,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluating population: %w", err)
	}

	topK := t.cfg.KeepTopK
	if topK < 1 || topK > len(results) {
		topK = len(results)
	}
	champion := results[0]
	t.logger.Debug("population evaluated",
		"seed", seed, "size", len(results), "champion", champion.CandidateID, "score", champion.Score)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var observer simulation.EpisodeObserver
	if t.OnEpisode != nil {
		observer = func(int, models.Episode) { t.OnEpisode() }
	}
	baselineCanary := simulation.Run(active.Traits, seed+BaselineCanaryOffset, t.canaryEpisodes(), observer).Aggregate
	championCanary := simulation.Run(champion.Traits, seed+ChampionCanaryOffset, t.canaryEpisodes(), observer).Aggregate

	baselineScore := scoring.Score(baselineCanary, t.cfg.Weights).Total
	championScore := scoring.Score(championCanary, t.cfg.Weights).Total
	decision := scoring.Decide(championCanary, baselineCanary, championScore, baselineScore, t.cfg.Thresholds)

	state := models.StateRejected
	if decision.Promote {
		state = models.StatePromoted
	}
	policy := models.Policy{
		ID:             t.newID(),
		ParentID:       active.ID,
		CreatedAt:      t.now(),
		Traits:         champion.Traits,
		Score:          championScore,
		State:          state,
		CanaryMetrics:  championCanary,
		GenerationSeed: seed,
	}
	if err := t.store.SavePolicy(ctx, policy); err != nil {
		return nil, fmt.Errorf("saving policy: %w", err)
	}
	if decision.Promote {
		if err := t.store.SetActivePolicy(ctx, policy.ID); err != nil {
			return nil, fmt.Errorf("activating policy: %w", err)
		}
	}

	summary := &GenerationSummary{
		GenerationSeed:    seed,
		ActivePolicyID:    active.ID,
		PopulationSize:    len(population),
		Top:               results[:topK],
		Champion:          champion,
		BaselineCanary:    baselineCanary,
		ChampionCanary:    championCanary,
		BaselineScore:     baselineScore,
		ChampionScore:     championScore,
		Decision:          decision,
		Policy:            policy,
		EpisodesSimulated: len(population)*max(1, t.cfg.BatchEpisodes) + 2*t.canaryEpisodes(),
	}
	if decision.Promote {
		summary.ActivePolicyID = policy.ID
	}

	t.logger.Info("generation complete",
		"seed", seed, "champion", champion.CandidateID, "state", state, "reason", decision.Reason)
	t.decisions.Log(map[string]any{
		"event":           "canary_decision",
		"generation_seed": seed,
		"parent_policy":   active.ID,
		"policy":          policy.ID,
		"champion":        champion.CandidateID,
		"champion_score":  championScore,
		"baseline_score":  baselineScore,
		"improvement":     decision.Improvement,
		"stability_drop":  decision.StabilityRegression,
		"promote":         decision.Promote,
		"reason":          decision.Reason,
	})

	return summary, nil
}

// Run executes generations generations with seeds seed, seed+1, ...
// and returns their summaries. It stops at the first error.
func (t *Tuner) Run(ctx context.Context, generations int, seed uint64) ([]*GenerationSummary, error) {
	summaries := make([]*GenerationSummary, 0, generations)
	for i := 0; i < generations; i++ {
		s, err := t.Generation(ctx, seed+uint64(i))
		if err != nil {
			return summaries, fmt.Errorf("generation %d: %w", i+1, err)
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func (t *Tuner) canaryEpisodes() int {
	return max(1, t.cfg.CanaryEpisodes)
}
