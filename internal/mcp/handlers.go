package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vsoverseer/simcore/internal/config"
	"github.com/vsoverseer/simcore/internal/models"
	"github.com/vsoverseer/simcore/internal/simulation"
)

const latestRunsURI = "simcore://runs/latest"

// registerTools registers all simcore MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simcore_simulate",
		Description: "Run a deterministic batch of simulated episodes for a trait profile and return the aggregate statistics",
	}, s.handleSimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simcore_tune",
		Description: "Run one tuning generation from the active policy: evaluate mutated trait profiles, canary the champion and promote it if it wins",
	}, s.handleTune)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simcore_runs",
		Description: "List recorded simulation runs, newest first",
	}, s.handleRuns)
}

// registerResources registers MCP resources for auto-loading into context.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         latestRunsURI,
		Name:        "simcore-latest-runs",
		Description: "Summary of the most recent simulation runs and the active policy.",
		MIMEType:    "text/markdown",
	}, s.handleLatestRunsResource)
}

func (s *Server) handleSimulate(ctx context.Context, req *sdk.CallToolRequest, args SimulateInput) (_ *sdk.CallToolResult, _ SimulateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("simcore_simulate", start, retErr, map[string]string{
			"episodes":         fmt.Sprintf("%d", args.Episodes),
			"include_episodes": fmt.Sprintf("%t", args.IncludeEpisodes),
			"record":           fmt.Sprintf("%t", args.Record),
		})
	}()

	if err := s.toolLimiters.Check("simcore_simulate"); err != nil {
		return nil, SimulateOutput{}, err
	}

	opts := s.runOptions(args)
	if opts.Episodes > s.maxEpisodes {
		return nil, SimulateOutput{}, fmt.Errorf("episodes %d exceeds the limit of %d", opts.Episodes, s.maxEpisodes)
	}

	batch := simulation.Run(opts.Traits, opts.Seed, opts.Episodes, nil)
	s.metrics.ObserveBatch(models.SourceMCP, batch)

	out := SimulateOutput{
		Seed:      opts.Seed,
		Traits:    opts.Traits,
		Aggregate: batch.Aggregate,
	}
	if args.IncludeEpisodes {
		out.Episodes = batch.Episodes
	}

	if args.Record {
		run := models.RunRecord{
			ID:        s.newID(),
			CreatedAt: s.now(),
			Source:    models.SourceMCP,
			Seed:      opts.Seed,
			Traits:    opts.Traits,
			Aggregate: batch.Aggregate,
			Episodes:  batch.Episodes,
		}
		if err := s.store.SaveRun(ctx, run); err != nil {
			return nil, SimulateOutput{}, fmt.Errorf("failed to record run: %w", err)
		}
		out.RunID = run.ID
	}
	return nil, out, nil
}

// runOptions resolves omitted inputs to the configured defaults.
func (s *Server) runOptions(args SimulateInput) config.RunOptions {
	opts := config.RunOptions{
		Episodes: args.Episodes,
		Seed:     s.defaults.Seed,
		Traits:   s.defaults.Traits,
	}
	if args.Seed != nil {
		opts.Seed = *args.Seed
	}
	if len(args.Traits) > 0 {
		merged := make(map[string]any, 4)
		for k, v := range s.defaults.Traits.ToMap() {
			merged[k] = v
		}
		for k, v := range args.Traits {
			merged[k] = v
		}
		opts.Traits = models.TraitsFromMap(merged)
	}
	if args.Aggression != nil {
		opts.Traits.Aggression = *args.Aggression
	}
	if args.Greed != nil {
		opts.Traits.Greed = *args.Greed
	}
	if args.Safety != nil {
		opts.Traits.Safety = *args.Safety
	}
	if args.Focus != nil {
		opts.Traits.Focus = *args.Focus
	}
	return opts.Normalize(s.defaults)
}

func (s *Server) handleTune(ctx context.Context, req *sdk.CallToolRequest, args TuneInput) (_ *sdk.CallToolResult, _ TuneOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("simcore_tune", start, retErr, map[string]string{
			"seed_set": fmt.Sprintf("%t", args.Seed != nil),
		})
	}()

	if err := s.toolLimiters.Check("simcore_tune"); err != nil {
		return nil, TuneOutput{}, err
	}

	seed := uint64(s.now().UnixMilli())
	if args.Seed != nil {
		seed = *args.Seed
	}

	summary, err := s.tuner.Generation(ctx, seed)
	if err != nil {
		return nil, TuneOutput{}, fmt.Errorf("tuning generation failed: %w", err)
	}

	return nil, TuneOutput{
		ActivePolicyID: summary.ActivePolicyID,
		PolicyID:       summary.Policy.ID,
		PolicyState:    summary.Policy.State,
		Champion:       summary.Champion.CandidateID,
		ChampionTraits: summary.Champion.Traits,
		BaselineScore:  summary.BaselineScore,
		ChampionScore:  summary.ChampionScore,
		Decision:       summary.Decision,
		Episodes:       summary.EpisodesSimulated,
	}, nil
}

func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("simcore_runs", start, retErr, map[string]string{
			"limit": fmt.Sprintf("%d", args.Limit),
		})
	}()

	if err := s.toolLimiters.Check("simcore_runs"); err != nil {
		return nil, RunsOutput{}, err
	}

	limit := args.Limit
	if limit <= 0 {
		limit = 20
	}
	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, RunsOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}

	items := make([]RunListItem, 0, len(runs))
	for _, run := range runs {
		items = append(items, RunListItem{
			ID:            run.ID,
			CreatedAt:     run.CreatedAt,
			Source:        run.Source,
			Seed:          run.Seed,
			Traits:        run.Traits,
			Episodes:      run.Aggregate.Episodes,
			ObjectiveRate: run.Aggregate.ObjectiveRate,
			StabilityRate: run.Aggregate.StabilityRate,
		})
	}
	return nil, RunsOutput{Runs: items, Count: len(items)}, nil
}

// handleLatestRunsResource renders recent runs and the active policy as markdown.
func (s *Server) handleLatestRunsResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	runs, err := s.store.ListRuns(ctx, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# Recent simulation runs\n\n")
	if len(runs) == 0 {
		sb.WriteString("No runs recorded yet.\n")
	} else {
		sb.WriteString("| id | source | seed | episodes | objective | unlock | stability | mean elapsed |\n")
		sb.WriteString("|---|---|---|---|---|---|---|---|\n")
		for _, run := range runs {
			a := run.Aggregate
			fmt.Fprintf(&sb, "| %s | %s | %d | %d | %.6f | %.6f | %.6f | %.6f |\n",
				run.ID, run.Source, run.Seed, a.Episodes, a.ObjectiveRate, a.UnlockRate, a.StabilityRate, a.MeanElapsedS)
		}
	}

	if p, err := s.store.ActivePolicy(ctx); err == nil {
		fmt.Fprintf(&sb, "\n**Active policy** `%s` (%s): %s\n", p.ID, p.State, p.Traits)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      latestRunsURI,
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}
