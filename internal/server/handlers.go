package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/vsoverseer/simcore/internal/config"
	"github.com/vsoverseer/simcore/internal/models"
	"github.com/vsoverseer/simcore/internal/report"
	"github.com/vsoverseer/simcore/internal/simulation"
	"github.com/vsoverseer/simcore/internal/store"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSimulate runs one batch and returns the output document bytes.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	values, err := decodeBodyValues(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := config.ParseRunValues(values, s.opts.Defaults)
	if err := s.checkEpisodes(opts.Episodes); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch := simulation.Run(opts.Traits, opts.Seed, opts.Episodes, nil)
	data, err := report.Encode(batch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.finishRun(r.Context(), opts, batch)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) checkEpisodes(n int) error {
	if n > s.opts.MaxEpisodes {
		return fmt.Errorf("episodes %d exceeds the limit of %d", n, s.opts.MaxEpisodes)
	}
	return nil
}

// finishRun records metrics and, when enabled, persists the run.
func (s *Server) finishRun(ctx context.Context, opts config.RunOptions, batch models.Batch) {
	s.opts.Metrics.ObserveBatch(models.SourceHTTP, batch)
	s.logger.Debug("run complete", "episodes", opts.Episodes, "seed", opts.Seed,
		"objective_rate", batch.Aggregate.ObjectiveRate)

	if !s.opts.Record || s.opts.Store == nil {
		return
	}
	run := models.RunRecord{
		ID:        s.newID(),
		CreatedAt: s.now(),
		Source:    models.SourceHTTP,
		Seed:      opts.Seed,
		Traits:    opts.Traits,
		Aggregate: batch.Aggregate,
		Episodes:  batch.Episodes,
	}
	if err := s.opts.Store.SaveRun(ctx, run); err != nil {
		s.logger.Error("failed to record run", "error", err)
	}
}

// decodeBodyValues flattens a JSON object body into query-style values so
// it goes through the same fallback rules as flags. An empty body yields no
// values.
func decodeBodyValues(r io.Reader) (map[string][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	values := make(map[string][]string, len(raw))
	for key, msg := range raw {
		var str string
		if err := json.Unmarshal(msg, &str); err == nil {
			values[key] = []string{str}
			continue
		}
		values[key] = []string{string(bytes.TrimSpace(msg))}
	}
	return values, nil
}

// runSummary is a run without its episode list.
type runSummary struct {
	ID        string                `json:"id"`
	CreatedAt string                `json:"created_at"`
	Source    models.RunSource      `json:"source"`
	Seed      uint64                `json:"seed"`
	Traits    models.TraitProfile   `json:"traits"`
	Aggregate models.AggregateStats `json:"aggregate"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.opts.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, runSummary{
			ID:        run.ID,
			CreatedAt: run.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			Source:    run.Source,
			Seed:      run.Seed,
			Traits:    run.Traits,
			Aggregate: run.Aggregate,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}
	run, err := s.opts.Store.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
