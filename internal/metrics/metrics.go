// Package metrics exposes Prometheus collectors for simulated work.
//
// Each Recorder owns its registry so tests and the one-shot CLI never touch
// the global default registry.
package metrics

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vsoverseer/simcore/internal/models"
)

// Recorder counts episodes and runs. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	episodes    prometheus.Counter
	completions prometheus.Counter
	runs        *prometheus.CounterVec
	elapsed     prometheus.Histogram
	lastRate    prometheus.Gauge
}

// NewRecorder creates a Recorder with its collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		episodes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simcore_episodes_total",
			Help: "Episodes simulated.",
		}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simcore_objective_completions_total",
			Help: "Simulated episodes that completed the objective.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simcore_runs_total",
			Help: "Completed simulation runs by entry point.",
		}, []string{"source"}),
		elapsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simcore_episode_elapsed_seconds",
			Help:    "Simulated episode duration (elapsed_s), not wall time.",
			Buckets: prometheus.LinearBuckets(120, 60, 10),
		}),
		lastRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simcore_last_run_objective_rate",
			Help: "Objective rate of the most recent run.",
		}),
	}
	r.registry.MustRegister(r.episodes, r.completions, r.runs, r.elapsed, r.lastRate)
	return r
}

// ObserveEpisode records one episode. It matches simulation.EpisodeObserver
// once the index is dropped.
func (r *Recorder) ObserveEpisode(ep models.Episode) {
	if r == nil {
		return
	}
	r.episodes.Inc()
	if ep.ObjectiveComplete {
		r.completions.Inc()
	}
	r.elapsed.Observe(ep.ElapsedS)
}

// CountEpisode counts an episode whose outcome is not needed, such as the
// tuner's evaluation batches. Safe for concurrent use.
func (r *Recorder) CountEpisode() {
	if r == nil {
		return
	}
	r.episodes.Inc()
}

// ObserveRun records a finished run from source.
func (r *Recorder) ObserveRun(source models.RunSource, stats models.AggregateStats) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(string(source)).Inc()
	r.lastRate.Set(stats.ObjectiveRate)
}

// ObserveBatch records every episode of b and then the run itself.
func (r *Recorder) ObserveBatch(source models.RunSource, b models.Batch) {
	if r == nil {
		return
	}
	for _, ep := range b.Episodes {
		r.ObserveEpisode(ep)
	}
	r.ObserveRun(source, b.Aggregate)
}

// Registry returns the registry holding the collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the exposition format for the /metrics endpoint.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the current values in the node_exporter textfile
// collector format. The write is atomic.
func (r *Recorder) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
