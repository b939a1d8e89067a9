// Package metrics records per-run extraction counters on a private
// Prometheus registry and writes them in the text exposition format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "memopedia"

// Outcome labels.
const (
	OutcomeSuccess   = "success"
	OutcomeSkipped   = "skipped"
	OutcomeAbandoned = "abandoned"

	OutcomeEmpty      = "empty"
	OutcomeError      = "error"
	OutcomeParseError = "parse_error"
	OutcomeNoPages    = "no_pages"

	OutcomeFallback  = "fallback"
	OutcomeUnchanged = "unchanged"
	OutcomeEdited    = "edited"
)

// Run holds the counters for one extraction run. A nil *Run is valid and
// records nothing.
type Run struct {
	registry *prometheus.Registry

	batches     *prometheus.CounterVec
	generations *prometheus.CounterVec
	actions     *prometheus.CounterVec
	refinements *prometheus.CounterVec
	pages       prometheus.Counter
}

// NewRun creates counters registered on a fresh registry.
func NewRun() *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Message batches processed, by outcome.",
		}, []string{"outcome"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_calls_total",
			Help:      "Generation calls made, by outcome.",
		}, []string{"outcome"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Page actions built, by type and whether they were applied.",
		}, []string{"type", "dry_run"}),
		refinements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refinements_total",
			Help:      "Content refinements, by outcome.",
		}, []string{"outcome"}),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_extracted_total",
			Help:      "Valid candidate pages accepted from generation output.",
		}),
	}

	r.registry.MustRegister(r.batches, r.generations, r.actions, r.refinements, r.pages)
	return r
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Run) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Batch records a finished batch.
func (r *Run) Batch(outcome string) {
	if r == nil {
		return
	}
	r.batches.WithLabelValues(outcome).Inc()
}

// Generation records one generation call.
func (r *Run) Generation(outcome string) {
	if r == nil {
		return
	}
	r.generations.WithLabelValues(outcome).Inc()
}

// Action records one built action.
func (r *Run) Action(kind string, dryRun bool) {
	if r == nil {
		return
	}
	r.actions.WithLabelValues(kind, fmt.Sprintf("%t", dryRun)).Inc()
}

// Refinement records one refinement attempt.
func (r *Run) Refinement(outcome string) {
	if r == nil {
		return
	}
	r.refinements.WithLabelValues(outcome).Inc()
}

// PagesExtracted adds n accepted candidate pages.
func (r *Run) PagesExtracted(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.pages.Add(float64(n))
}

// WriteFile writes all counters to path in the Prometheus text format,
// suitable for the node_exporter textfile collector.
func (r *Run) WriteFile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
