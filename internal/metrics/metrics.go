// Package metrics defines the Prometheus instrumentation spec §9's
// supplemented observability surface describes: watch reconnects,
// cooldown/render-cycle counts, and per-outcome reconcile totals.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WatchReconnectsTotal counts every watcher reconnect attempt, labeled
	// by the kind being watched.
	WatchReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alfaoperator_watch_reconnects_total",
		Help: "Total number of watch stream reconnect attempts, by kind.",
	}, []string{"kind"})

	// RenderCyclesTotal counts completed render cycles, by template.
	RenderCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alfaoperator_render_cycles_total",
		Help: "Total number of completed render cycles, by template.",
	}, []string{"template"})

	// RenderCycleDuration observes wall-clock time spent in one
	// fetch-aggregate-render-reconcile cycle.
	RenderCycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "alfaoperator_render_cycle_duration_seconds",
		Help:    "Duration of one render cycle, by template.",
		Buckets: prometheus.DefBuckets,
	}, []string{"template"})

	// ReconcileTotal counts reconcile outcomes, by template, kind, and
	// outcome (created/updated/no_change/skipped/failed).
	ReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alfaoperator_reconcile_total",
		Help: "Total number of reconciled documents, by template, kind, and outcome.",
	}, []string{"template", "kind", "outcome"})
)
