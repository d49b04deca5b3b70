// Package metrics collects per-run pipeline counters and exports them in
// the Prometheus textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of one pipeline run. Each run gets its own
// registry.
type Metrics struct {
	reg *prometheus.Registry

	rowsScanned   *prometheus.CounterVec
	rowsSkipped   *prometheus.CounterVec
	rowsMatched   *prometheus.CounterVec
	stemMatches   *prometheus.CounterVec
	linkedEvents  *prometheus.CounterVec
	patients      *prometheus.GaugeVec
	stageDuration *prometheus.GaugeVec
}

// New registers a fresh set of pipeline metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		rowsScanned: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anticoag_rows_scanned_total",
				Help: "Medication rows read per source table",
			},
			[]string{"source"},
		),
		rowsSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anticoag_rows_skipped_total",
				Help: "Medication rows without a usable label per source table",
			},
			[]string{"source"},
		),
		rowsMatched: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anticoag_rows_matched_total",
				Help: "Medication rows matching the drug vocabulary per source table",
			},
			[]string{"source"},
		),
		stemMatches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anticoag_stem_matches_total",
				Help: "Matches per vocabulary stem",
			},
			[]string{"stem"},
		),
		linkedEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anticoag_linked_events_total",
				Help: "Events by admission join result",
			},
			[]string{"result"},
		),
		patients: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "anticoag_patients",
				Help: "Patients per cohort and survival status",
			},
			[]string{"cohort", "status"},
		),
		stageDuration: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "anticoag_stage_duration_seconds",
				Help: "Wall time of each pipeline stage",
			},
			[]string{"stage"},
		),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) SourceRows(source string, scanned, skipped, matched int) {
	m.rowsScanned.WithLabelValues(source).Add(float64(scanned))
	m.rowsSkipped.WithLabelValues(source).Add(float64(skipped))
	m.rowsMatched.WithLabelValues(source).Add(float64(matched))
}

func (m *Metrics) StemMatches(stem string, n int) {
	m.stemMatches.WithLabelValues(stem).Add(float64(n))
}

func (m *Metrics) Linked(hits, misses int) {
	m.linkedEvents.WithLabelValues("hit").Add(float64(hits))
	m.linkedEvents.WithLabelValues("miss").Add(float64(misses))
}

func (m *Metrics) Patients(cohort, status string, n int) {
	m.patients.WithLabelValues(cohort, status).Set(float64(n))
}

// Stage records the duration of a stage started at start.
func (m *Metrics) Stage(stage string, start time.Time) {
	m.stageDuration.WithLabelValues(stage).Set(time.Since(start).Seconds())
}

// WriteTextfile writes all metrics to path for the node exporter textfile
// collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
