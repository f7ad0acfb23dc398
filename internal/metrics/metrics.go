// Package metrics holds the prometheus collectors for document runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics methods are safe to call on a nil receiver.
type Metrics struct {
	runsTotal     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	lookupsTotal  *prometheus.CounterVec
	examsParsed   prometheus.Histogram
	httpRequests  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exams_pipeline_runs_total",
				Help: "Total number of document runs by terminal outcome",
			},
			[]string{"outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exams_pipeline_stage_duration_seconds",
				Help:    "Duration of each pipeline stage",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		lookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exams_catalog_lookups_total",
				Help: "Catalog lookups by outcome",
			},
			[]string{"outcome"},
		),
		examsParsed: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "exams_parsed_per_document",
				Help:    "Number of exam lines parsed from a document",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exams_http_requests_total",
				Help: "Total number of HTTP API requests",
			},
			[]string{"method", "route", "status"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.runsTotal, m.stageDuration, m.lookupsTotal, m.examsParsed, m.httpRequests)
	}
	return m
}

func (m *Metrics) ObserveRun(outcome string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ObserveLookup(outcome string) {
	if m == nil {
		return
	}
	m.lookupsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveExams(n int) {
	if m == nil {
		return
	}
	m.examsParsed.Observe(float64(n))
}

func (m *Metrics) ObserveHTTP(method, route, status string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
}
