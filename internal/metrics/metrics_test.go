package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRun("completed")
	m.ObserveRun("completed")
	m.ObserveRun("failed")
	m.ObserveLookup("found")
	m.ObserveStage("EXTRACTING", 150*time.Millisecond)
	m.ObserveExams(3)
	m.ObserveHTTP("POST", "/api/v1/exams/upload", "200")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookupsTotal.WithLabelValues("found")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.stageDuration))

	n, err := testutil.GatherAndCount(reg, "exams_parsed_per_document")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRun("completed")
		m.ObserveStage("PARSING", time.Second)
		m.ObserveLookup("found")
		m.ObserveExams(1)
		m.ObserveHTTP("GET", "/healthz", "200")
	})
}
