package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m.GetLabel(), labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return nil
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if want[p.GetName()] != p.GetValue() {
			return false
		}
	}
	return true
}

func TestReportMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReportMetrics(reg)

	m.ObserveExtraction("outputs", true)
	m.ObserveExtraction("outputs", true)
	m.ObserveUpstream("workflows_run", 200, 1.2)
	m.ObserveUpstream("workflows_run", 0, 0.1)
	m.ObserveCache("hit")
	m.ObserveJob("completed")
	m.ObserveProcessing("sync", 3)

	extraction := findMetric(t, reg, "dental_report_extraction_total", map[string]string{"source": "outputs", "success": "true"})
	assert.Equal(t, 2.0, extraction.GetCounter().GetValue())

	failed := findMetric(t, reg, "dental_report_upstream_requests_total", map[string]string{"endpoint": "workflows_run", "status": "error"})
	assert.Equal(t, 1.0, failed.GetCounter().GetValue())

	latency := findMetric(t, reg, "dental_report_upstream_latency_seconds", map[string]string{"endpoint": "workflows_run"})
	assert.Equal(t, uint64(2), latency.GetHistogram().GetSampleCount())

	cache := findMetric(t, reg, "dental_report_cache_lookups_total", map[string]string{"result": "hit"})
	assert.Equal(t, 1.0, cache.GetCounter().GetValue())
}

func TestReportMetricsDefaultRegistry(t *testing.T) {
	// registering twice on the default registry would panic, so only once here
	m := NewReportMetrics(nil)
	m.ObserveJob("failed")
}

func TestReportMetricsNilSafe(t *testing.T) {
	var m *ReportMetrics
	m.ObserveExtraction("none", false)
	m.ObserveUpstream("files_upload", 500, 0.1)
	m.ObserveCache("miss")
	m.ObserveJob("failed")
	m.ObserveProcessing("job", 1)
}
