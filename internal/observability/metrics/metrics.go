package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// ReportMetrics exposes counters/histograms for the report extraction flow.
type ReportMetrics struct {
	extractionTotal   *prometheus.CounterVec
	processingLatency *prometheus.HistogramVec
	upstreamTotal     *prometheus.CounterVec
	upstreamLatency   *prometheus.HistogramVec
	cacheTotal        *prometheus.CounterVec
	jobsTotal         *prometheus.CounterVec
}

func NewReportMetrics(reg prometheus.Registerer) *ReportMetrics {
	m := &ReportMetrics{
		extractionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "report",
			Name:      "extraction_total",
			Help:      "Extractions by winning source",
		}, []string{"source", "success"}),
		processingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dental",
			Subsystem: "report",
			Name:      "processing_seconds",
			Help:      "End-to-end latency of report processing",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90, 120},
		}, []string{"mode"}),
		upstreamTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "report",
			Name:      "upstream_requests_total",
			Help:      "Dify API calls by endpoint and status",
		}, []string{"endpoint", "status"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dental",
			Subsystem: "report",
			Name:      "upstream_latency_seconds",
			Help:      "Latency of Dify API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		cacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "report",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups",
		}, []string{"result"}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "report",
			Name:      "jobs_total",
			Help:      "Async extraction jobs by final status",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.extractionTotal, m.processingLatency, m.upstreamTotal, m.upstreamLatency, m.cacheTotal, m.jobsTotal)
	return m
}

func (m *ReportMetrics) ObserveExtraction(source string, success bool) {
	if m == nil {
		return
	}
	m.extractionTotal.WithLabelValues(source, strconv.FormatBool(success)).Inc()
}

func (m *ReportMetrics) ObserveProcessing(mode string, seconds float64) {
	if m == nil {
		return
	}
	m.processingLatency.WithLabelValues(mode).Observe(seconds)
}

// ObserveUpstream records one Dify call; status 0 means a transport error.
func (m *ReportMetrics) ObserveUpstream(endpoint string, status int, seconds float64) {
	if m == nil {
		return
	}
	label := strconv.Itoa(status)
	if status == 0 {
		label = "error"
	}
	m.upstreamTotal.WithLabelValues(endpoint, label).Inc()
	m.upstreamLatency.WithLabelValues(endpoint).Observe(seconds)
}

// ObserveCache records a lookup result: hit, miss or error.
func (m *ReportMetrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.cacheTotal.WithLabelValues(result).Inc()
}

func (m *ReportMetrics) ObserveJob(status string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(status).Inc()
}
