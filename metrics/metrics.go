// Package metrics exposes Prometheus metrics for orchestrator flows and
// aggregate store calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ethchecksum "github.com/ethchecksum/ethchecksum"
)

const namespace = "ethchecksum"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// FlowMetrics records orchestrator outcomes. Implements ethchecksum.Recorder.
type FlowMetrics struct {
	Outcomes      *prometheus.CounterVec
	Failures      *prometheus.CounterVec
	StoreCalls    *prometheus.CounterVec
	StoreDuration *prometheus.HistogramVec
}

// NewFlowMetrics creates and registers flow metrics on the given registry.
func NewFlowMetrics(reg prometheus.Registerer) *FlowMetrics {
	m := &FlowMetrics{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "outcomes_total",
			Help:      "Connect flow outcomes, by concern and outcome.",
		}, []string{"concern", "outcome"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "failures_total",
			Help:      "Flow failures surfaced to the user, by concern and error code.",
		}, []string{"concern", "code"}),
		StoreCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "calls_total",
			Help:      "Aggregate store calls, by concern, operation and result.",
		}, []string{"concern", "op", "result"}),
		StoreDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "call_duration_seconds",
			Help:      "Aggregate store call latency.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"concern", "op"}),
	}

	reg.MustRegister(m.Outcomes, m.Failures, m.StoreCalls, m.StoreDuration)
	return m
}

func (m *FlowMetrics) FlowOutcome(concern, outcome string) {
	m.Outcomes.WithLabelValues(concern, outcome).Inc()
}

func (m *FlowMetrics) FlowFailure(concern, code string) {
	m.Failures.WithLabelValues(concern, code).Inc()
}

func (m *FlowMetrics) StoreCall(concern, op string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = ethchecksum.Classify(err)
	}
	m.StoreCalls.WithLabelValues(concern, op, result).Inc()
	m.StoreDuration.WithLabelValues(concern, op).Observe(duration.Seconds())
}

var _ ethchecksum.Recorder = (*FlowMetrics)(nil)
