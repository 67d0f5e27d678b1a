// Package metrics exposes prometheus collectors for the execution engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer, which records nothing.
type Metrics struct {
	executionsStarted  *prometheus.CounterVec
	executionsFinished *prometheus.CounterVec
	executionsResumed  *prometheus.CounterVec
	nodeDuration       *prometheus.HistogramVec
	nodeRetries        *prometheus.CounterVec
	resumeConflicts    prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		executionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wayflow",
			Name:      "executions_started_total",
			Help:      "Executions started, by workflow.",
		}, []string{"workflow_id"}),
		executionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wayflow",
			Name:      "executions_finished_total",
			Help:      "Executions that reached a terminal or suspended status.",
		}, []string{"workflow_id", "status"}),
		executionsResumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wayflow",
			Name:      "executions_resumed_total",
			Help:      "Suspended executions resumed, by workflow.",
		}, []string{"workflow_id"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wayflow",
			Name:      "node_duration_seconds",
			Help:      "Handler processing time including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node_type", "status"}),
		nodeRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wayflow",
			Name:      "node_retries_total",
			Help:      "Handler re-invocations after a failed attempt.",
		}, []string{"node_type"}),
		resumeConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wayflow",
			Name:      "resume_conflicts_total",
			Help:      "Resumes rejected because another writer updated the record first.",
		}),
	}

	reg.MustRegister(
		m.executionsStarted,
		m.executionsFinished,
		m.executionsResumed,
		m.nodeDuration,
		m.nodeRetries,
		m.resumeConflicts,
	)

	return m
}

func (m *Metrics) ExecutionStarted(workflowID string) {
	if m == nil {
		return
	}

	m.executionsStarted.WithLabelValues(workflowID).Inc()
}

func (m *Metrics) ExecutionFinished(workflowID, status string) {
	if m == nil {
		return
	}

	m.executionsFinished.WithLabelValues(workflowID, status).Inc()
}

func (m *Metrics) ExecutionResumed(workflowID string) {
	if m == nil {
		return
	}

	m.executionsResumed.WithLabelValues(workflowID).Inc()
}

func (m *Metrics) NodeProcessed(nodeType, status string, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.nodeDuration.WithLabelValues(nodeType, status).Observe(elapsed.Seconds())
}

func (m *Metrics) NodeRetried(nodeType string) {
	if m == nil {
		return
	}

	m.nodeRetries.WithLabelValues(nodeType).Inc()
}

func (m *Metrics) ResumeConflict() {
	if m == nil {
		return
	}

	m.resumeConflicts.Inc()
}
