package metrics

import (
	"net/http"
	"time"

	"github.com/harun/opsframe/pkg/action"
	"github.com/harun/opsframe/pkg/rbac"
	"github.com/harun/opsframe/pkg/tool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "opsframe"

// Metrics holds all Prometheus metrics for the application. It observes
// the registry, the action runners and the permission engine.
type Metrics struct {
	registry *prometheus.Registry

	// Tool metrics
	ToolExecutionsTotal      *prometheus.CounterVec
	ToolExecutionDuration    *prometheus.HistogramVec
	ToolExecutionErrorsTotal *prometheus.CounterVec

	// Access metrics
	AccessDecisionsTotal *prometheus.CounterVec

	// Approval metrics
	ApprovalsPending  prometheus.Gauge
	ApprovalsResolved *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_executions_total",
				Help:      "Total number of tool executions",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_execution_duration_seconds",
				Help:      "Duration of tool executions in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool_name"},
		),
		ToolExecutionErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_execution_errors_total",
				Help:      "Total number of failed tool executions by category",
			},
			[]string{"tool_name", "category"},
		),

		AccessDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_decisions_total",
				Help:      "Total number of tool access checks",
			},
			[]string{"role", "decision"},
		),

		ApprovalsPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "approvals_pending",
				Help:      "Number of actions waiting for a human decision",
			},
		),
		ApprovalsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "approvals_resolved_total",
				Help:      "Total number of action approval outcomes",
			},
			[]string{"action", "tier", "outcome"},
		),
	}

	m.registry.MustRegister(
		m.ToolExecutionsTotal,
		m.ToolExecutionDuration,
		m.ToolExecutionErrorsTotal,
		m.AccessDecisionsTotal,
		m.ApprovalsPending,
		m.ApprovalsResolved,
	)

	return m
}

// ToolExecuted records one registry execution.
func (m *Metrics) ToolExecuted(name string, category tool.Category, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
		m.ToolExecutionErrorsTotal.WithLabelValues(name, string(category)).Inc()
	}
	m.ToolExecutionsTotal.WithLabelValues(name, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// ApprovalStarted marks an action as waiting for approval.
func (m *Metrics) ApprovalStarted(string) {
	m.ApprovalsPending.Inc()
}

// ApprovalResolved records how an action's approval gate ended.
func (m *Metrics) ApprovalResolved(name, tier, outcome string) {
	switch outcome {
	case action.OutcomeApproved, action.OutcomeDeclined, action.OutcomeTimedOut:
		m.ApprovalsPending.Dec()
	}
	m.ApprovalsResolved.WithLabelValues(name, tier, outcome).Inc()
}

// RecordAccess counts a permission engine decision.
func (m *Metrics) RecordAccess(decision rbac.Decision) {
	result := "allowed"
	if !decision.Allowed {
		result = "denied"
	}
	m.AccessDecisionsTotal.WithLabelValues(decision.Role, result).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
