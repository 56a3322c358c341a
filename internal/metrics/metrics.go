package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transition outcomes.
const (
	OutcomeAdvanced  = "advanced"
	OutcomeCompleted = "completed"
	OutcomeRejected  = "rejected" // failed validation
	OutcomeFailed    = "failed"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry           *prometheus.Registry
	transitions        *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	workflowsStarted   prometheus.Counter
	assignmentFailures *prometheus.CounterVec
}

// New creates collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docworkflows",
			Name:      "transitions_total",
			Help:      "Workflow action submissions by action name and outcome.",
		}, []string{"action", "outcome"}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docworkflows",
			Name:      "validation_failures_total",
			Help:      "Rejected action submissions by error code.",
		}, []string{"code"}),
		workflowsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docworkflows",
			Name:      "workflows_started_total",
			Help:      "Document workflows created.",
		}),
		assignmentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docworkflows",
			Name:      "assignment_failures_total",
			Help:      "Stages left unassigned because the user directory lookup failed, by role code.",
		}, []string{"role"}),
	}
	m.registry.MustRegister(
		m.transitions,
		m.validationFailures,
		m.workflowsStarted,
		m.assignmentFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Transition(action, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) ValidationFailure(code string) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(code).Inc()
}

func (m *Metrics) WorkflowStarted() {
	if m == nil {
		return
	}
	m.workflowsStarted.Inc()
}

func (m *Metrics) AssignmentFailure(role string) {
	if m == nil {
		return
	}
	m.assignmentFailures.WithLabelValues(role).Inc()
}
