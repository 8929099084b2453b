package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the gateway. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Policy verdicts by decision and reason
	Decisions *prometheus.CounterVec

	// Tool call outcomes by tool and status
	ToolCalls *prometheus.CounterVec

	RiskScore prometheus.Histogram

	AuditAppends        *prometheus.CounterVec
	AuditVerifyFailures prometheus.Counter

	// Approval transitions: created, approved, rejected, executed, stale
	Approvals *prometheus.CounterVec

	HandlerLatency *prometheus.HistogramVec
}

// New registers the gateway metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentgate_decisions_total",
			Help: "Policy decisions by verdict and reason",
		}, []string{"decision", "reason"}),

		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentgate_tool_calls_total",
			Help: "Tool calls by tool and result status",
		}, []string{"tool", "status"}),

		RiskScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentgate_risk_score",
			Help:    "Distribution of computed risk scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),

		AuditAppends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentgate_audit_appends_total",
			Help: "Audit events appended by decision",
		}, []string{"decision"}),

		AuditVerifyFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "agentgate_audit_verify_failures_total",
			Help: "Audit chain verifications that detected a mismatch",
		}),

		Approvals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentgate_approvals_total",
			Help: "Approval state transitions",
		}, []string{"transition"}),

		HandlerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentgate_tool_handler_duration_seconds",
			Help:    "Duration of tool handler invocations",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"tool"}),
	}
}

func (m *Metrics) ObserveDecision(decision, reason string, riskScore int) {
	if m != nil {
		m.Decisions.WithLabelValues(decision, reason).Inc()
		m.RiskScore.Observe(float64(riskScore))
	}
}

func (m *Metrics) IncrementToolCall(tool, status string) {
	if m != nil {
		m.ToolCalls.WithLabelValues(tool, status).Inc()
	}
}

func (m *Metrics) IncrementAuditAppend(decision string) {
	if m != nil {
		m.AuditAppends.WithLabelValues(decision).Inc()
	}
}

func (m *Metrics) IncrementVerifyFailure() {
	if m != nil {
		m.AuditVerifyFailures.Inc()
	}
}

func (m *Metrics) IncrementApproval(transition string) {
	if m != nil {
		m.Approvals.WithLabelValues(transition).Inc()
	}
}

// ObserveHandlerLatency records how long a tool handler ran.
func (m *Metrics) ObserveHandlerLatency(tool string, d time.Duration) {
	if m != nil {
		m.HandlerLatency.WithLabelValues(tool).Observe(d.Seconds())
	}
}
