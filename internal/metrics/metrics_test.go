package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveDecision("deny", "kill_switch", 100)
	m.ObserveDecision("deny", "kill_switch", 100)
	m.IncrementToolCall("file.write", "blocked")
	m.IncrementAuditAppend("deny")
	m.IncrementVerifyFailure()
	m.IncrementApproval("approved")
	m.ObserveHandlerLatency("file.write", 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Decisions.WithLabelValues("deny", "kill_switch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCalls.WithLabelValues("file.write", "blocked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditAppends.WithLabelValues("deny")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditVerifyFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Approvals.WithLabelValues("approved")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveDecision("allow", "policy_allow", 0)
	m.IncrementToolCall("x", "ok")
	m.IncrementAuditAppend("allow")
	m.IncrementVerifyFailure()
	m.IncrementApproval("created")
	m.ObserveHandlerLatency("x", time.Second)
}
