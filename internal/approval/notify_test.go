package approval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/agentgate/pkg/types"
)

func TestFormatMessage(t *testing.T) {
	msg := FormatMessage(types.Approval{ID: "a1", ToolName: "email.send", HumanSummary: "Send report", RiskLevel: "high", Token: "secret"})
	assert.Equal(t, "a1", msg.ApprovalID)
	assert.Contains(t, msg.Text, "Send report")
	assert.Contains(t, msg.Text, "Tool: email.send")
	assert.NotContains(t, msg.Text, "secret")

	empty := FormatMessage(types.Approval{})
	assert.Contains(t, empty.Text, "Approval required")
}

func TestNextAttempt(t *testing.T) {
	base := 5 * time.Second
	assert.Equal(t, base, nextAttempt(base, 0))
	assert.Equal(t, 10*time.Second, nextAttempt(base, 1))
	assert.Equal(t, 40*time.Second, nextAttempt(base, 3))
	assert.Equal(t, 5*time.Minute, nextAttempt(base, 10))
}

func TestWebhookNotifierRetriesUntilDelivered(t *testing.T) {
	var calls atomic.Int32
	delivered := make(chan Message, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var msg Message
		_ = json.NewDecoder(r.Body).Decode(&msg)
		delivered <- msg
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, WithBackoff(time.Millisecond, 5))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx, 5*time.Millisecond) }()

	require.NoError(t, n.NotifyApprovalCreated(ctx, types.Approval{ID: "a1", ToolName: "t"}))

	select {
	case msg := <-delivered:
		assert.Equal(t, "a1", msg.ApprovalID)
	case <-time.After(5 * time.Second):
		t.Fatalf("webhook never delivered")
	}
	assert.Equal(t, int32(2), calls.Load())

	cancel()
	require.NoError(t, <-done)
}

func TestWebhookNotifierQueueFull(t *testing.T) {
	n := NewWebhookNotifier("http://127.0.0.1:1")
	n.queue = make(chan pending, 1)
	require.NoError(t, n.NotifyApprovalCreated(context.Background(), types.Approval{ID: "a"}))
	require.ErrorIs(t, n.NotifyApprovalCreated(context.Background(), types.Approval{ID: "b"}), ErrQueueFull)
}
