// Package ledgertest holds behavior tests shared by every ledger.Store.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/agentgate/internal/crypto"
	"github.com/davidahmann/agentgate/internal/ledger"
)

// Run exercises s, which must be empty.
func Run(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	t.Run("audit chain order", func(t *testing.T) { testAuditOrder(t, newStore(t)) })
	t.Run("concurrent audit appends", func(t *testing.T) { testConcurrentAppends(t, newStore(t)) })
	t.Run("append build error", func(t *testing.T) { testAppendBuildError(t, newStore(t)) })
	t.Run("approval lifecycle", func(t *testing.T) { testApprovalLifecycle(t, newStore(t)) })
	t.Run("approval compare and swap", func(t *testing.T) { testApprovalCAS(t, newStore(t)) })
	t.Run("history", func(t *testing.T) { testHistory(t, newStore(t)) })
}

func chainBuilder(id string) func(prev string) (ledger.AuditRecord, error) {
	return func(prev string) (ledger.AuditRecord, error) {
		score := 10
		return ledger.AuditRecord{
			EventID:         id,
			TS:              "2026-01-01T00:00:00.000000Z",
			User:            "u",
			Session:         "s",
			ActionType:      "chat.respond",
			Decision:        "allow",
			Reason:          "policy_allow",
			RiskScore:       &score,
			ResourceRefs:    "[]",
			RedactedPayload: "{}",
			ResultRedacted:  "{}",
			PrevHash:        prev,
			Hash:            crypto.ChainHash(prev, []byte(id)),
		}, nil
	}
}

func testAuditOrder(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.AppendAudit(ctx, chainBuilder(fmt.Sprintf("e%d", i)))
		require.NoError(t, err)
	}

	chain, err := s.ListAuditChain(ctx, 0)
	require.NoError(t, err)
	require.Len(t, chain, 5)
	assert.Equal(t, "", chain[0].PrevHash)
	for i := 1; i < len(chain); i++ {
		assert.Equal(t, chain[i-1].Hash, chain[i].PrevHash)
		assert.Greater(t, chain[i].Seq, chain[i-1].Seq)
	}
	require.NotNil(t, chain[0].RiskScore)
	assert.Equal(t, 10, *chain[0].RiskScore)

	recent, err := s.ListAudit(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "e4", recent[0].EventID)
	assert.Equal(t, "e3", recent[1].EventID)

	head, err := s.ListAuditChain(ctx, 3)
	require.NoError(t, err)
	require.Len(t, head, 3)
	assert.Equal(t, "e0", head[0].EventID)
}

func testConcurrentAppends(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	const n = 25

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendAudit(ctx, chainBuilder(fmt.Sprintf("c%02d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	chain, err := s.ListAuditChain(ctx, 0)
	require.NoError(t, err)
	require.Len(t, chain, n)
	prev := ""
	for _, rec := range chain {
		require.Equal(t, prev, rec.PrevHash, "event %s forked the chain", rec.EventID)
		prev = rec.Hash
	}
}

func testAppendBuildError(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	boom := errors.New("boom")
	_, err := s.AppendAudit(ctx, func(string) (ledger.AuditRecord, error) { return ledger.AuditRecord{}, boom })
	require.ErrorIs(t, err, boom)

	chain, err := s.ListAuditChain(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func approvalRecord(id string) ledger.ApprovalRecord {
	return ledger.ApprovalRecord{
		ApprovalID:    id,
		ToolName:      "calendar.proposeHold",
		ParamsJSON:    `{"title":"sync"}`,
		HumanSummary:  "hold",
		RiskLevel:     "medium",
		Status:        "pending",
		Token:         "tok-" + id,
		CreatedBy:     "u1",
		CorrelationID: "corr",
		CreatedAt:     "2026-01-01T00:00:00.000000Z",
		UpdatedAt:     "2026-01-01T00:00:00.000000Z",
	}
}

func testApprovalLifecycle(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	_, err := s.GetApproval(ctx, "missing")
	require.ErrorIs(t, err, ledger.ErrNotFound)

	require.NoError(t, s.InsertApproval(ctx, approvalRecord("a1")))
	require.NoError(t, s.InsertApproval(ctx, approvalRecord("a2")))
	require.ErrorIs(t, s.InsertApproval(ctx, approvalRecord("a1")), ledger.ErrConflict)

	got, err := s.GetApproval(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, approvalRecord("a1"), got)

	approved, err := s.TransitionApproval(ctx, ledger.ApprovalTransition{ApprovalID: "a1", From: "pending", To: "approved", Actor: "boss", At: "2026-01-01T00:01:00.000000Z"})
	require.NoError(t, err)
	assert.Equal(t, "approved", approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, "boss", *approved.ApprovedBy)

	_, err = s.TransitionApproval(ctx, ledger.ApprovalTransition{ApprovalID: "a1", From: "pending", To: "approved", Actor: "boss", At: "x"})
	require.ErrorIs(t, err, ledger.ErrConflict)

	executed, err := s.TransitionApproval(ctx, ledger.ApprovalTransition{ApprovalID: "a1", From: "approved", To: "executed", At: "2026-01-01T00:02:00.000000Z"})
	require.NoError(t, err)
	require.NotNil(t, executed.ExecutedAt)

	rejected, err := s.TransitionApproval(ctx, ledger.ApprovalTransition{ApprovalID: "a2", From: "pending", To: "rejected", Actor: "boss", At: "2026-01-01T00:03:00.000000Z", Reason: "no"})
	require.NoError(t, err)
	require.NotNil(t, rejected.RejectReason)
	assert.Equal(t, "no", *rejected.RejectReason)

	_, err = s.TransitionApproval(ctx, ledger.ApprovalTransition{ApprovalID: "nope", From: "pending", To: "approved"})
	require.ErrorIs(t, err, ledger.ErrNotFound)

	all, err := s.ListApprovals(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a2", all[0].ApprovalID)

	onlyExecuted, err := s.ListApprovals(ctx, "executed")
	require.NoError(t, err)
	require.Len(t, onlyExecuted, 1)
	assert.Equal(t, "a1", onlyExecuted[0].ApprovalID)
}

func testApprovalCAS(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertApproval(ctx, approvalRecord("race")))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.TransitionApproval(ctx, ledger.ApprovalTransition{ApprovalID: "race", From: "pending", To: "approved", Actor: fmt.Sprintf("u%d", i), At: "t"})
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, ledger.ErrConflict)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func testHistory(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	resp := `{"ok":true}`
	require.NoError(t, s.PutHistory(ctx, ledger.HistoryRecord{HistoryID: "h1", Tool: "t", RequestJSON: "{}", Status: "ok", ResponseJSON: &resp, CreatedAt: "1"}))
	msg := "boom"
	require.NoError(t, s.PutHistory(ctx, ledger.HistoryRecord{HistoryID: "h2", Tool: "t", RequestJSON: "{}", Status: "error", Error: &msg, CreatedAt: "2"}))

	all, err := s.ListHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "h2", all[0].HistoryID)
	require.NotNil(t, all[0].Error)
	assert.Nil(t, all[0].ResponseJSON)

	one, err := s.ListHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
}
