// Package approval owns the pending -> approved -> executed lifecycle of
// approval-gated tool calls.
package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/davidahmann/agentgate/internal/crypto"
	"github.com/davidahmann/agentgate/internal/ledger"
	"github.com/davidahmann/agentgate/internal/metrics"
	"github.com/davidahmann/agentgate/pkg/types"
)

// SystemActor is recorded as the rejecter of approvals closed by maintenance.
const SystemActor = "system"

var (
	ErrNotFound = ledger.ErrNotFound
	// ErrConflict means the approval was not in the state the transition
	// requires. The current approval is returned alongside it.
	ErrConflict = ledger.ErrConflict
)

// Notifier is told about new pending approvals. Failures are logged and
// never fail the call that created the approval.
type Notifier interface {
	NotifyApprovalCreated(ctx context.Context, a types.Approval) error
}

type CreateRequest struct {
	ToolName      string
	Params        map[string]any
	HumanSummary  string
	RiskLevel     string
	CreatedBy     string
	CorrelationID string
}

type Workflow struct {
	store    ledger.ApprovalStore
	notifier Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
	newID    func() string
	newToken func() (string, error)
}

type Option func(*Workflow)

func WithNotifier(n Notifier) Option {
	return func(w *Workflow) { w.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Workflow) { w.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

func New(store ledger.ApprovalStore, opts ...Option) *Workflow {
	w := &Workflow{
		store:    store,
		now:      time.Now,
		newID:    uuid.NewString,
		newToken: func() (string, error) { return crypto.NewToken(crypto.DefaultTokenBytes) },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Create stores a pending approval with a fresh id and token.
func (w *Workflow) Create(ctx context.Context, req CreateRequest) (types.Approval, error) {
	token, err := w.newToken()
	if err != nil {
		return types.Approval{}, fmt.Errorf("mint approval token: %w", err)
	}
	params := req.Params
	if params == nil {
		params = map[string]any{}
	}
	paramsJSON, err := crypto.CanonicalString(params)
	if err != nil {
		return types.Approval{}, fmt.Errorf("encode approval params: %w", err)
	}

	now := ledger.FormatTime(w.now())
	rec := ledger.ApprovalRecord{
		ApprovalID:    w.newID(),
		ToolName:      req.ToolName,
		ParamsJSON:    paramsJSON,
		HumanSummary:  req.HumanSummary,
		RiskLevel:     req.RiskLevel,
		Status:        string(types.ApprovalPending),
		Token:         token,
		CreatedBy:     req.CreatedBy,
		CorrelationID: req.CorrelationID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := w.store.InsertApproval(ctx, rec); err != nil {
		return types.Approval{}, fmt.Errorf("insert approval: %w", err)
	}
	w.metrics.IncrementApproval("created")

	a := FromRecord(rec)
	if w.notifier != nil {
		if err := w.notifier.NotifyApprovalCreated(ctx, a.WithoutToken()); err != nil {
			log.Warn().Err(err).Str("approval_id", a.ID).Msg("approval_notify_failed")
		}
	}
	return a, nil
}

// Get returns the approval including its token.
func (w *Workflow) Get(ctx context.Context, id string) (types.Approval, error) {
	rec, err := w.store.GetApproval(ctx, id)
	if err != nil {
		return types.Approval{}, err
	}
	return FromRecord(rec), nil
}

// List returns approvals newest first with tokens removed. An empty status
// lists all of them.
func (w *Workflow) List(ctx context.Context, status types.ApprovalStatus) ([]types.Approval, error) {
	recs, err := w.store.ListApprovals(ctx, string(status))
	if err != nil {
		return nil, err
	}
	out := make([]types.Approval, 0, len(recs))
	for _, rec := range recs {
		out = append(out, FromRecord(rec).WithoutToken())
	}
	return out, nil
}

// RenotifyPending hands every pending approval to the notifier again. The
// notifier queue lives in memory, so the gateway calls this on startup to
// recover messages lost with the previous process.
func (w *Workflow) RenotifyPending(ctx context.Context) (int, error) {
	if w.notifier == nil {
		return 0, nil
	}
	pending, err := w.List(ctx, types.ApprovalPending)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, a := range pending {
		if err := w.notifier.NotifyApprovalCreated(ctx, a); err != nil {
			return sent, fmt.Errorf("renotify %s: %w", a.ID, err)
		}
		sent++
	}
	return sent, nil
}

// Approve moves a pending approval to approved. changed is false when the
// approval was not pending; it is then returned as it is.
func (w *Workflow) Approve(ctx context.Context, id, by string) (a types.Approval, changed bool, err error) {
	return w.transition(ctx, ledger.ApprovalTransition{
		ApprovalID: id,
		From:       string(types.ApprovalPending),
		To:         string(types.ApprovalApproved),
		Actor:      by,
	})
}

// Reject moves a pending approval to rejected.
func (w *Workflow) Reject(ctx context.Context, id, by, reason string) (types.Approval, bool, error) {
	return w.transition(ctx, ledger.ApprovalTransition{
		ApprovalID: id,
		From:       string(types.ApprovalPending),
		To:         string(types.ApprovalRejected),
		Actor:      by,
		Reason:     reason,
	})
}

// MarkExecuted claims an approved approval for execution. Exactly one
// caller wins; the others get ErrConflict.
func (w *Workflow) MarkExecuted(ctx context.Context, id string) (types.Approval, error) {
	a, changed, err := w.transition(ctx, ledger.ApprovalTransition{
		ApprovalID: id,
		From:       string(types.ApprovalApproved),
		To:         string(types.ApprovalExecuted),
	})
	if err != nil {
		return a, err
	}
	if !changed {
		return a, ErrConflict
	}
	return a, nil
}

func (w *Workflow) transition(ctx context.Context, t ledger.ApprovalTransition) (types.Approval, bool, error) {
	t.At = ledger.FormatTime(w.now())
	rec, err := w.store.TransitionApproval(ctx, t)
	switch {
	case errors.Is(err, ledger.ErrConflict):
		if rec.ApprovalID == "" {
			current, getErr := w.store.GetApproval(ctx, t.ApprovalID)
			if getErr != nil {
				return types.Approval{}, false, getErr
			}
			rec = current
		}
		return FromRecord(rec), false, nil
	case err != nil:
		return types.Approval{}, false, err
	}
	w.metrics.IncrementApproval(t.To)
	return FromRecord(rec), true, nil
}

// ListStale returns pending approvals created before now - olderThan.
func (w *Workflow) ListStale(ctx context.Context, olderThan time.Duration) ([]types.Approval, error) {
	recs, err := w.store.ListApprovals(ctx, string(types.ApprovalPending))
	if err != nil {
		return nil, err
	}
	cutoff := ledger.FormatTime(w.now().Add(-olderThan))
	out := []types.Approval{}
	for _, rec := range recs {
		if rec.CreatedAt < cutoff {
			out = append(out, FromRecord(rec).WithoutToken())
		}
	}
	return out, nil
}

func FromRecord(rec ledger.ApprovalRecord) types.Approval {
	params := map[string]any{}
	if rec.ParamsJSON != "" {
		if err := json.Unmarshal([]byte(rec.ParamsJSON), &params); err != nil || params == nil {
			params = map[string]any{}
		}
	}
	return types.Approval{
		ID:            rec.ApprovalID,
		ToolName:      rec.ToolName,
		Params:        params,
		HumanSummary:  rec.HumanSummary,
		RiskLevel:     rec.RiskLevel,
		Status:        types.ApprovalStatus(rec.Status),
		Token:         rec.Token,
		CreatedBy:     rec.CreatedBy,
		ApprovedBy:    deref(rec.ApprovedBy),
		ApprovedAt:    deref(rec.ApprovedAt),
		ExecutedAt:    deref(rec.ExecutedAt),
		RejectedBy:    deref(rec.RejectedBy),
		RejectedAt:    deref(rec.RejectedAt),
		RejectReason:  deref(rec.RejectReason),
		CorrelationID: rec.CorrelationID,
		CreatedAt:     rec.CreatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
