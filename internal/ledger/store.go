package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a lost compare-and-swap on a status transition.
	ErrConflict = errors.New("status conflict")
)

// Store is the persistence collaborator of the gateway. It is the only
// serialization point between concurrent requests.
type Store interface {
	AuditStore
	ApprovalStore
	HistoryStore
}

// AuditStore is the append-only hash-chain table.
type AuditStore interface {
	// AppendAudit reads the hash of the newest record, passes it to build and
	// persists the result, atomically with respect to other appends.
	AppendAudit(ctx context.Context, build func(prevHash string) (AuditRecord, error)) (AuditRecord, error)
	// ListAudit returns up to limit records newest first. limit <= 0 means all.
	ListAudit(ctx context.Context, limit int) ([]AuditRecord, error)
	// ListAuditChain returns up to limit records in ascending sequence order.
	ListAuditChain(ctx context.Context, limit int) ([]AuditRecord, error)
}

type ApprovalStore interface {
	InsertApproval(ctx context.Context, rec ApprovalRecord) error
	GetApproval(ctx context.Context, approvalID string) (ApprovalRecord, error)
	// ListApprovals returns approvals newest first, filtered by status when
	// status is non-empty.
	ListApprovals(ctx context.Context, status string) ([]ApprovalRecord, error)
	// TransitionApproval moves an approval from t.From to t.To. It returns
	// ErrNotFound for an unknown id and ErrConflict when the current status
	// is not t.From.
	TransitionApproval(ctx context.Context, t ApprovalTransition) (ApprovalRecord, error)
}

type HistoryStore interface {
	PutHistory(ctx context.Context, rec HistoryRecord) error
	// ListHistory returns up to limit entries newest first.
	ListHistory(ctx context.Context, limit int) ([]HistoryRecord, error)
}

// AuditRecord is one stored link of the chain. JSON sub-fields are kept as
// the exact canonical strings that were hashed.
type AuditRecord struct {
	Seq             int64
	EventID         string
	TS              string
	User            string
	Session         string
	ActionType      string
	Decision        string
	Reason          string
	RiskScore       *int
	ResourceRefs    string
	RedactedPayload string
	ResultRedacted  string
	PrevHash        string
	Hash            string
}

type ApprovalRecord struct {
	ApprovalID    string
	ToolName      string
	ParamsJSON    string
	HumanSummary  string
	RiskLevel     string
	Status        string
	Token         string
	CreatedBy     string
	ApprovedBy    *string
	ApprovedAt    *string
	ExecutedAt    *string
	RejectedBy    *string
	RejectedAt    *string
	RejectReason  *string
	CorrelationID string
	CreatedAt     string
	UpdatedAt     string
}

type ApprovalTransition struct {
	ApprovalID string
	From       string
	To         string
	Actor      string
	At         string
	Reason     string
}

// Apply writes the transition's bookkeeping fields onto rec.
func (t ApprovalTransition) Apply(rec *ApprovalRecord) {
	rec.Status = t.To
	rec.UpdatedAt = t.At
	at := t.At
	switch t.To {
	case "approved":
		actor := t.Actor
		rec.ApprovedBy = &actor
		rec.ApprovedAt = &at
	case "executed":
		rec.ExecutedAt = &at
	case "rejected":
		actor, reason := t.Actor, t.Reason
		rec.RejectedBy = &actor
		rec.RejectedAt = &at
		rec.RejectReason = &reason
	}
}

type HistoryRecord struct {
	HistoryID    string
	Tool         string
	RequestJSON  string
	Status       string
	ResponseJSON *string
	Error        *string
	CreatedAt    string
}

// TimeLayout is the fixed-width UTC layout for every stored timestamp, so
// string order equals time order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
