package types

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalExecuted ApprovalStatus = "executed"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalExecuted || s == ApprovalRejected
}

// Approval gates a single action instance behind a human sign-off.
// Token is the execution capability; it is only ever returned to the
// caller that created the approval.
type Approval struct {
	ID            string         `json:"id"`
	ToolName      string         `json:"toolName"`
	Params        map[string]any `json:"params"`
	HumanSummary  string         `json:"humanSummary"`
	RiskLevel     string         `json:"riskLevel"`
	Status        ApprovalStatus `json:"status"`
	Token         string         `json:"token,omitempty"`
	CreatedBy     string         `json:"createdBy"`
	ApprovedBy    string         `json:"approvedBy,omitempty"`
	ApprovedAt    string         `json:"approvedAt,omitempty"`
	ExecutedAt    string         `json:"executedAt,omitempty"`
	RejectedBy    string         `json:"rejectedBy,omitempty"`
	RejectedAt    string         `json:"rejectedAt,omitempty"`
	RejectReason  string         `json:"rejectReason,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	CreatedAt     string         `json:"createdAt"`
}

// WithoutToken returns a copy safe for listings.
func (a Approval) WithoutToken() Approval {
	a.Token = ""
	return a
}
