package types

type ToolCallStatus string

const (
	ToolCallOK               ToolCallStatus = "ok"
	ToolCallApprovalRequired ToolCallStatus = "approval_required"
	ToolCallBlocked          ToolCallStatus = "blocked"
	ToolCallError            ToolCallStatus = "error"
)

type ToolCallResult struct {
	Status   ToolCallStatus `json:"status"`
	Data     any            `json:"data,omitempty"`
	Approval *Approval      `json:"approval,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type HistoryStatus string

const (
	HistoryOK              HistoryStatus = "ok"
	HistoryBlocked         HistoryStatus = "blocked"
	HistoryPendingApproval HistoryStatus = "pending_approval"
	HistoryError           HistoryStatus = "error"
)

// HistoryEntry is one row of the tool-call history. Request and response
// are stored redacted.
type HistoryEntry struct {
	ID        string        `json:"id"`
	Tool      string        `json:"tool"`
	Request   any           `json:"request"`
	Status    HistoryStatus `json:"status"`
	Response  any           `json:"response,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt string        `json:"createdAt"`
}

// ToolInfo is the public view of a registered tool.
type ToolInfo struct {
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	RiskLevel        string `json:"riskLevel,omitempty"`
	Outbound         bool   `json:"outbound"`
	RequiresApproval bool   `json:"requiresApproval"`
}
