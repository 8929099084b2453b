package types

// AuditEvent is one link of the hash chain with its JSON sub-fields parsed.
type AuditEvent struct {
	Seq             int64    `json:"seq"`
	ID              string   `json:"id"`
	TS              string   `json:"ts"`
	User            string   `json:"user"`
	Session         string   `json:"session"`
	ActionType      string   `json:"actionType"`
	Decision        string   `json:"decision"`
	Reason          string   `json:"reason"`
	RiskScore       *int     `json:"riskScore"`
	ResourceRefs    []string `json:"resourceRefs"`
	RedactedPayload any      `json:"redactedPayload"`
	ResultRedacted  any      `json:"resultRedacted"`
	PrevHash        string   `json:"prevHash"`
	Hash            string   `json:"hash"`
}

// ChainVerification is the outcome of replaying the audit chain.
type ChainVerification struct {
	OK       bool   `json:"ok"`
	Count    int    `json:"count,omitempty"`
	LastHash string `json:"lastHash,omitempty"`
	FailedAt string `json:"failedAt,omitempty"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}
