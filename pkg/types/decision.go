package types

type Verdict string

const (
	VerdictAllow           Verdict = "allow"
	VerdictDeny            Verdict = "deny"
	VerdictRequireApproval Verdict = "require_approval"
)

type Sensitivity struct {
	PHI     bool `json:"phi"`
	PII     bool `json:"pii"`
	Secrets bool `json:"secrets"`
	Finance bool `json:"finance"`
	System  bool `json:"system"`
}

type Classification struct {
	Sensitivity     Sensitivity `json:"sensitivity"`
	ResourceRefs    []string    `json:"resourceRefs"`
	OutboundDomains []string    `json:"outboundDomains"`
}

type AutonomyDecision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason"`
}

type PolicyDecision struct {
	Decision       Verdict           `json:"decision"`
	Reason         string            `json:"reason"`
	RiskScore      int               `json:"riskScore"`
	Classification Classification    `json:"classification"`
	Autonomy       *AutonomyDecision `json:"autonomy,omitempty"`
	PolicyHash     string            `json:"policyHash,omitempty"`
}

// AutonomyAllowed reports whether the autonomy sub-decision exempts the
// action from approval.
func (d PolicyDecision) AutonomyAllowed() bool {
	return d.Autonomy != nil && d.Autonomy.Allow
}
