package policy

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/davidahmann/agentgate/internal/classify"
	"github.com/davidahmann/agentgate/internal/killswitch"
	"github.com/davidahmann/agentgate/internal/redact"
	"github.com/davidahmann/agentgate/internal/risk"
	"github.com/davidahmann/agentgate/pkg/types"
)

// Decision reasons.
const (
	ReasonKillSwitch          = "kill_switch_active"
	ReasonNotAllowlisted      = "action_not_allowlisted"
	ReasonAbsoluteProhibition = "absolute_prohibition"
	ReasonPasswordStore       = "browser_password_store"
	ReasonSelfModify          = "self_modify_safety"
	ReasonDisableLogging      = "disable_logging"
	ReasonMemoryTier          = "memory_tier_policy"
	ReasonDomainBlocked       = "domain_blocked"
	ReasonRequiresApproval    = "policy_requires_approval"
	ReasonAllow               = "policy_allow"
)

// KillSwitchReader reports the live kill-switch state.
type KillSwitchReader interface {
	State(ctx context.Context) (killswitch.State, error)
}

// Request is one proposed action.
type Request struct {
	ActionType      string
	Params          map[string]any
	OutboundTargets []string
	// ResourceRefs overrides the refs extracted from Params when non-empty.
	ResourceRefs []string
	Caller       types.CallerContext
}

// Evaluator decides allow, deny or require_approval for a Request. For a
// fixed policy snapshot and kill-switch state it is a pure function.
type Evaluator struct {
	policies   Provider
	killSwitch KillSwitchReader
	identities IdentityDirectory
}

func NewEvaluator(policies Provider, ks KillSwitchReader, ids IdentityDirectory) *Evaluator {
	return &Evaluator{policies: policies, killSwitch: ks, identities: ids}
}

// Snapshot returns the policy revision evaluations currently read.
func (e *Evaluator) Snapshot() *Snapshot {
	return e.policies.Current()
}

func (e *Evaluator) Evaluate(ctx context.Context, req Request) types.PolicyDecision {
	return e.EvaluateWith(e.policies.Current(), e.killSwitchEngaged(ctx), req)
}

// EvaluateWith runs the ordered rules against an explicit snapshot.
func (e *Evaluator) EvaluateWith(snap *Snapshot, killSwitchEngaged bool, req Request) types.PolicyDecision {
	doc := &snap.Document
	classification := classify.Classify(req.ActionType, req.Params, req.OutboundTargets)
	refs := classification.ResourceRefs
	if len(req.ResourceRefs) > 0 {
		refs = req.ResourceRefs
	}

	protectedHit := anyGlob(refs, snap.protected)
	unknownDomain := domainUnknown(classification.OutboundDomains, doc)
	score := risk.Score(risk.Input{
		ActionType:       req.ActionType,
		Sensitivity:      classification.Sensitivity,
		OutboundDomains:  classification.OutboundDomains,
		ProtectedPathHit: protectedHit,
		UnknownDomain:    unknownDomain,
	})

	decision := types.PolicyDecision{
		RiskScore:      score,
		Classification: classification,
		PolicyHash:     snap.Hash,
		Autonomy:       EvaluateAutonomy(doc, req.ActionType, req.Params, req.Caller, e.identities),
	}
	deny := func(reason string) types.PolicyDecision {
		decision.Decision = types.VerdictDeny
		decision.Reason = reason
		return decision
	}

	raw := strings.ToLower(classify.Serialize(req.Params))

	switch {
	case (killSwitchEngaged || doc.KillSwitch.Enabled) && !killswitch.AllowedWhenActive(req.ActionType):
		return deny(ReasonKillSwitch)
	case !contains(doc.AllowActions, req.ActionType):
		return deny(ReasonNotAllowlisted)
	case contains(doc.AbsoluteProhibitions, req.ActionType):
		return deny(ReasonAbsoluteProhibition)
	case touchesPasswordStore(raw):
		return deny(ReasonPasswordStore)
	case modifiesOwnSafety(req.ActionType) && anyGlob(refs, snap.self):
		return deny(ReasonSelfModify)
	case disablesLogging(raw):
		return deny(ReasonDisableLogging)
	case req.ActionType == "memory.write" && memoryWriteDenied(req.Params, doc):
		return deny(ReasonMemoryTier)
	case domainBlocked(classification.OutboundDomains, doc):
		return deny(ReasonDomainBlocked)
	}

	requiresApproval := contains(doc.RequiresApproval, req.ActionType) ||
		protectedHit ||
		(unknownDomain && doc.RequireApprovalForNewDomains()) ||
		score >= doc.Threshold() ||
		(classification.Sensitivity.PHI && req.ActionType != "memory.read")

	if requiresApproval {
		decision.Decision = types.VerdictRequireApproval
		decision.Reason = ReasonRequiresApproval
		return decision
	}
	decision.Decision = types.VerdictAllow
	decision.Reason = ReasonAllow
	return decision
}

// killSwitchEngaged fails closed: an unreadable switch counts as engaged.
func (e *Evaluator) killSwitchEngaged(ctx context.Context) bool {
	if e.killSwitch == nil {
		return false
	}
	state, err := e.killSwitch.State(ctx)
	if err != nil {
		log.Error().Err(err).Msg("kill_switch_read_failed")
		return true
	}
	return state.Enabled
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func touchesPasswordStore(raw string) bool {
	return (strings.Contains(raw, "password") && strings.Contains(raw, "chrome://")) ||
		strings.Contains(raw, "passwords.google.com")
}

func modifiesOwnSafety(actionType string) bool {
	return strings.HasPrefix(actionType, "file.") || actionType == "system.modify"
}

func disablesLogging(raw string) bool {
	return strings.Contains(raw, "disable logging") ||
		strings.Contains(raw, "disable audit") ||
		(strings.Contains(raw, "audit.log") && strings.Contains(raw, "delete"))
}

func memoryWriteDenied(params map[string]any, doc *Document) bool {
	tier, ok := memoryTier(params["tier"])
	if !ok {
		return false
	}
	if tier >= 4 && !doc.Tier4AllowWrite() {
		return true
	}
	return tier < 3 && redact.DetectSecrets(contentText(params["content"]))
}

// memoryTier defaults to 1 when absent; unparsable values are reported
// as not ok.
func memoryTier(v any) (float64, bool) {
	var tier float64
	switch value := v.(type) {
	case nil:
		return 1, true
	case float64:
		tier = value
	case float32:
		tier = float64(value)
	case int:
		tier = float64(value)
	case int64:
		tier = float64(value)
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			return 0, false
		}
		tier = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0, false
		}
		tier = f
	default:
		return 0, false
	}
	if math.IsNaN(tier) || math.IsInf(tier, 0) {
		return 0, false
	}
	return tier, true
}

func contentText(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

func domainBlocked(domains []string, doc *Document) bool {
	for _, domain := range domains {
		if containsFold(doc.NetworkRules.BlocklistDomains, domain) {
			return true
		}
	}
	return false
}

func domainUnknown(domains []string, doc *Document) bool {
	if len(domains) == 0 {
		return false
	}
	if len(doc.NetworkRules.AllowlistDomains) == 0 {
		return doc.RequireApprovalForNewDomains()
	}
	for _, domain := range domains {
		if !containsFold(doc.NetworkRules.AllowlistDomains, domain) {
			return true
		}
	}
	return false
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), value) {
			return true
		}
	}
	return false
}
