// Package gate runs every tool call through classification, scoring,
// policy evaluation and audit before any handler is invoked.
package gate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/davidahmann/agentgate/internal/approval"
	"github.com/davidahmann/agentgate/internal/audit"
	"github.com/davidahmann/agentgate/internal/classify"
	"github.com/davidahmann/agentgate/internal/crypto"
	"github.com/davidahmann/agentgate/internal/killswitch"
	"github.com/davidahmann/agentgate/internal/ledger"
	"github.com/davidahmann/agentgate/internal/legacy"
	"github.com/davidahmann/agentgate/internal/metrics"
	"github.com/davidahmann/agentgate/internal/policy"
	"github.com/davidahmann/agentgate/internal/redact"
	"github.com/davidahmann/agentgate/internal/tools"
	"github.com/davidahmann/agentgate/pkg/types"
)

// Audit decisions and reasons written by the gateway itself, next to the
// policy verdicts.
const (
	DecisionError            = "error"
	DecisionApprovalApproved = "approval_approved"
	DecisionApprovalRejected = "approval_rejected"
	DecisionApprovalNoop     = "approval_noop"

	ReasonLegacyBlock          = "mcp_policy_block"
	ReasonToolRequiresApproval = "tool_requires_approval"
	ReasonApprovalExecuted     = "approval_executed"
	ReasonApprovalNotPending   = "approval_not_pending"
	ReasonApproved             = "approved"
	ReasonRejected             = "rejected"
	ReasonStale                = "stale"
	ReasonStopPhrase           = "stop_phrase"
)

// PlainSink receives the plaintext audit copy of legacy-gate events.
type PlainSink interface {
	Write(ev legacy.Event) error
}

type Deps struct {
	Tools     *tools.Registry
	Policy    *policy.Evaluator
	Approvals *approval.Workflow
	Audit     *audit.Log
	History   ledger.HistoryStore
	Redactors redact.Source

	// KillSwitch is engaged when a call carries the policy stop phrase.
	// Legacy and Sink are optional too.
	KillSwitch *killswitch.Switch
	Legacy     *legacy.Evaluator
	Sink       PlainSink
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

type Gateway struct {
	tools     *tools.Registry
	policy    *policy.Evaluator
	approvals *approval.Workflow
	audit     *audit.Log
	history   ledger.HistoryStore
	redactors redact.Source
	ks        *killswitch.Switch
	legacy    *legacy.Evaluator
	sink      PlainSink
	metrics   *metrics.Metrics
	now       func() time.Time
	newID     func() string
}

func New(d Deps) *Gateway {
	g := &Gateway{
		tools:     d.Tools,
		policy:    d.Policy,
		approvals: d.Approvals,
		audit:     d.Audit,
		history:   d.History,
		redactors: d.Redactors,
		ks:        d.KillSwitch,
		legacy:    d.Legacy,
		sink:      d.Sink,
		metrics:   d.Metrics,
		now:       d.Now,
		newID:     uuid.NewString,
	}
	if g.redactors == nil {
		g.redactors = redact.Static(redact.Default())
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

func (g *Gateway) Tools() []types.ToolInfo {
	return g.tools.List()
}

func (g *Gateway) redactor() *redact.Redactor {
	if r := g.redactors.Redactor(); r != nil {
		return r
	}
	return redact.Default()
}

// call is the state shared by the steps of one CallTool or Execute.
type call struct {
	def      tools.Definition
	params   map[string]any
	caller   types.CallerContext
	targets  []string
	decision types.PolicyDecision
	legacy   *legacy.Result
	redacted map[string]any
}

func (g *Gateway) evaluate(ctx context.Context, def tools.Definition, params map[string]any, caller types.CallerContext) *call {
	c := &call{def: def, params: params, caller: caller}
	c.targets = def.Targets(params, caller)
	c.decision = g.policy.Evaluate(ctx, policy.Request{
		ActionType:      def.Name,
		Params:          params,
		OutboundTargets: c.targets,
		Caller:          caller,
	})
	g.metrics.ObserveDecision(string(c.decision.Decision), c.decision.Reason, c.decision.RiskScore)
	c.redacted = g.redactor().RedactParams(params)
	if g.legacy != nil {
		res := g.legacy.Evaluate(legacy.Tool{
			Name:             def.Name,
			Outbound:         def.Outbound,
			RequiresApproval: def.NeedsApproval(params, caller),
		}, params, caller, c.targets)
		c.legacy = &res
	}
	return c
}

func (g *Gateway) entry(c *call, decision, reason string, result any) audit.Entry {
	score := c.decision.RiskScore
	return audit.Entry{
		User:         c.caller.UserID,
		Session:      c.caller.Session(),
		ActionType:   c.def.Name,
		Decision:     decision,
		Reason:       reason,
		RiskScore:    &score,
		ResourceRefs: c.decision.Classification.ResourceRefs,
		Payload:      c.redacted,
		Result:       result,
	}
}

// refuse audits a deny or legacy block and returns the matching error.
func (g *Gateway) refuse(ctx context.Context, c *call) error {
	var gerr *Error
	var reason string
	if c.decision.Decision == types.VerdictDeny {
		reason = c.decision.Reason
		gerr = newError(CodePolicyDenied, 403, reason)
	} else {
		reason = ReasonLegacyBlock
		gerr = newError(CodePolicyBlocked, 403, reason)
	}
	log.Info().Str("tool", c.def.Name).Str("reason", reason).Int("risk_score", c.decision.RiskScore).Msg("tool_call_denied")

	_, auditErr := g.audit.Append(ctx, g.entry(c, string(types.VerdictDeny), reason, map[string]any{"error": gerr.Code}))
	if gerr.Code == CodePolicyBlocked {
		g.plain(legacy.Event{Type: legacy.EventToolCallBlocked, Tool: c.def.Name, Reason: "policy_block", Params: g.plainParams(c)}, c.caller)
	}
	g.record(ctx, c.def.Name, c.redacted, types.HistoryBlocked, nil, gerr.Code)
	g.metrics.IncrementToolCall(c.def.Name, string(types.ToolCallBlocked))
	if auditErr != nil {
		logAuditFailure(auditErr, c.def.Name)
		return errors.Join(gerr, auditErr)
	}
	return gerr
}

func (g *Gateway) refused(c *call) bool {
	return c.decision.Decision == types.VerdictDeny || (c.legacy != nil && c.legacy.Block)
}

// plainParams is the params view written to the plaintext sink: the
// legacy PHI view when the legacy gate ran, always passed through the
// redactor.
func (g *Gateway) plainParams(c *call) any {
	if c.legacy != nil {
		return g.redactor().RedactParams(c.legacy.RedactedParams)
	}
	return c.redacted
}

// CallTool runs the named tool if policy allows it, or parks it behind an
// approval when policy or the tool demands one.
func (g *Gateway) CallTool(ctx context.Context, name string, params map[string]any, caller types.CallerContext) (types.ToolCallResult, error) {
	def, ok := g.tools.Get(name)
	if !ok {
		return types.ToolCallResult{}, newError(CodeToolNotFound, 404, "")
	}
	if params == nil {
		params = map[string]any{}
	}
	g.standDown(ctx, params, caller)

	c := g.evaluate(ctx, def, params, caller)
	if g.refused(c) {
		return types.ToolCallResult{}, g.refuse(ctx, c)
	}

	needsApproval := c.decision.Decision == types.VerdictRequireApproval ||
		def.NeedsApproval(params, caller) ||
		(c.legacy != nil && c.legacy.RequiresApproval)
	if needsApproval && !c.decision.AutonomyAllowed() {
		return g.park(ctx, c)
	}

	reason := c.decision.Reason
	if needsApproval {
		reason = c.decision.Autonomy.Reason
	}
	return g.run(ctx, c, reason, nil)
}

// standDown engages the kill switch when the params carry the policy stop
// phrase. The call that carried it is then evaluated against the engaged
// switch.
func (g *Gateway) standDown(ctx context.Context, params map[string]any, caller types.CallerContext) {
	if g.ks == nil {
		return
	}
	phrase := g.policy.Snapshot().Document.KillSwitch.StopPhrase
	if !killswitch.IsStopPhrase(classify.Serialize(params), phrase) {
		return
	}
	if _, err := g.ks.Set(ctx, true, ReasonStopPhrase, createdBy(caller)); err != nil {
		log.Error().Err(err).Msg("kill_switch_engage_failed")
		return
	}
	log.Warn().Str("user", caller.UserID).Msg("kill_switch_stop_phrase")
}

func (g *Gateway) park(ctx context.Context, c *call) (types.ToolCallResult, error) {
	a, err := g.approvals.Create(ctx, approval.CreateRequest{
		ToolName:      c.def.Name,
		Params:        c.redacted,
		HumanSummary:  g.redactor().RedactString(c.def.Summary(c.params)),
		RiskLevel:     c.def.Risk(),
		CreatedBy:     createdBy(c.caller),
		CorrelationID: c.caller.Correlation(),
	})
	if err != nil {
		return types.ToolCallResult{}, err
	}

	reason := c.decision.Reason
	if c.decision.Decision != types.VerdictRequireApproval {
		reason = ReasonToolRequiresApproval
	}
	log.Info().Str("tool", c.def.Name).Str("approval_id", a.ID).Str("reason", reason).Int("risk_score", c.decision.RiskScore).Msg("tool_call_requires_approval")

	_, auditErr := g.audit.Append(ctx, g.entry(c, string(types.VerdictRequireApproval), reason, map[string]any{"approvalId": a.ID}))
	g.plain(legacy.Event{Type: legacy.EventToolCallRequiresApproval, Tool: c.def.Name, Params: g.plainParams(c), ApprovalID: a.ID}, c.caller)
	g.record(ctx, c.def.Name, c.redacted, types.HistoryPendingApproval, map[string]any{"approvalId": a.ID}, "")
	g.metrics.IncrementToolCall(c.def.Name, string(types.ToolCallApprovalRequired))
	if auditErr != nil {
		logAuditFailure(auditErr, c.def.Name)
		return types.ToolCallResult{}, auditErr
	}
	return types.ToolCallResult{Status: types.ToolCallApprovalRequired, Approval: &a}, nil
}

// run invokes the handler. The handler and the audit records after it use a
// context that ignores caller cancellation so the outcome is always logged.
func (g *Gateway) run(ctx context.Context, c *call, reason string, executed *types.Approval) (types.ToolCallResult, error) {
	hctx := context.WithoutCancel(ctx)
	start := g.now()
	result, err := c.def.Handler(hctx, c.params, c.caller)
	elapsed := g.now().Sub(start)
	g.metrics.ObserveHandlerLatency(c.def.Name, elapsed)

	r := g.redactor()
	if err != nil {
		msg := r.RedactString(err.Error())
		log.Warn().Str("tool", c.def.Name).Str("error", msg).Msg("tool_call_failed")
		if _, auditErr := g.audit.Append(hctx, g.entry(c, DecisionError, msg, map[string]any{"error": msg})); auditErr != nil {
			logAuditFailure(auditErr, c.def.Name)
		}
		g.record(hctx, c.def.Name, c.redacted, types.HistoryError, nil, msg)
		g.metrics.IncrementToolCall(c.def.Name, string(types.ToolCallError))
		return types.ToolCallResult{}, err
	}

	redactedResult := r.RedactPayload(result)
	_, auditErr := g.audit.Append(hctx, g.entry(c, string(types.VerdictAllow), reason, redactedResult))

	ev := legacy.Event{Type: legacy.EventToolCall, Tool: c.def.Name, Params: g.plainParams(c), Result: resultSummary(redactedResult), DurationMs: elapsed.Milliseconds(), Status: "ok"}
	if executed != nil {
		ev = legacy.Event{Type: legacy.EventApprovalExecuted, Tool: c.def.Name, Params: g.plainParams(c), ApprovalID: executed.ID, Status: "ok"}
	}
	g.plain(ev, c.caller)
	g.record(hctx, c.def.Name, c.redacted, types.HistoryOK, redactedResult, "")
	g.metrics.IncrementToolCall(c.def.Name, string(types.ToolCallOK))

	out := types.ToolCallResult{Status: types.ToolCallOK, Data: result}
	if auditErr != nil {
		logAuditFailure(auditErr, c.def.Name)
		return out, auditErr
	}
	return out, nil
}

// Approve moves a pending approval to approved. Approving anything else
// returns it unchanged and records a no-op.
func (g *Gateway) Approve(ctx context.Context, id, by string) (types.Approval, error) {
	a, changed, err := g.approvals.Approve(ctx, id, by)
	if errors.Is(err, approval.ErrNotFound) {
		return types.Approval{}, newError(CodeApprovalNotFound, 404, "")
	}
	if err != nil {
		return types.Approval{}, err
	}
	decision, reason := DecisionApprovalApproved, ReasonApproved
	if !changed {
		decision, reason = DecisionApprovalNoop, ReasonApprovalNotPending
	}
	if err := g.appendApprovalEvent(ctx, a, by, decision, reason); err != nil {
		return a.WithoutToken(), err
	}
	if changed {
		g.plain(legacy.Event{Type: legacy.EventApprovalApproved, Tool: a.ToolName, ApprovalID: a.ID}, types.CallerContext{UserID: by, CorrelationID: a.CorrelationID})
	}
	return a.WithoutToken(), nil
}

// Reject closes a pending approval.
func (g *Gateway) Reject(ctx context.Context, id, by, reason string) (types.Approval, error) {
	if reason == "" {
		reason = ReasonRejected
	}
	a, changed, err := g.approvals.Reject(ctx, id, by, reason)
	if errors.Is(err, approval.ErrNotFound) {
		return types.Approval{}, newError(CodeApprovalNotFound, 404, "")
	}
	if err != nil {
		return types.Approval{}, err
	}
	decision, auditReason := DecisionApprovalRejected, reason
	if !changed {
		decision, auditReason = DecisionApprovalNoop, ReasonApprovalNotPending
	}
	if err := g.appendApprovalEvent(ctx, a, by, decision, auditReason); err != nil {
		return a.WithoutToken(), err
	}
	if changed {
		g.plain(legacy.Event{Type: legacy.EventApprovalRejected, Tool: a.ToolName, ApprovalID: a.ID, Reason: reason}, types.CallerContext{UserID: by, CorrelationID: a.CorrelationID})
	}
	return a.WithoutToken(), nil
}

func (g *Gateway) appendApprovalEvent(ctx context.Context, a types.Approval, by, decision, reason string) error {
	_, err := g.audit.Append(ctx, audit.Entry{
		User:       by,
		Session:    a.CorrelationID,
		ActionType: a.ToolName,
		Decision:   decision,
		Reason:     reason,
		Payload:    map[string]any{"approvalId": a.ID, "status": string(a.Status)},
	})
	if err != nil {
		logAuditFailure(err, a.ToolName)
	}
	return err
}

// Execute runs an approved action with its stored params after checking
// the token and re-running policy against the current configuration.
func (g *Gateway) Execute(ctx context.Context, id, token string, caller types.CallerContext) (types.ToolCallResult, error) {
	a, err := g.approvals.Get(ctx, id)
	if errors.Is(err, approval.ErrNotFound) {
		return types.ToolCallResult{}, newError(CodeApprovalNotFound, 404, "")
	}
	if err != nil {
		return types.ToolCallResult{}, err
	}
	if caller.UserID == "" {
		caller.UserID = a.CreatedBy
	}
	if caller.CorrelationID == "" {
		caller.CorrelationID = a.CorrelationID
	}

	if !crypto.TokensEqual(a.Token, token) {
		return types.ToolCallResult{}, g.refuseExecute(ctx, a, caller, newError(CodeApprovalTokenInvalid, 403, ""))
	}
	if a.Status != types.ApprovalApproved {
		reason := "approval_" + string(a.Status)
		if a.Status == types.ApprovalRejected {
			reason = CodeApprovalRejected
		}
		return types.ToolCallResult{}, g.refuseExecute(ctx, a, caller, newError(CodeApprovalNotReady, 400, reason))
	}

	def, ok := g.tools.Get(a.ToolName)
	if !ok {
		return types.ToolCallResult{}, newError(CodeToolNotFound, 404, "")
	}

	c := g.evaluate(ctx, def, a.Params, caller)
	if g.refused(c) {
		return types.ToolCallResult{}, g.refuse(ctx, c)
	}

	if _, err := g.approvals.MarkExecuted(ctx, a.ID); err != nil {
		if errors.Is(err, approval.ErrConflict) {
			return types.ToolCallResult{}, g.refuseExecute(ctx, a, caller, newError(CodeApprovalNotReady, 400, "approval_executed"))
		}
		return types.ToolCallResult{}, err
	}
	return g.run(ctx, c, ReasonApprovalExecuted, &a)
}

func (g *Gateway) refuseExecute(ctx context.Context, a types.Approval, caller types.CallerContext, gerr *Error) error {
	log.Info().Str("tool", a.ToolName).Str("approval_id", a.ID).Str("reason", gerr.Code).Msg("approval_execute_refused")
	_, err := g.audit.Append(ctx, audit.Entry{
		User:       caller.UserID,
		Session:    caller.Session(),
		ActionType: a.ToolName,
		Decision:   string(types.VerdictDeny),
		Reason:     gerr.Code,
		Payload:    map[string]any{"approvalId": a.ID, "status": string(a.Status)},
	})
	if err != nil {
		logAuditFailure(err, a.ToolName)
		return errors.Join(gerr, err)
	}
	return gerr
}

// RejectStale rejects pending approvals older than olderThan as the system
// actor and returns how many it closed.
func (g *Gateway) RejectStale(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := g.approvals.ListStale(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range stale {
		if _, changed, err := g.approvals.Reject(ctx, a.ID, approval.SystemActor, ReasonStale); err != nil {
			return n, err
		} else if !changed {
			continue
		}
		g.metrics.IncrementApproval(ReasonStale)
		if err := g.appendApprovalEvent(ctx, a, approval.SystemActor, DecisionApprovalRejected, ReasonStale); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Decide evaluates a hypothetical call without auditing it or running
// anything.
func (g *Gateway) Decide(ctx context.Context, actionType string, params map[string]any, targets []string, caller types.CallerContext) types.PolicyDecision {
	return g.policy.Evaluate(ctx, policy.Request{ActionType: actionType, Params: params, OutboundTargets: targets, Caller: caller})
}

func (g *Gateway) plain(ev legacy.Event, caller types.CallerContext) {
	if g.sink == nil {
		return
	}
	ev.At = g.now().UTC().Format(time.RFC3339Nano)
	ev.CorrelationID = caller.Correlation()
	ev.UserID = caller.UserID
	if err := g.sink.Write(ev); err != nil {
		log.Warn().Err(err).Str("type", ev.Type).Msg("plain_audit_write_failed")
	}
}

func createdBy(caller types.CallerContext) string {
	if caller.UserID != "" {
		return caller.UserID
	}
	return "user"
}

func resultSummary(result any) string {
	s, ok := result.(string)
	if !ok {
		return "ok"
	}
	runes := []rune(legacy.RedactPHI(s))
	if len(runes) > 240 {
		runes = runes[:240]
	}
	return string(runes)
}

func logAuditFailure(err error, tool string) {
	log.Error().Err(err).Str("tool", tool).Msg("audit_append_failed")
}

// StaleJob returns the maintenance job that rejects stale approvals. A
// non-positive olderThan disables it.
func (g *Gateway) StaleJob(olderThan time.Duration) approval.Job {
	return func(ctx context.Context) (int, error) {
		if olderThan <= 0 {
			return 0, nil
		}
		return g.RejectStale(ctx, olderThan)
	}
}
