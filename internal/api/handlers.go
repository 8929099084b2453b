package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/davidahmann/agentgate/internal/approval"
	"github.com/davidahmann/agentgate/internal/audit"
	"github.com/davidahmann/agentgate/internal/auth"
	"github.com/davidahmann/agentgate/internal/gate"
	"github.com/davidahmann/agentgate/internal/killswitch"
	"github.com/davidahmann/agentgate/internal/policy"
	"github.com/davidahmann/agentgate/pkg/types"
)

// Audit decisions for operator kill-switch changes.
const (
	DecisionKillSwitchEnabled  = "kill_switch_enabled"
	DecisionKillSwitchDisabled = "kill_switch_disabled"
)

// Reloader is implemented by policy providers backed by a file.
type Reloader interface {
	Reload() (*policy.Snapshot, error)
}

type Handler struct {
	Auth       auth.Authenticator
	Gateway    *gate.Gateway
	Approvals  *approval.Workflow
	Audit      *audit.Log
	KillSwitch *killswitch.Switch
	Policy     policy.Provider
	Gatherer   prometheus.Gatherer
}

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type callRequest struct {
	Params  map[string]any       `json:"params"`
	Context *types.CallerContext `json:"context,omitempty"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type executeRequest struct {
	Token string `json:"token"`
}

type killSwitchRequest struct {
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason"`
}

type evaluateRequest struct {
	ActionType      string               `json:"actionType"`
	Params          map[string]any       `json:"params"`
	OutboundTargets []string             `json:"outboundTargets"`
	Context         *types.CallerContext `json:"context,omitempty"`
}

type policyResponse struct {
	Hash     string          `json:"hash"`
	Path     string          `json:"path,omitempty"`
	LoadedAt string          `json:"loadedAt,omitempty"`
	Document policy.Document `json:"document"`
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": h.Gateway.Tools()})
}

func (h *Handler) CallTool(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller := callerFor(r, req.Context)

	res, err := h.Gateway.CallTool(r.Context(), chi.URLParam(r, "name"), req.Params, caller)
	h.writeResult(w, res, err)
}

func (h *Handler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	status := types.ApprovalStatus(r.URL.Query().Get("status"))
	switch status {
	case "", types.ApprovalPending, types.ApprovalApproved, types.ApprovalExecuted, types.ApprovalRejected:
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_status"})
		return
	}
	list, err := h.Approvals.List(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": list})
}

func (h *Handler) GetApproval(w http.ResponseWriter, r *http.Request) {
	a, err := h.Approvals.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, approval.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: gate.CodeApprovalNotFound})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.WithoutToken())
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	a, err := h.Gateway.Approve(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	a, err := h.Gateway.Reject(r.Context(), chi.URLParam(r, "id"), actor(r), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.Gateway.Execute(r.Context(), chi.URLParam(r, "id"), req.Token, auth.CallerFrom(r.Context()))
	h.writeResult(w, res, err)
}

func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	events, err := h.Audit.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) VerifyAudit(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	res, err := h.Audit.Verify(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	entries, err := h.Gateway.History(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (h *Handler) KillSwitchStatus(w http.ResponseWriter, r *http.Request) {
	state, err := h.KillSwitch.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) SetKillSwitch(w http.ResponseWriter, r *http.Request) {
	var req killSwitchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller := auth.CallerFrom(r.Context())
	by := actor(r)
	state, err := h.KillSwitch.Set(r.Context(), req.Enabled, req.Reason, by)
	if err != nil {
		writeError(w, err)
		return
	}

	decision, action := DecisionKillSwitchDisabled, "kill_switch.disable"
	if req.Enabled {
		decision, action = DecisionKillSwitchEnabled, "kill_switch.enable"
	}
	log.Warn().Bool("enabled", req.Enabled).Str("by", by).Str("reason", req.Reason).Msg("kill_switch_changed")
	if _, err := h.Audit.Append(r.Context(), audit.Entry{
		User:       by,
		Session:    caller.Session(),
		ActionType: action,
		Decision:   decision,
		Reason:     req.Reason,
		Payload:    state,
	}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) PolicyInfo(w http.ResponseWriter, _ *http.Request) {
	snap := h.Policy.Current()
	resp := policyResponse{Hash: snap.Hash, Path: snap.Path, Document: snap.Document}
	if !snap.LoadedAt.IsZero() {
		resp.LoadedAt = snap.LoadedAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ReloadPolicy(w http.ResponseWriter, _ *http.Request) {
	reloader, ok := h.Policy.(Reloader)
	if !ok {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "policy_reload_unsupported"})
		return
	}
	snap, err := reloader.Reload()
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "policy_invalid", Reason: err.Error()})
		return
	}
	log.Info().Str("policy_hash", snap.Hash).Msg("policy_reloaded")
	writeJSON(w, http.StatusOK, map[string]string{"hash": snap.Hash})
}

// EvaluatePolicy is a dry run: nothing is audited or executed.
func (h *Handler) EvaluatePolicy(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ActionType == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "action_type_required"})
		return
	}
	if req.Params == nil {
		req.Params = map[string]any{}
	}
	decision := h.Gateway.Decide(r.Context(), req.ActionType, req.Params, req.OutboundTargets, callerFor(r, req.Context))
	writeJSON(w, http.StatusOK, decision)
}

// writeResult maps a gateway outcome onto a response. Gate errors carry
// their own status; a failing handler is a 502; a successful handler
// whose audit write failed is a 500.
func (h *Handler) writeResult(w http.ResponseWriter, res types.ToolCallResult, err error) {
	var ge *gate.Error
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.As(err, &ge):
		writeError(w, err)
	case res.Status == types.ToolCallOK:
		log.Error().Err(err).Msg("tool_call_audit_failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "audit_append_failed"})
	default:
		msg := err.Error()
		if h.Policy != nil {
			msg = h.Policy.Current().Redactor().RedactString(msg)
		}
		writeJSON(w, http.StatusBadGateway, types.ToolCallResult{Status: types.ToolCallError, Error: msg})
	}
}

func writeError(w http.ResponseWriter, err error) {
	var ge *gate.Error
	if errors.As(err, &ge) {
		writeJSON(w, gate.StatusOf(err), errorBody{Error: ge.Code, Reason: ge.Reason})
		return
	}
	log.Error().Err(err).Msg("api_internal_error")
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_json"})
		return false
	}
	return true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_limit"})
		return 0, false
	}
	return n, true
}

// callerFor prefers the authenticated header identity and fills the gaps
// from a body-supplied context.
func callerFor(r *http.Request, body *types.CallerContext) types.CallerContext {
	caller := auth.CallerFrom(r.Context())
	if body == nil {
		return caller
	}
	if caller.UserID == "" {
		caller.UserID = body.UserID
	}
	if caller.TenantID == "" {
		caller.TenantID = body.TenantID
	}
	if len(caller.Roles) == 0 {
		caller.Roles = body.Roles
	}
	if caller.SessionID == "" {
		caller.SessionID = body.SessionID
	}
	if caller.CorrelationID == "" {
		caller.CorrelationID = body.CorrelationID
	}
	if caller.Mode == "" {
		caller.Mode = body.Mode
	}
	return caller
}

func actor(r *http.Request) string {
	if id := auth.CallerFrom(r.Context()).UserID; id != "" {
		return id
	}
	return "api"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
