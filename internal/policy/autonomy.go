package policy

import (
	"fmt"
	"strings"

	"github.com/davidahmann/agentgate/pkg/types"
)

// IdentityDirectory lists the addresses that belong to a user.
type IdentityDirectory interface {
	Emails(userID string) []string
}

// StaticIdentities maps user ids to their own addresses.
type StaticIdentities map[string][]string

func (s StaticIdentities) Emails(userID string) []string {
	if userID == "" {
		userID = "local"
	}
	return s[userID]
}

var autonomyFlags = map[string]struct{}{
	"self":          {},
	"self_email":    {},
	"self_reminder": {},
}

// EvaluateAutonomy decides whether an email.send addressed only to the
// caller's own identity may skip approval. It returns nil when the action
// does not ask for autonomy at all.
func EvaluateAutonomy(doc *Document, actionType string, params map[string]any, caller types.CallerContext, ids IdentityDirectory) *types.AutonomyDecision {
	if actionType != "email.send" || doc.AutonomyLevel == AutonomyAssistiveOnly {
		return nil
	}
	if _, ok := autonomyFlags[autonomyFlag(params["autonomy"])]; !ok {
		return nil
	}

	to := recipients(params["sendTo"])
	if len(to) == 0 {
		to = recipients(params["to"])
	}
	if len(to) == 0 {
		return &types.AutonomyDecision{Reason: "autonomy_no_recipients"}
	}
	if len(recipients(params["cc"])) > 0 || len(recipients(params["bcc"])) > 0 {
		return &types.AutonomyDecision{Reason: "autonomy_cc_bcc_not_allowed"}
	}

	allowed := map[string]struct{}{}
	if ids != nil {
		for _, email := range ids.Emails(caller.UserID) {
			email = strings.ToLower(strings.TrimSpace(email))
			if email != "" {
				allowed[email] = struct{}{}
			}
		}
	}
	if len(allowed) == 0 {
		return &types.AutonomyDecision{Reason: "autonomy_identity_missing"}
	}
	for _, addr := range to {
		if _, ok := allowed[addr]; !ok {
			return &types.AutonomyDecision{Reason: "autonomy_recipient_not_allowed"}
		}
	}
	return &types.AutonomyDecision{Allow: true, Reason: "autonomy_self_email"}
}

func autonomyFlag(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case bool:
		if value {
			return "self"
		}
		return ""
	case string:
		return strings.ToLower(strings.TrimSpace(value))
	default:
		return strings.ToLower(strings.TrimSpace(fmt.Sprint(value)))
	}
}

func recipients(v any) []string {
	var raw []string
	switch value := v.(type) {
	case string:
		raw = strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ';' })
	case []string:
		raw = value
	case []any:
		for _, item := range value {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}

	out := make([]string, 0, len(raw))
	for _, addr := range raw {
		addr = strings.TrimSpace(addr)
		if open := strings.LastIndex(addr, "<"); open >= 0 && strings.HasSuffix(addr, ">") {
			addr = addr[open+1 : len(addr)-1]
		}
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
