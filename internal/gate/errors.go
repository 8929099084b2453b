package gate

import (
	"errors"
	"net/http"
)

// Error codes.
const (
	CodeToolNotFound         = "tool_not_found"
	CodePolicyDenied         = "policy_denied"
	CodePolicyBlocked        = "policy_blocked"
	CodeApprovalNotFound     = "approval_not_found"
	CodeApprovalNotReady     = "approval_not_ready"
	CodeApprovalTokenInvalid = "approval_token_invalid"
	CodeApprovalRejected     = "approval_rejected"
)

// Error is a caller-facing failure with a stable code and an HTTP status.
type Error struct {
	Code   string
	Status int
	// Reason is the policy or workflow reason behind Code, if any.
	Reason string
}

func (e *Error) Error() string {
	if e.Reason != "" && e.Reason != e.Code {
		return e.Code + ": " + e.Reason
	}
	return e.Code
}

func newError(code string, status int, reason string) *Error {
	return &Error{Code: code, Status: status, Reason: reason}
}

// IsCode reports whether err carries a gate Error with code.
func IsCode(err error, code string) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Code == code
}

// StatusOf returns the HTTP status of a gate Error, 500 otherwise.
func StatusOf(err error) int {
	var ge *Error
	if errors.As(err, &ge) && ge.Status != 0 {
		return ge.Status
	}
	return http.StatusInternalServerError
}
