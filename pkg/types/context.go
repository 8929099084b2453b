package types

// CallerContext identifies who is asking. It is produced by the
// authentication layer and only consumed by the gateway.
type CallerContext struct {
	UserID        string   `json:"userId,omitempty"`
	TenantID      string   `json:"tenantId,omitempty"`
	Roles         []string `json:"roles,omitempty"`
	SessionID     string   `json:"sessionId,omitempty"`
	CorrelationID string   `json:"correlationId,omitempty"`
	Mode          string   `json:"mode,omitempty"`
}

// Session returns the session id, falling back to the correlation id.
func (c CallerContext) Session() string {
	if c.SessionID != "" {
		return c.SessionID
	}
	return c.CorrelationID
}

// Correlation returns the correlation id, falling back to the session id.
func (c CallerContext) Correlation() string {
	if c.CorrelationID != "" {
		return c.CorrelationID
	}
	return c.SessionID
}
