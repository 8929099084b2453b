package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/davidahmann/agentgate/pkg/types"
)

var (
	ErrMissingBearer = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid token")
)

const (
	HeaderUserID        = "X-User-ID"
	HeaderTenantID      = "X-Tenant-ID"
	HeaderRoles         = "X-Roles"
	HeaderSessionID     = "X-Session-ID"
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderMode          = "X-Mode"
)

type Authenticator interface {
	Authenticate(r *http.Request) (types.CallerContext, error)
}

// DevTokenAuthenticator accepts a single shared bearer token and takes
// the caller identity from request headers. An empty token disables the
// bearer check.
type DevTokenAuthenticator struct {
	Token string
}

func (a DevTokenAuthenticator) Authenticate(r *http.Request) (types.CallerContext, error) {
	if a.Token != "" {
		bearer, err := extractBearer(r)
		if err != nil {
			return types.CallerContext{}, err
		}
		if subtle.ConstantTimeCompare([]byte(bearer), []byte(a.Token)) != 1 {
			return types.CallerContext{}, ErrInvalidToken
		}
	}
	return CallerFromHeaders(r.Header), nil
}

func CallerFromHeaders(h http.Header) types.CallerContext {
	caller := types.CallerContext{
		UserID:        strings.TrimSpace(h.Get(HeaderUserID)),
		TenantID:      strings.TrimSpace(h.Get(HeaderTenantID)),
		SessionID:     strings.TrimSpace(h.Get(HeaderSessionID)),
		CorrelationID: strings.TrimSpace(h.Get(HeaderCorrelationID)),
		Mode:          strings.TrimSpace(h.Get(HeaderMode)),
	}
	for _, role := range strings.Split(h.Get(HeaderRoles), ",") {
		if role = strings.TrimSpace(role); role != "" {
			caller.Roles = append(caller.Roles, role)
		}
	}
	return caller
}

type callerKey struct{}

func WithCaller(ctx context.Context, caller types.CallerContext) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

func CallerFrom(ctx context.Context) types.CallerContext {
	caller, _ := ctx.Value(callerKey{}).(types.CallerContext)
	return caller
}

func extractBearer(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingBearer
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
