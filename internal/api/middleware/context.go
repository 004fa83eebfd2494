package middleware

import (
	"context"
	"net/http"
	"slices"

	"github.com/google/uuid"
)

// Scopes granted to API keys.
const (
	ScopeTrain  = "train"
	ScopeWorker = "worker"
	ScopeAdmin  = "admin"
)

type principalKey struct{}

// Principal is the caller resolved from an API key.
type Principal struct {
	UserID    uuid.UUID
	KeyID     uuid.UUID
	KeyPrefix string
	Scopes    []string
}

// Has reports whether the key was granted scope.
func (p Principal) Has(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated caller, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func GetUserID(r *http.Request) (uuid.UUID, bool) {
	p, ok := PrincipalFrom(r.Context())
	if !ok || p.UserID == uuid.Nil {
		return uuid.Nil, false
	}
	return p.UserID, true
}

func GetScopes(r *http.Request) []string {
	p, _ := PrincipalFrom(r.Context())
	return p.Scopes
}
