package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lorastudio/internal/api/response"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// KeyPrefixLen is the number of leading key characters stored in clear for lookup.
const KeyPrefixLen = 8

const touchTimeout = 5 * time.Second

var (
	errMissingToken = errors.New("missing or invalid Authorization header")
	errMalformedKey = errors.New("invalid API key format")
	errUnknownKey   = errors.New("invalid API key")
)

// KeyStore is the part of the store the auth middleware needs.
type KeyStore interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
}

// Auth resolves bearer API keys to a Principal and enforces scopes.
type Auth struct {
	store KeyStore
}

func NewAuth(s KeyStore) *Auth {
	return &Auth{store: s}
}

// Authenticate rejects requests without a valid key and stores the
// resolved Principal in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearerToken(r)
		key, err := a.resolve(r.Context(), raw)
		switch {
		case errors.Is(err, errMissingToken), errors.Is(err, errMalformedKey), errors.Is(err, errUnknownKey):
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", capitalize(err.Error()), nil)
			return
		case err != nil:
			slog.Error("api key lookup failed", "request_id", RequestID(r.Context()), "error", err)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate API key", nil)
			return
		}

		p := Principal{
			UserID:    key.UserID,
			KeyID:     key.ID,
			KeyPrefix: raw[:KeyPrefixLen],
			Scopes:    key.Scopes,
		}
		annotate(r.Context(), p)
		go a.touch(key.ID)

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// resolve finds the live key matching raw. Several keys may share a prefix,
// so each candidate hash is compared.
func (a *Auth) resolve(ctx context.Context, raw string) (*models.APIKey, error) {
	if raw == "" {
		return nil, errMissingToken
	}
	if len(raw) < KeyPrefixLen {
		return nil, errMalformedKey
	}

	candidates, err := a.store.GetAPIKeyByPrefix(ctx, raw[:KeyPrefixLen])
	if err != nil {
		return nil, err
	}
	for _, key := range candidates {
		if key.DeletedAt != nil {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(raw)) == nil {
			return key, nil
		}
	}
	return nil, errUnknownKey
}

// touch records key usage off the request path.
func (a *Auth) touch(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()
	if err := a.store.UpdateAPIKeyLastUsed(ctx, id); err != nil {
		slog.Warn("api key last_used_at update failed", "key_id", id, "error", err)
	}
}

// RequireScope returns middleware that admits only keys granted scope.
func (a *Auth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok || !p.Has(scope) {
				response.Error(w, http.StatusForbidden,
					"FORBIDDEN", "Insufficient permissions", map[string]string{"required_scope": scope})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
