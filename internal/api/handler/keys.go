package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/lorastudio/internal/api/middleware"
	"github.com/kiranshivaraju/lorastudio/internal/api/response"
	"github.com/kiranshivaraju/lorastudio/internal/store"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

// AdminStore is the part of the store the admin handlers use.
type AdminStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
}

// NewCreateUserHandler returns an http.HandlerFunc for POST /api/v1/admin/users.
func NewCreateUserHandler(s AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email       string `json:"email"`
			DisplayName string `json:"displayName"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		email := strings.TrimSpace(strings.ToLower(req.Email))
		if !strings.Contains(email, "@") {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "email is required", nil)
			return
		}

		now := time.Now().UTC()
		user := &models.User{
			ID:          uuid.New(),
			Email:       email,
			DisplayName: strings.TrimSpace(req.DisplayName),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.CreateUser(r.Context(), user); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "DUPLICATE_USER", "A user with this email already exists", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create user", nil)
			return
		}
		response.Created(w, user)
	}
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/admin/keys.
// Keys are issued to the caller unless userId names another user.
func NewCreateKeyHandler(s AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			Name   string     `json:"name"`
			Scopes []string   `json:"scopes"`
			UserID *uuid.UUID `json:"userId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}
		if len(req.Scopes) == 0 {
			req.Scopes = []string{mw.ScopeTrain}
		}
		for _, scope := range req.Scopes {
			if !mw.ValidScope(scope) {
				response.Error(w, http.StatusBadRequest, "INVALID_SCOPE", "Unknown scope: "+scope, nil)
				return
			}
		}

		owner := callerID
		if req.UserID != nil {
			owner = *req.UserID
			if _, err := s.GetUser(r.Context(), owner); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					response.Error(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found", nil)
					return
				}
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load user", nil)
				return
			}
		}

		gen, err := mw.GenerateKey()
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create key", nil)
			return
		}

		now := time.Now().UTC()
		key := &models.APIKey{
			ID:        uuid.New(),
			UserID:    owner,
			Name:      strings.TrimSpace(req.Name),
			KeyHash:   gen.Hash,
			KeyPrefix: gen.Prefix,
			Scopes:    req.Scopes,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.CreateAPIKey(r.Context(), key); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "DUPLICATE_KEY", "API key already exists", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create key", nil)
			return
		}

		response.Created(w, createdKey{APIKey: key, Key: gen.Raw})
	}
}

// createdKey carries the raw key, which is only ever returned here.
type createdKey struct {
	*models.APIKey
	Key string `json:"key"`
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/v1/admin/keys.
func NewListKeysHandler(s AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := targetUser(w, r)
		if !ok {
			return
		}

		keys, err := s.ListAPIKeys(r.Context(), owner)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list keys", nil)
			return
		}
		if keys == nil {
			keys = []*models.APIKey{}
		}
		response.JSON(w, keys)
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for DELETE /api/v1/admin/keys/{keyID}.
func NewRevokeKeyHandler(s AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := targetUser(w, r)
		if !ok {
			return
		}

		keyID, err := uuid.Parse(chi.URLParam(r, "keyID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_KEY_ID", "Invalid key ID", nil)
			return
		}

		if err := s.RevokeAPIKey(r.Context(), keyID, owner); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to revoke key", nil)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// targetUser resolves ?userId=, defaulting to the caller.
func targetUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	callerID, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
		return uuid.Nil, false
	}
	v := r.URL.Query().Get("userId")
	if v == "" {
		return callerID, true
	}
	id, err := uuid.Parse(v)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "userId must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}
