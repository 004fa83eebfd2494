package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/lorastudio/internal/api/middleware"
	"github.com/kiranshivaraju/lorastudio/internal/api/response"
	"github.com/kiranshivaraju/lorastudio/internal/store"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// NewMeHandler returns an http.HandlerFunc for GET /api/v1/me.
func NewMeHandler(s UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		user, err := s.GetUser(r.Context(), userID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load user", nil)
			return
		}

		response.JSON(w, meResponse{User: user, Scopes: mw.GetScopes(r)})
	}
}

type meResponse struct {
	*models.User
	Scopes []string `json:"scopes"`
}
