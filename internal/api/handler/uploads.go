package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/lorastudio/internal/api/middleware"
	"github.com/kiranshivaraju/lorastudio/internal/api/response"
	"github.com/kiranshivaraju/lorastudio/internal/storage"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

// Presigner issues upload URLs for training images.
type Presigner interface {
	PresignUploads(ctx context.Context, userID uuid.UUID, count int, contentType string) ([]models.UploadTarget, error)
}

// NewUploadsHandler returns an http.HandlerFunc for POST /api/v1/uploads.
func NewUploadsHandler(p Presigner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			Count       int    `json:"count"`
			ContentType string `json:"contentType"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Count < 1 || req.Count > storage.MaxUploadsPerRequest {
			response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED",
				fmt.Sprintf("count must be between 1 and %d", storage.MaxUploadsPerRequest),
				map[string]string{"field": "count"})
			return
		}
		if req.ContentType == "" {
			req.ContentType = "image/png"
		}

		targets, err := p.PresignUploads(r.Context(), userID, req.Count, req.ContentType)
		if err != nil {
			if errors.Is(err, storage.ErrUnsupportedContentType) {
				response.Error(w, http.StatusBadRequest, "UNSUPPORTED_CONTENT_TYPE",
					"Images must be JPEG, PNG or WebP", nil)
				return
			}
			slog.Error("presign uploads failed", "user_id", userID, "error", err)
			response.Error(w, http.StatusBadGateway, "STORAGE_UNAVAILABLE",
				"Image storage is not available", nil)
			return
		}
		response.Created(w, targets)
	}
}
