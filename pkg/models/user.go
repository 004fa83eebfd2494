// Package models contains shared data models used across the LoRA Studio codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User owns training jobs and API keys.
type User struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	Email       string    `db:"email"        json:"email"`
	DisplayName string    `db:"display_name" json:"displayName"`
	CreatedAt   time.Time `db:"created_at"   json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at"   json:"updatedAt"`
}

// UploadTarget is a presigned destination for one training image.
type UploadTarget struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"uploadUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}
