// Package response writes and describes the JSON envelopes every API
// endpoint uses. The lora client decodes the same types.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Envelope wraps a successful payload.
type Envelope[T any] struct {
	Data T `json:"data"`
}

// CollectionEnvelope wraps a page of results. Data is never null on the
// wire.
type CollectionEnvelope[T any] struct {
	Data []T            `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

// ErrorEnvelope wraps a failure.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

// NewPage describes page number page of size limit out of total items.
func NewPage(page, limit, total int) PaginationMeta {
	return PaginationMeta{
		Page:    page,
		Limit:   limit,
		Total:   total,
		HasNext: page*limit < total,
	}
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope[any]{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, Envelope[any]{Data: data})
}

func Collection[T any](w http.ResponseWriter, items []T, meta PaginationMeta) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, CollectionEnvelope[T]{Data: items, Meta: meta})
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, ErrorEnvelope{Error: ErrorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response body", "status", status, "error", err)
	}
}
