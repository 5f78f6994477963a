// Package httpx defines the JSON error envelope every endpoint returns.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/devki-mart/api/internal/platform/requestctx"
)

// Error is the canonical error envelope.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
}

// NewError builds an Error; a zero status becomes 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clip(code, 80),
		Message: clip(message, 512),
		Status:  status,
	}
}

type errorBody struct {
	Code      string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError renders the envelope as JSON, filling in the request ID from
// context when the caller did not set one.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	requestID := err.RequestID
	if requestID == "" {
		requestID = requestctx.RequestID(ctx)
	}
	if requestID == "" {
		requestID = middleware.GetReqID(ctx)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Code:      err.Code,
		Message:   err.Message,
		Status:    status,
		RequestID: clip(requestID, 80),
	})
}

func clip(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\n", " ", "\r", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
