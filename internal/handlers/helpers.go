package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/devki-mart/api/internal/domain"
	"github.com/devki-mart/api/internal/platform/auth"
	"github.com/devki-mart/api/internal/platform/httpx"
	"github.com/devki-mart/api/internal/platform/pagination"
	"github.com/devki-mart/api/internal/services"
)

const defaultBodyLimit = 16 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func decodeJSONBody(r *http.Request, limit int64, dst any) error {
	data, err := readLimitedBody(r, limit)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errors.New("request body must be valid JSON")
	}
	return nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

// actorFromContext extracts the authenticated caller. The second return is
// false when no verified identity is present.
func actorFromContext(ctx context.Context) (services.Actor, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return services.Actor{}, false
	}
	return services.Actor{ID: identity.UID, Roles: identity.Roles}, true
}

func requireActor(w http.ResponseWriter, r *http.Request) (services.Actor, bool) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
	}
	return actor, ok
}

func paginationFromQuery(w http.ResponseWriter, r *http.Request) (domain.Pagination, bool) {
	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: pagination.DefaultPageSize,
		MaxPageSize:     pagination.DefaultMaxPageSize,
	})
	if err != nil {
		message := "invalid pagination parameters"
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			message = "invalid page token"
		}
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
		return domain.Pagination{}, false
	}
	return domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}, true
}

func statusesFromQuery(r *http.Request) []domain.OrderStatus {
	var statuses []domain.OrderStatus
	for _, raw := range r.URL.Query()["status"] {
		for _, part := range strings.Split(raw, ",") {
			value := domain.OrderStatus(strings.TrimSpace(strings.ToLower(part)))
			switch value {
			case domain.OrderStatusPendingPickup, domain.OrderStatusOutForDelivery,
				domain.OrderStatusDelivered, domain.OrderStatusCancelled:
				statuses = append(statuses, value)
			}
		}
	}
	return statuses
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePointer(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func cloneStringPointer(value *string) *string {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}
