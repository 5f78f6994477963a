package handlers

import (
	"net/http"
	"time"

	domain "github.com/devki-mart/api/internal/domain"
	"github.com/devki-mart/api/internal/services"
)

var startTime = time.Now()

// HealthHandlers serves liveness and readiness probes. Healthz is always
// cheap; Readyz fans out to dependency checks through the system service.
type HealthHandlers struct {
	system services.SystemService
}

// NewHealthHandlers constructs the probe handlers. A nil system service keeps
// /readyz permanently green, which suits local development.
func NewHealthHandlers(system services.SystemService) *HealthHandlers {
	return &HealthHandlers{system: system}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readyz reports dependency health, answering 503 when any probe fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
			"status": domain.HealthStatusError,
			"error":  err.Error(),
		})
		return
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}

	checks := make(map[string]any, len(report.Checks))
	for name, check := range report.Checks {
		entry := map[string]any{
			"status":    check.Status,
			"latencyMs": check.Latency.Milliseconds(),
		}
		if check.Detail != "" {
			entry["detail"] = check.Detail
		}
		if check.Error != "" {
			entry["error"] = check.Error
		}
		checks[name] = entry
	}

	writeJSONResponse(w, status, map[string]any{
		"status":      report.Status,
		"checks":      checks,
		"generatedAt": formatTime(report.GeneratedAt),
	})
}
