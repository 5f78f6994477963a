package services

import (
	"context"
	"errors"

	domain "github.com/devki-mart/api/internal/domain"
	"github.com/devki-mart/api/internal/repositories"
)

// SystemServiceDeps wires dependencies for the system service.
type SystemServiceDeps struct {
	Health repositories.HealthRepository
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type systemService struct {
	health repositories.HealthRepository
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewSystemService constructs a SystemService backed by dependency probes.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Health == nil {
		return nil, errors.New("system service: health repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &systemService{health: deps.Health, logger: logger}, nil
}

// HealthReport aggregates dependency probe results.
func (s *systemService) HealthReport(ctx context.Context) (domain.SystemHealthReport, error) {
	report, err := s.health.Collect(ctx)
	if err != nil {
		s.logger(ctx, "system.health_failed", map[string]any{"error": err.Error()})
		return domain.SystemHealthReport{}, err
	}
	if report.Status != domain.HealthStatusOK {
		s.logger(ctx, "system.health_degraded", map[string]any{"status": string(report.Status)})
	}
	return report, nil
}
