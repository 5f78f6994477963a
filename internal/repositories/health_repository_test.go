package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/devki-mart/api/internal/domain"
)

func TestDependencyHealthRepositoryAllHealthy(t *testing.T) {
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository(
		[]DependencyCheck{
			{Name: "firestore", Check: func(context.Context) error { return nil }},
			{Name: "pubsub", Check: func(context.Context) error { return nil }},
		},
		WithDependencyClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("report status = %s, want ok", report.Status)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("got %d checks, want 2", len(report.Checks))
	}
	for name, check := range report.Checks {
		if check.Status != domain.HealthStatusOK {
			t.Fatalf("check %s status = %s, want ok", name, check.Status)
		}
		if !check.CheckedAt.Equal(now) {
			t.Fatalf("check %s checkedAt = %s, want %s", name, check.CheckedAt, now)
		}
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("generatedAt = %s, want %s", report.GeneratedAt, now)
	}
}

func TestDependencyHealthRepositoryDegradedOnProbeError(t *testing.T) {
	probeErr := errors.New("pubsub topic missing")
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return nil }},
		{Name: "pubsub", Check: func(context.Context) error { return probeErr }},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("report status = %s, want degraded", report.Status)
	}
	check := report.Checks["pubsub"]
	if check.Status != domain.HealthStatusDegraded {
		t.Fatalf("pubsub status = %s, want degraded", check.Status)
	}
	if check.Error != probeErr.Error() {
		t.Fatalf("pubsub error = %q, want %q", check.Error, probeErr.Error())
	}
}

func TestDependencyHealthRepositoryTimeoutIsError(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{
			Name:    "firestore",
			Timeout: 5 * time.Millisecond,
			Check: func(ctx context.Context) error {
				select {
				case <-time.After(50 * time.Millisecond):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("report status = %s, want error", report.Status)
	}
	check := report.Checks["firestore"]
	if check.Detail != "timeout" {
		t.Fatalf("detail = %q, want timeout", check.Detail)
	}
}

func TestDependencyHealthRepositoryRejectsInvalidChecks(t *testing.T) {
	if _, err := NewDependencyHealthRepository(nil); err == nil {
		t.Fatal("expected error for empty check set")
	}
	if _, err := NewDependencyHealthRepository([]DependencyCheck{{Name: " "}}); err == nil {
		t.Fatal("expected error for unnamed check")
	}
	if _, err := NewDependencyHealthRepository([]DependencyCheck{{Name: "firestore"}}); err == nil {
		t.Fatal("expected error for check without function")
	}
}
