package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if _, ok := ctx.Deadline(); !ok {
		return domain.SystemHealthReport{}, errors.New("expected a probe deadline")
	}
	return s.report, s.err
}

func TestSystemServiceAddsBuildMetadata(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start.Add(5 * time.Minute)
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &stubHealthRepository{report: domain.SystemHealthReport{
			Checks: map[string]domain.SystemHealthCheck{"firestore": {Status: domain.HealthStatusOK}},
		}},
		Clock: func() time.Time { return now },
		Build: BuildInfo{Version: "2.1.0", CommitSHA: "a1b2c3d", Environment: "production", StartedAt: start},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok, got %q", report.Status)
	}
	if report.Version != "2.1.0" || report.CommitSHA != "a1b2c3d" || report.Environment != "production" {
		t.Fatalf("unexpected build metadata %+v", report)
	}
	if report.Uptime != 5*time.Minute || !report.GeneratedAt.Equal(now) {
		t.Fatalf("unexpected timing uptime=%s generatedAt=%s", report.Uptime, report.GeneratedAt)
	}
}

func TestSystemServiceKeepsCollectorStatus(t *testing.T) {
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepository{report: domain.SystemHealthReport{
		Status: domain.HealthStatusDegraded,
		Checks: map[string]domain.SystemHealthCheck{"secretManager": {Status: domain.HealthStatusDegraded}},
	}}})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %q", report.Status)
	}
}

func TestSystemServiceDerivesMissingStatus(t *testing.T) {
	cases := []struct {
		name   string
		checks map[string]domain.SystemHealthCheck
		want   string
	}{
		{"no checks", nil, domain.HealthStatusOK},
		{"optional dependency down", map[string]domain.SystemHealthCheck{
			"firestore":     {Status: domain.HealthStatusOK},
			"secretManager": {Status: domain.HealthStatusDegraded},
		}, domain.HealthStatusDegraded},
		{"required dependency down", map[string]domain.SystemHealthCheck{
			"secretManager": {Status: domain.HealthStatusDegraded},
			"redis":         {Status: domain.HealthStatusError},
		}, domain.HealthStatusError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, err := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepository{report: domain.SystemHealthReport{Checks: tc.checks}}})
			if err != nil {
				t.Fatalf("NewSystemService: %v", err)
			}
			report, err := svc.HealthReport(context.Background())
			if err != nil {
				t.Fatalf("HealthReport: %v", err)
			}
			if report.Status != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, report.Status)
			}
		})
	}
}

func TestSystemServiceFoldsCollectorFailure(t *testing.T) {
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepository{err: errors.New("probe panic")}})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error, got %q", report.Status)
	}
	if check := report.Checks[collectorCheckName]; check.Error != "probe panic" {
		t.Fatalf("unexpected collector check %+v", check)
	}
}

func TestSystemServiceReturnsCallerCancellation(t *testing.T) {
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepository{err: errors.New("aborted")}})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.HealthReport(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewSystemServiceRequiresRepository(t *testing.T) {
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatal("expected error without health repository")
	}
}
