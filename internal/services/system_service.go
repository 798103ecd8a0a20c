package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	"github.com/PauloRGNDev/lovableshop-starter/internal/repositories"
)

const (
	defaultHealthTimeout = 3 * time.Second
	collectorCheckName   = "collector"
)

// BuildInfo is the release metadata reported by the probes.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps wires the health reporter.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
	Timeout          time.Duration
}

type systemService struct {
	probes  repositories.HealthRepository
	now     func() time.Time
	build   BuildInfo
	timeout time.Duration
}

var _ SystemService = (*systemService)(nil)

// NewSystemService constructs a SystemService.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	svc := &systemService{
		probes:  deps.HealthRepository,
		now:     func() time.Time { return clock().UTC() },
		build:   deps.Build,
		timeout: deps.Timeout,
	}
	if svc.timeout <= 0 {
		svc.timeout = defaultHealthTimeout
	}
	if svc.build.StartedAt.IsZero() {
		svc.build.StartedAt = svc.now()
	}
	return svc, nil
}

// HealthReport runs the dependency probes under one deadline. A probe collector failure
// becomes an error check so the readiness endpoint always has a body to render.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}
	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now()
	report, err := s.probes.Collect(probeCtx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return SystemHealthReport{}, ctxErr
		}
		report = SystemHealthReport{Checks: map[string]domain.SystemHealthCheck{
			collectorCheckName: {Status: domain.HealthStatusError, Error: err.Error(), CheckedAt: now},
		}}
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if strings.TrimSpace(report.Status) == "" {
		report.Status = domain.OverallHealth(report.Checks)
	}

	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	} else {
		report.GeneratedAt = report.GeneratedAt.UTC()
	}
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	report.Version = chooseFirstNonEmpty(report.Version, s.build.Version)
	report.CommitSHA = chooseFirstNonEmpty(report.CommitSHA, s.build.CommitSHA)
	report.Environment = chooseFirstNonEmpty(report.Environment, s.build.Environment)
	return report, nil
}

func chooseFirstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
