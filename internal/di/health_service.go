package di

import (
	"github.com/samber/do/v2"

	"github.com/healthmesh/meshgate/internal/health"
)

// HealthTrackerService wraps the breaker tracker for DI.
type HealthTrackerService struct {
	Tracker *health.Tracker
}

// NewHealthTracker creates the tracker for per-service gateway breakers.
// Breaker settings are read from the live config when a breaker is first
// created, so a reload applies to services not yet seen.
func NewHealthTracker(i do.Injector) (*HealthTrackerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)

	tracker := health.NewTracker(func(name string) health.BreakerConfig {
		return cfgSvc.Get().CircuitBreaker.For(name)
	}, nil, loggerSvc.Logger)

	return &HealthTrackerService{Tracker: tracker}, nil
}
