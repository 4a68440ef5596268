package proxy

import (
	"net/http"
	"time"

	"github.com/healthmesh/meshgate/internal/health"
	"github.com/healthmesh/meshgate/internal/registry"
)

// Overall status values reported by /health/services.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// RegistryStatus exposes registry snapshots. *registry.Registry implements it.
type RegistryStatus interface {
	GetStatus() map[string]registry.ServiceEntry
}

// BreakerStates exposes breaker states. *health.Tracker implements it.
type BreakerStates interface {
	AllStates() map[string]health.State
}

// ServiceHealth is one service in the /health/services report.
type ServiceHealth struct {
	LastCheck    *time.Time `json:"lastCheck"`
	LastError    string     `json:"lastError,omitempty"`
	URL          string     `json:"url"`
	FailureCount int        `json:"failureCount"`
	Healthy      bool       `json:"healthy"`
	Stale        bool       `json:"stale"`
	Required     bool       `json:"required"`
}

// ServicesReport is the body of GET /health/services.
type ServicesReport struct {
	Services map[string]ServiceHealth `json:"services"`
	Breakers map[string]string        `json:"breakers"`
	Status   string                   `json:"status"`
}

// HealthHandler answers liveness probes.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": StatusOK})
	}
}

// ServicesHandler reports registry health and breaker states.
// The overall status is degraded when a required service is unhealthy.
func ServicesHandler(services RegistryStatus, breakers BreakerStates) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, BuildServicesReport(services, breakers))
	}
}

// BuildServicesReport assembles the /health/services body. Either source may be nil.
func BuildServicesReport(services RegistryStatus, breakers BreakerStates) ServicesReport {
	report := ServicesReport{
		Services: map[string]ServiceHealth{},
		Breakers: map[string]string{},
		Status:   StatusOK,
	}

	if services != nil {
		for name, entry := range services.GetStatus() {
			sh := ServiceHealth{
				URL:          entry.BaseURL,
				FailureCount: entry.ConsecutiveFailures,
				LastError:    entry.LastError,
				Healthy:      entry.Healthy && !entry.Stale,
				Stale:        entry.Stale,
				Required:     entry.Required,
			}
			if at, ok := entry.LastCheck.Get(); ok {
				at = at.UTC()
				sh.LastCheck = &at
			}
			if entry.Required && !sh.Healthy {
				report.Status = StatusDegraded
			}
			report.Services[name] = sh
		}
	}

	if breakers != nil {
		for name, state := range breakers.AllStates() {
			report.Breakers[name] = state.String()
		}
	}
	return report
}
