package di

import (
	"github.com/samber/do/v2"
	"github.com/samber/mo"

	"github.com/healthmesh/meshgate/internal/client"
	"github.com/healthmesh/meshgate/internal/config"
	"github.com/healthmesh/meshgate/internal/health"
)

// ClientsService holds the typed downstream clients.
type ClientsService struct {
	Auth       *client.AuthClient
	Lab        *client.LabClient
	Medication *client.MedicationClient
	Billing    *client.BillingClient
}

// NewClients creates the typed clients and adds their breakers to the tracker
// so /health/services reports them. Clients resolve base URLs the same way the
// gateway does, without probing.
func NewClients(i do.Injector) (*ClientsService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)
	registrySvc := do.MustInvoke[*RegistryService](i)
	trackerSvc := do.MustInvoke[*HealthTrackerService](i)

	resolver := client.ResolverFunc(func(name string) mo.Option[string] {
		cfg := cfgSvc.Get()
		if cfg.Gateway.GetResolver() == config.ResolverStatic {
			return cfg.ServiceURL(name)
		}
		return registrySvc.Registry.GetServiceURLSync(name)
	})

	cfg := cfgSvc.Get()
	logger := *loggerSvc.Logger
	authService := cfg.Auth.GetService()

	svc := &ClientsService{
		Auth: client.NewAuthClient(resolver, cfg.CircuitBreaker.For(authService), logger,
			client.WithServiceName(authService)),
		Lab:        client.NewLabClient(resolver, cfg.CircuitBreaker.For(client.LabService), logger),
		Medication: client.NewMedicationClient(resolver, cfg.CircuitBreaker.For(client.MedicationService), logger),
		Billing:    client.NewBillingClient(resolver, cfg.CircuitBreaker.For(client.BillingService), logger),
	}

	for _, b := range []health.Breaker{
		svc.Auth.Breaker(), svc.Lab.Breaker(), svc.Medication.Breaker(), svc.Billing.Breaker(),
	} {
		trackerSvc.Tracker.Track(b)
	}

	return svc, nil
}
