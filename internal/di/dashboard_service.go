package di

import (
	"github.com/samber/do/v2"

	"github.com/healthmesh/meshgate/internal/dashboard"
)

// DashboardService wraps the dashboard aggregator for DI.
type DashboardService struct {
	Aggregator *dashboard.Aggregator
}

// NewDashboard creates the aggregator over the lab, medication and billing clients.
func NewDashboard(i do.Injector) (*DashboardService, error) {
	clients := do.MustInvoke[*ClientsService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)

	return &DashboardService{
		Aggregator: dashboard.NewAggregator(clients.Lab, clients.Medication, clients.Billing, *loggerSvc.Logger),
	}, nil
}
