package client

import (
	"context"
	"net/http"

	"github.com/healthmesh/meshgate/internal/health"
	"github.com/rs/zerolog"
)

// Default registry names of the downstream services.
const (
	LabService        = "lab"
	MedicationService = "medication"
	BillingService    = "billing"
	AuthService       = "auth"
)

// Downstream endpoints, relative to each service's base URL.
const (
	labPendingOrdersPath       = "/orders/count?status=pending"
	labCriticalResultsPath     = "/results/count?flag=critical"
	medActivePrescriptionsPath = "/prescriptions/count?status=active"
	medPendingRefillsPath      = "/refills/count?status=pending"
	billingOutstandingInvoices = "/invoices/count?status=outstanding"
	authValidateTokenPath      = "/validate-token"
)

type countPayload struct {
	Count int `json:"count"`
}

func (b *Base) getCount(ctx context.Context, path string) (int, error) {
	var payload countPayload
	if err := b.Do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return 0, err
	}
	return payload.Count, nil
}

// LabClient talks to the lab service.
type LabClient struct {
	*Base
}

// NewLabClient creates a lab client.
func NewLabClient(resolver Resolver, cfg health.BreakerConfig, logger zerolog.Logger, opts ...Option) *LabClient {
	return &LabClient{Base: NewBase(LabService, resolver, cfg, logger, opts...)}
}

// GetPendingOrdersCount returns the number of lab orders awaiting processing.
func (c *LabClient) GetPendingOrdersCount(ctx context.Context) (int, error) {
	return c.getCount(ctx, labPendingOrdersPath)
}

// GetCriticalResultsCount returns the number of results flagged critical.
func (c *LabClient) GetCriticalResultsCount(ctx context.Context) (int, error) {
	return c.getCount(ctx, labCriticalResultsPath)
}

// MedicationClient talks to the medication service.
type MedicationClient struct {
	*Base
}

// NewMedicationClient creates a medication client.
func NewMedicationClient(resolver Resolver, cfg health.BreakerConfig, logger zerolog.Logger, opts ...Option) *MedicationClient {
	return &MedicationClient{Base: NewBase(MedicationService, resolver, cfg, logger, opts...)}
}

// GetActivePrescriptionsCount returns the number of active prescriptions.
func (c *MedicationClient) GetActivePrescriptionsCount(ctx context.Context) (int, error) {
	return c.getCount(ctx, medActivePrescriptionsPath)
}

// GetPendingRefillsCount returns the number of refill requests not yet handled.
func (c *MedicationClient) GetPendingRefillsCount(ctx context.Context) (int, error) {
	return c.getCount(ctx, medPendingRefillsPath)
}

// BillingClient talks to the billing service.
type BillingClient struct {
	*Base
}

// NewBillingClient creates a billing client.
func NewBillingClient(resolver Resolver, cfg health.BreakerConfig, logger zerolog.Logger, opts ...Option) *BillingClient {
	return &BillingClient{Base: NewBase(BillingService, resolver, cfg, logger, opts...)}
}

// GetOutstandingInvoicesCount returns the number of unpaid invoices.
func (c *BillingClient) GetOutstandingInvoicesCount(ctx context.Context) (int, error) {
	return c.getCount(ctx, billingOutstandingInvoices)
}
