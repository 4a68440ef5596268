// Package dashboard aggregates counters from several downstream services into
// one summary, tolerating partial upstream failure.
package dashboard

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/healthmesh/meshgate/internal/health"
	"github.com/rs/zerolog"
	"github.com/samber/mo"
	"golang.org/x/sync/errgroup"
)

// Counter names in a Summary.
const (
	PendingLabOrders    = "pendingLabOrders"
	CriticalLabResults  = "criticalLabResults"
	ActivePrescriptions = "activePrescriptions"
	PendingRefills      = "pendingRefills"
	OutstandingInvoices = "outstandingInvoices"
)

// LabCounts is the part of the lab client the aggregator needs.
type LabCounts interface {
	GetPendingOrdersCount(ctx context.Context) (int, error)
	GetCriticalResultsCount(ctx context.Context) (int, error)
}

// MedicationCounts is the part of the medication client the aggregator needs.
type MedicationCounts interface {
	GetActivePrescriptionsCount(ctx context.Context) (int, error)
	GetPendingRefillsCount(ctx context.Context) (int, error)
}

// BillingCounts is the part of the billing client the aggregator needs.
type BillingCounts interface {
	GetOutstandingInvoicesCount(ctx context.Context) (int, error)
}

// Degradation records one counter that could not be fetched.
type Degradation struct {
	Counter    string `json:"counter"`
	Dependency string `json:"dependency,omitempty"`
	Reason     string `json:"reason"`
}

// Summary is the aggregated dashboard view. A counter missing from Counts is
// listed in Degraded.
type Summary struct {
	Counts   map[string]int `json:"counts"`
	Degraded []Degradation  `json:"degraded"`
}

// Partial reports whether any counter is missing.
func (s Summary) Partial() bool {
	return len(s.Degraded) > 0
}

// Count returns a single counter.
func (s Summary) Count(name string) mo.Option[int] {
	if v, ok := s.Counts[name]; ok {
		return mo.Some(v)
	}
	return mo.None[int]()
}

type fetch struct {
	get  func(ctx context.Context) (int, error)
	name string
}

// Aggregator fans out to the downstream clients.
type Aggregator struct {
	logger  zerolog.Logger
	fetches []fetch
}

// NewAggregator creates an Aggregator. Nil clients are skipped.
func NewAggregator(lab LabCounts, med MedicationCounts, billing BillingCounts, logger zerolog.Logger) *Aggregator {
	a := &Aggregator{logger: logger.With().Str("component", "dashboard").Logger()}
	if lab != nil {
		a.fetches = append(a.fetches,
			fetch{name: PendingLabOrders, get: lab.GetPendingOrdersCount},
			fetch{name: CriticalLabResults, get: lab.GetCriticalResultsCount},
		)
	}
	if med != nil {
		a.fetches = append(a.fetches,
			fetch{name: ActivePrescriptions, get: med.GetActivePrescriptionsCount},
			fetch{name: PendingRefills, get: med.GetPendingRefillsCount},
		)
	}
	if billing != nil {
		a.fetches = append(a.fetches, fetch{name: OutstandingInvoices, get: billing.GetOutstandingInvoicesCount})
	}
	return a
}

// Summary queries every counter concurrently. Upstream failures degrade the
// summary instead of failing it; only a canceled ctx returns an error.
func (a *Aggregator) Summary(ctx context.Context) (Summary, error) {
	summary := Summary{
		Counts:   make(map[string]int, len(a.fetches)),
		Degraded: []Degradation{},
	}
	var mu sync.Mutex

	// Goroutines never return errors so one failure cannot cancel the others.
	var g errgroup.Group
	for _, f := range a.fetches {
		g.Go(func() error {
			n, err := f.get(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Degraded = append(summary.Degraded, degradation(f.name, err))
				return nil
			}
			summary.Counts[f.name] = n
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}

	sort.Slice(summary.Degraded, func(i, j int) bool {
		return summary.Degraded[i].Counter < summary.Degraded[j].Counter
	})
	if summary.Partial() {
		a.logger.Warn().
			Int("degraded", len(summary.Degraded)).
			Int("available", len(summary.Counts)).
			Msg("dashboard summary degraded")
	}
	return summary, nil
}

func degradation(counter string, err error) Degradation {
	d := Degradation{Counter: counter, Reason: "error"}
	var depErr *health.DependencyError
	if errors.As(err, &depErr) {
		d.Dependency = depErr.Dependency
		d.Reason = depErr.Kind.String()
	}
	return d
}
