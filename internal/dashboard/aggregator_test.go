package dashboard_test

import (
	"context"
	"errors"
	"testing"

	"github.com/healthmesh/meshgate/internal/dashboard"
	"github.com/healthmesh/meshgate/internal/health"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLab struct {
	err      error
	pending  int
	critical int
}

func (f fakeLab) GetPendingOrdersCount(context.Context) (int, error)   { return f.pending, f.err }
func (f fakeLab) GetCriticalResultsCount(context.Context) (int, error) { return f.critical, f.err }

type fakeMedication struct {
	err     error
	active  int
	refills int
}

func (f fakeMedication) GetActivePrescriptionsCount(context.Context) (int, error) {
	return f.active, f.err
}
func (f fakeMedication) GetPendingRefillsCount(context.Context) (int, error) { return f.refills, f.err }

type fakeBilling struct {
	err         error
	outstanding int
}

func (f fakeBilling) GetOutstandingInvoicesCount(context.Context) (int, error) {
	return f.outstanding, f.err
}

func TestSummaryAllHealthy(t *testing.T) {
	t.Parallel()

	agg := dashboard.NewAggregator(
		fakeLab{pending: 4, critical: 1},
		fakeMedication{active: 20, refills: 2},
		fakeBilling{outstanding: 9},
		zerolog.Nop(),
	)

	summary, err := agg.Summary(context.Background())
	require.NoError(t, err)
	assert.False(t, summary.Partial())
	assert.Equal(t, map[string]int{
		dashboard.PendingLabOrders:    4,
		dashboard.CriticalLabResults:  1,
		dashboard.ActivePrescriptions: 20,
		dashboard.PendingRefills:      2,
		dashboard.OutstandingInvoices: 9,
	}, summary.Counts)
	assert.Empty(t, summary.Degraded)
}

func TestSummaryDegradesOnPartialFailure(t *testing.T) {
	t.Parallel()

	open := &health.DependencyError{
		Dependency: "client:billing",
		Kind:       health.KindUnavailable,
		Err:        health.ErrCircuitOpen,
	}
	agg := dashboard.NewAggregator(
		fakeLab{pending: 4, critical: 1},
		fakeMedication{err: errors.New("boom")},
		fakeBilling{err: open},
		zerolog.Nop(),
	)

	summary, err := agg.Summary(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Partial())
	assert.Equal(t, 4, summary.Count(dashboard.PendingLabOrders).MustGet())
	assert.True(t, summary.Count(dashboard.OutstandingInvoices).IsAbsent())

	require.Len(t, summary.Degraded, 3)
	assert.Equal(t, dashboard.Degradation{
		Counter: dashboard.ActivePrescriptions, Reason: "error",
	}, summary.Degraded[0])
	assert.Equal(t, dashboard.Degradation{
		Counter: dashboard.OutstandingInvoices, Dependency: "client:billing", Reason: "unavailable",
	}, summary.Degraded[1])
	assert.Equal(t, dashboard.PendingRefills, summary.Degraded[2].Counter)
}

func TestSummaryAllDown(t *testing.T) {
	t.Parallel()

	down := errors.New("down")
	agg := dashboard.NewAggregator(fakeLab{err: down}, fakeMedication{err: down}, fakeBilling{err: down}, zerolog.Nop())

	summary, err := agg.Summary(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Counts)
	assert.Len(t, summary.Degraded, 5)
}

func TestSummarySkipsMissingClients(t *testing.T) {
	t.Parallel()

	agg := dashboard.NewAggregator(nil, nil, fakeBilling{outstanding: 1}, zerolog.Nop())

	summary, err := agg.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{dashboard.OutstandingInvoices: 1}, summary.Counts)
}

func TestSummaryCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agg := dashboard.NewAggregator(fakeLab{}, nil, nil, zerolog.Nop())
	_, err := agg.Summary(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
