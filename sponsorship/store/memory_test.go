package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/sponsorship-engine/sponsorship"
	"github.com/warp/sponsorship-engine/sponsorship/store"
)

func TestMemory_DealLookupAndFilter(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.SaveDeal(ctx, sponsorship.Deal{ID: "d1", SponsorID: "s1", Status: sponsorship.DealActive}))
	require.NoError(t, m.SaveDeal(ctx, sponsorship.Deal{ID: "d2", SponsorID: "s2", Status: sponsorship.DealDraft}))

	_, err := m.GetDeal(ctx, "missing")
	assert.ErrorIs(t, err, sponsorship.ErrDealNotFound)

	active, err := m.ListDeals(ctx, sponsorship.DealFilter{Status: sponsorship.DealActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, sponsorship.DealID("d1"), active[0].ID)
}

func TestMemory_MetricsOrderedByMeasurement(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	day := func(d int) time.Time { return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, m.AppendMetrics(ctx, []sponsorship.PerformanceMetric{
		{ID: "m3", DealID: "d1", Type: sponsorship.MetricViews, Value: decimal.NewFromInt(3), MeasuredAt: day(3)},
		{ID: "m1", DealID: "d1", Type: sponsorship.MetricViews, Value: decimal.NewFromInt(1), MeasuredAt: day(1)},
		{ID: "m2", DealID: "d1", Type: sponsorship.MetricViews, Value: decimal.NewFromInt(2), MeasuredAt: day(2)},
	}))

	got, err := m.LoadMetrics(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, sponsorship.MetricID("m1"), got[0].ID)
	assert.Equal(t, sponsorship.MetricID("m3"), got[2].ID)
}

func TestMemory_DuplicateCalculationRejected(t *testing.T) {
	// GIVEN: A stored calculation
	ctx := context.Background()
	m := store.NewMemory()
	calc := sponsorship.BonusCalculation{ID: "c1", IdempotencyKey: "k1", DealID: "d1"}
	require.NoError(t, m.AppendCalculation(ctx, calc))

	// WHEN: The same key arrives again under a new ID
	calc.ID = "c2"
	err := m.AppendCalculation(ctx, calc)

	// THEN: Rejected, and only the first survives
	assert.ErrorIs(t, err, sponsorship.ErrDuplicateCalculation)
	stored, err := m.LoadCalculations(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, sponsorship.CalculationID("c1"), stored[0].ID)
}

func TestMemory_SettlementRuns(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	end := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.SaveSettlementRun(ctx, sponsorship.SettlementRun{ID: "r1", DealID: "d1", PeriodEnd: end, Status: "failed"}))
	settled, err := m.IsSettled(ctx, "d1", end)
	require.NoError(t, err)
	assert.False(t, settled)

	require.NoError(t, m.SaveSettlementRun(ctx, sponsorship.SettlementRun{ID: "r2", DealID: "d1", PeriodEnd: end.Add(5 * time.Hour), Status: "completed"}))
	settled, err = m.IsSettled(ctx, "d1", end)
	require.NoError(t, err)
	assert.True(t, settled)

	runs, err := m.ListSettlementRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID)
}
