package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/sponsorship-engine/sponsorship"
	"github.com/warp/sponsorship-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func day(m time.Month, d int) time.Time {
	return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC)
}

func testDeal() sponsorship.Deal {
	capped := sponsorship.WithConstraints(
		sponsorship.NewRateRule("views", sponsorship.MetricViews, decimal.RequireFromString("0.001")),
		sponsorship.Constraints{Cap: sponsorship.Dec(500), MinimumPerformance: sponsorship.Dec(100)},
	)
	return sponsorship.Deal{
		ID:        "deal-1",
		SponsorID: "sponsor-1",
		CreatorID: "creator-1",
		Title:     "Launch campaign",
		BaseFee:   decimal.RequireFromString("1500.50"),
		Currency:  "USD",
		Rules: []sponsorship.Rule{
			capped,
			sponsorship.NewMilestoneRule("ms", sponsorship.MetricViews,
				sponsorship.Milestone{Target: decimal.NewFromInt(10000), Bonus: decimal.NewFromInt(200)}),
			sponsorship.NewRevenueShareRule("rev", decimal.NewFromInt(15)),
		},
		Period:     sponsorship.MustPeriod(day(1, 1), day(1, 31)),
		KPITargets: map[string]decimal.Decimal{"views": decimal.NewFromInt(50000)},
		Status:     sponsorship.DealActive,
		CreatedAt:  day(1, 1),
		UpdatedAt:  day(1, 1),
	}
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func TestStore_SponsorRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sp := sponsorship.Sponsor{
		ID:          "sponsor-1",
		Name:        "Acme",
		Tier:        sponsorship.TierGold,
		Budget:      decimal.RequireFromString("25000.75"),
		Preferences: sponsorship.SponsorPreferences{Platforms: []string{"youtube"}},
		CreatedAt:   day(1, 1),
	}
	require.NoError(t, store.SaveSponsor(ctx, sp))

	got, err := store.GetSponsor(ctx, "sponsor-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
	assert.True(t, sp.Budget.Equal(got.Budget))
	assert.Equal(t, []string{"youtube"}, got.Preferences.Platforms)

	_, err = store.GetSponsor(ctx, "nope")
	assert.ErrorIs(t, err, sponsorship.ErrSponsorNotFound)
}

func TestStore_DealRulesRoundTrip(t *testing.T) {
	// GIVEN: A deal with three rule variants and constraints
	ctx := context.Background()
	store := newTestStore(t)
	deal := testDeal()
	require.NoError(t, store.SaveDeal(ctx, deal))

	// WHEN: Loading it back
	got, err := store.GetDeal(ctx, "deal-1")
	require.NoError(t, err)

	// THEN: Rules evaluate identically
	require.Len(t, got.Rules, 3)
	totals := sponsorship.Totals{
		sponsorship.MetricViews:   decimal.NewFromInt(12000),
		sponsorship.MetricRevenue: decimal.NewFromInt(1000),
	}
	for i := range deal.Rules {
		want := sponsorship.ApplyConstraints(deal.Rules[i], totals, sponsorship.Evaluate(deal.Rules[i], totals))
		have := sponsorship.ApplyConstraints(got.Rules[i], totals, sponsorship.Evaluate(got.Rules[i], totals))
		assert.True(t, want.BonusAmount.Equal(have.BonusAmount), "rule %d", i)
	}
	assert.Equal(t, deal.Period, got.Period)
	assert.True(t, got.KPITargets["views"].Equal(decimal.NewFromInt(50000)))
	assert.True(t, got.BaseFee.Equal(deal.BaseFee))
}

func TestStore_ListDealsFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	d1 := testDeal()
	d2 := testDeal()
	d2.ID = "deal-2"
	d2.Status = sponsorship.DealDraft
	require.NoError(t, store.SaveDeal(ctx, d1))
	require.NoError(t, store.SaveDeal(ctx, d2))

	all, err := store.ListDeals(ctx, sponsorship.DealFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	drafts, err := store.ListDeals(ctx, sponsorship.DealFilter{Status: sponsorship.DealDraft})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, sponsorship.DealID("deal-2"), drafts[0].ID)
}

// =============================================================================
// APPEND-ONLY RECORDS
// =============================================================================

func TestStore_MetricsBySponsor(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveDeal(ctx, testDeal()))

	require.NoError(t, store.AppendMetrics(ctx, []sponsorship.PerformanceMetric{
		{ID: "m2", DealID: "deal-1", Type: sponsorship.MetricViews, Value: decimal.NewFromInt(20), MeasuredAt: day(1, 2), Platform: "youtube"},
		{ID: "m1", DealID: "deal-1", Type: sponsorship.MetricViews, Value: decimal.RequireFromString("10.5"), MeasuredAt: day(1, 1)},
		{ID: "m3", DealID: "other", Type: sponsorship.MetricViews, Value: decimal.NewFromInt(99), MeasuredAt: day(1, 1)},
	}))

	got, err := store.LoadMetricsBySponsor(ctx, "sponsor-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, sponsorship.MetricID("m1"), got[0].ID)
	assert.True(t, got[0].Value.Equal(decimal.RequireFromString("10.5")))
	assert.Equal(t, "youtube", got[1].Platform)
}

func TestStore_CalculationIdempotency(t *testing.T) {
	// GIVEN: Calculations for a deal, stored once
	ctx := context.Background()
	store := newTestStore(t)
	deal := testDeal()
	metrics := []sponsorship.PerformanceMetric{
		{DealID: "deal-1", Type: sponsorship.MetricViews, Value: decimal.NewFromInt(12000), MeasuredAt: day(1, 10)},
	}
	calc := sponsorship.NewCalculator()

	for _, c := range calc.CalculateBonus(deal, metrics, deal.Period) {
		require.NoError(t, store.AppendCalculation(ctx, c))
	}

	// WHEN: Recomputing and storing again
	for _, c := range calc.CalculateBonus(deal, metrics, deal.Period) {
		err := store.AppendCalculation(ctx, c)

		// THEN: Every duplicate is rejected
		assert.ErrorIs(t, err, sponsorship.ErrDuplicateCalculation)
	}

	stored, err := store.LoadCalculations(ctx, "deal-1")
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.True(t, stored[0].BonusAmount.Equal(decimal.NewFromInt(12)))
	assert.True(t, stored[0].BaseMetrics.Get(sponsorship.MetricViews).Equal(decimal.NewFromInt(12000)))
	assert.Equal(t, sponsorship.StatusNotApplicable, stored[2].Status)
}

func TestStore_PayoutStatusUpdate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	p := sponsorship.Payout{
		ID:             "p1",
		DealID:         "deal-1",
		Type:           sponsorship.PayoutBonus,
		Amount:         decimal.NewFromInt(200),
		Period:         sponsorship.MustPeriod(day(1, 1), day(1, 31)),
		CalculationIDs: []sponsorship.CalculationID{"c1", "c2"},
		Status:         sponsorship.PayoutScheduled,
		CreatedAt:      day(2, 1),
	}
	require.NoError(t, store.SavePayout(ctx, p))
	p.Status = sponsorship.PayoutPaid
	require.NoError(t, store.SavePayout(ctx, p))

	got, err := store.LoadPayouts(ctx, "deal-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sponsorship.PayoutPaid, got[0].Status)
	assert.Equal(t, p.CalculationIDs, got[0].CalculationIDs)
	assert.Equal(t, p.Period, got[0].Period)
}

func TestStore_SettlementRuns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SaveSettlementRun(ctx, sponsorship.SettlementRun{
		ID: "r1", DealID: "deal-1", PeriodEnd: day(1, 31), Status: "completed",
		Calculations: 2, TotalBonus: "212", RunAt: day(2, 1),
	}))

	settled, err := store.IsSettled(ctx, "deal-1", day(1, 31).Add(12*time.Hour))
	require.NoError(t, err)
	assert.True(t, settled)

	runs, err := store.ListSettlementRuns(ctx, "failed")
	require.NoError(t, err)
	assert.Empty(t, runs)

	runs, err = store.ListSettlementRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "212", runs[0].TotalBonus)
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveDeal(ctx, testDeal()))

	require.NoError(t, store.Reset(ctx))

	deals, err := store.ListDeals(ctx, sponsorship.DealFilter{})
	require.NoError(t, err)
	assert.Empty(t, deals)
}
