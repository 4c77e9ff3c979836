/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Sponsor and deal creation, lookup and validation
- Deal workflow transitions
- Bonus calculation (payable filter, persistence, idempotency)
- Campaign summary caching and invalidation
- Ops endpoints (healthz, metrics, rate limiting)
*/
package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/sponsorship-engine/config"
	"github.com/warp/sponsorship-engine/sponsorship"
	"github.com/warp/sponsorship-engine/sponsorship/store"
)

// =============================================================================
// SPONSORS & DEALS
// =============================================================================

func TestCreateDeal_RoundTripsRules(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSponsor(t)

	// WHEN: Creating the January deal without a status
	var created DealDTO
	ts.mustDo(t, http.MethodPost, "/api/deals", januaryDealRequest("deal-1"), &created, http.StatusCreated)

	// THEN: It starts as a draft with defaults filled in
	assert.Equal(t, "draft", created.Status)
	assert.Equal(t, "USD", created.Currency)

	// AND: Reading it back returns the same rules
	var got DealDTO
	ts.mustDo(t, http.MethodGet, "/api/deals/deal-1", nil, &got, http.StatusOK)
	require.Len(t, got.Rules, 4)
	assert.Equal(t, "2025-01-01", got.PeriodStart)
	assert.Equal(t, "2025-01-31", got.PeriodEnd)
	assert.Equal(t, "performance", got.Rules[1].BonusType)
	require.NotNil(t, got.Rules[1].Cap)
	assert.True(t, got.Rules[1].Cap.Equal(mustDecimal("300")))
	require.Len(t, got.Rules[2].Milestones, 2)
	assert.True(t, got.KPITargets["views"].Equal(mustDecimal("5000")))
}

func TestCreateDeal_Rejections(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSponsor(t)

	tests := []struct {
		name   string
		mutate func(map[string]any)
		status int
	}{
		{"unknown bonus type", func(r map[string]any) {
			r["rules"] = []map[string]any{{"bonus_type": "lottery"}}
		}, http.StatusBadRequest},
		{"negative rate", func(r map[string]any) {
			r["rules"] = []map[string]any{{"bonus_type": "performance", "metric_type": "views", "rate": "-1"}}
		}, http.StatusBadRequest},
		{"period ends before it starts", func(r map[string]any) {
			r["period_end"] = "2024-12-31"
		}, http.StatusBadRequest},
		{"missing period start", func(r map[string]any) {
			delete(r, "period_start")
		}, http.StatusBadRequest},
		{"unknown sponsor", func(r map[string]any) {
			r["sponsor_id"] = "nobody"
		}, http.StatusBadRequest},
		{"negative base fee", func(r map[string]any) {
			r["base_fee"] = "-10"
		}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := januaryDealRequest("deal-x")
			tt.mutate(req)

			var resp ErrorResponse
			code := ts.do(t, http.MethodPost, "/api/deals", req, &resp)

			assert.Equal(t, tt.status, code)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestCreateDeal_ValidationDetails(t *testing.T) {
	ts := newTestServer(t)

	var resp ErrorResponse
	code := ts.do(t, http.MethodPost, "/api/deals", map[string]any{"creator_id": "c"}, &resp)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation", resp.Code)
	details, ok := resp.Details.([]any)
	require.True(t, ok)
	assert.Contains(t, details, "CreateDealRequest.SponsorID failed required")
}

func TestGetDeal_NotFound(t *testing.T) {
	ts := newTestServer(t)

	var resp ErrorResponse
	code := ts.do(t, http.MethodGet, "/api/deals/missing", nil, &resp)

	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, resp.Details, "deal not found")
}

func TestListDeals_Filters(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSponsor(t)
	ts.seedJanuaryDeal(t, "deal-a", "active")
	ts.seedJanuaryDeal(t, "deal-b", "draft")

	var active []DealDTO
	ts.mustDo(t, http.MethodGet, "/api/deals?status=active", nil, &active, http.StatusOK)
	require.Len(t, active, 1)
	assert.Equal(t, "deal-a", active[0].ID)

	code := ts.do(t, http.MethodGet, "/api/deals?status=paused", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestUpdateDealStatus_FollowsWorkflow(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSponsor(t)
	ts.mustDo(t, http.MethodPost, "/api/deals", januaryDealRequest("deal-1"), nil, http.StatusCreated)

	// GIVEN: A draft deal
	// WHEN: Jumping straight to active
	var resp ErrorResponse
	code := ts.do(t, http.MethodPost, "/api/deals/deal-1/status", UpdateDealStatusRequest{Status: "active"}, &resp)

	// THEN: The transition is rejected
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Details, "cannot move from draft to active")

	// WHEN: Going through pending
	ts.mustDo(t, http.MethodPost, "/api/deals/deal-1/status", UpdateDealStatusRequest{Status: "pending"}, nil, http.StatusOK)
	var deal DealDTO
	ts.mustDo(t, http.MethodPost, "/api/deals/deal-1/status", UpdateDealStatusRequest{Status: "active"}, &deal, http.StatusOK)

	// THEN: The deal is active
	assert.Equal(t, "active", deal.Status)
}

func TestRecommendedRules_ByTier(t *testing.T) {
	ts := newTestServer(t)
	ts.mustDo(t, http.MethodPost, "/api/sponsors", CreateSponsorRequest{
		ID: "plat", Name: "Platinum Co", Tier: "platinum", Budget: mustDecimal("1"),
	}, nil, http.StatusCreated)

	var resp RecommendedRulesResponse
	ts.mustDo(t, http.MethodGet, "/api/sponsors/plat/recommended-rules", nil, &resp, http.StatusOK)

	require.Len(t, resp.Rules, 3)
	assert.Equal(t, "performance", resp.Rules[0].BonusType)
	assert.Equal(t, "milestone", resp.Rules[1].BonusType)
	assert.Equal(t, "engagement", resp.Rules[2].MetricType)
}

// =============================================================================
// METRICS & PAYOUTS
// =============================================================================

func TestRecordMetrics_RejectsWholeBatch(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSponsor(t)
	ts.mustDo(t, http.MethodPost, "/api/deals", januaryDealRequest("deal-1"), nil, http.StatusCreated)

	// GIVEN: A batch with one unknown metric type
	code := ts.do(t, http.MethodPost, "/api/deals/deal-1/metrics", RecordMetricsRequest{Metrics: []MetricInput{
		{Type: "views", Value: mustDecimal("10"), MeasuredAt: feb5},
		{Type: "impressions", Value: mustDecimal("10"), MeasuredAt: feb5},
	}}, nil)

	// THEN: Nothing is stored
	assert.Equal(t, http.StatusBadRequest, code)
	var metrics []MetricDTO
	ts.mustDo(t, http.MethodGet, "/api/deals/deal-1/metrics", nil, &metrics, http.StatusOK)
	assert.Empty(t, metrics)
}

func TestCreatePayout_DefaultsToScheduled(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSponsor(t)
	ts.mustDo(t, http.MethodPost, "/api/deals", januaryDealRequest("deal-1"), nil, http.StatusCreated)

	var p PayoutDTO
	ts.mustDo(t, http.MethodPost, "/api/deals/deal-1/payouts", CreatePayoutRequest{
		Type:        "base_fee",
		Amount:      mustDecimal("2000"),
		PeriodStart: "2025-01-01",
		PeriodEnd:   "2025-01-31",
	}, &p, http.StatusCreated)

	assert.Equal(t, "scheduled", p.Status)
	assert.NotEmpty(t, p.ID)

	code := ts.do(t, http.MethodPost, "/api/deals/deal-1/payouts", CreatePayoutRequest{
		Type: "base_fee", Amount: mustDecimal("1"), PeriodStart: "2025-01-01",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, code, "half-open period")
}

// =============================================================================
// CALCULATIONS
// =============================================================================

func TestCalculate_ReturnsPayableByDefault(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSponsor(t)
	ts.seedJanuaryDeal(t, "deal-1", "active")

	// WHEN: Calculating over the deal period
	var resp CalculateResponse
	ts.mustDo(t, http.MethodPost, "/api/deals/deal-1/calculations", nil, &resp, http.StatusOK)

	// THEN: Only positive bonuses are returned
	require.Len(t, resp.Calculations, 3)
	assert.True(t, resp.TotalBonus.Equal(mustDecimal("1150")), resp.TotalBonus.String())

	byRule := map[string]CalculationDTO{}
	for _, c := range resp.Calculations {
		byRule[c.RuleID] = c
	}
	assert.Equal(t, "capped", byRule["clicks"].Status)
	assert.True(t, byRule["clicks"].CapApplied)
	assert.True(t, byRule["views-ms"].BonusAmount.Equal(mustDecimal("350")))
	assert.Equal(t, []string{"milestone:1000", "milestone:5000"}, byRule["views-ms"].AppliedRules)
	assert.Equal(t, 0, resp.Persisted)
}

func TestCalculate_AllIncludesUnpaidStatuses(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSponsor(t)
	ts.seedJanuaryDeal(t, "deal-1", "active")

	var resp CalculateResponse
	ts.mustDo(t, http.MethodPost, "/api/deals/deal-1/calculations?all=true", nil, &resp, http.StatusOK)

	require.Len(t, resp.Calculations, 4)
	assert.Equal(t, "rev", resp.Calculations[3].RuleID)
	assert.Equal(t, "not_applicable", resp.Calculations[3].Status)
	assert.True(t, resp.Calculations[3].BonusAmount.IsZero())
}

func TestCalculate_CustomWindow(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSponsor(t)
	ts.seedJanuaryDeal(t, "deal-1", "active")

	// GIVEN: A window that only covers the first 4000 views and the clicks
	var resp CalculateResponse
	ts.mustDo(t, http.MethodPost, "/api/deals/deal-1/calculations",
		CalculateRequest{PeriodStart: "2025-01-01", PeriodEnd: "2025-01-15"}, &resp, http.StatusOK)

	// THEN: Only the 1000-view milestone is reached
	assert.Equal(t, "2025-01-15", resp.PeriodEnd)
	assert.True(t, resp.TotalBonus.Equal(mustDecimal("900")), resp.TotalBonus.String())

	code := ts.do(t, http.MethodPost, "/api/deals/deal-1/calculations",
		CalculateRequest{PeriodStart: "2025-02-01", PeriodEnd: "2025-01-01"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCalculate_PersistIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSponsor(t)
	ts.seedJanuaryDeal(t, "deal-1", "active")

	// GIVEN: A first persisted calculation
	var first CalculateResponse
	ts.mustDo(t, http.MethodPost, "/api/deals/deal-1/calculations?persist=true&all=true", nil, &first, http.StatusOK)
	assert.Equal(t, 4, first.Persisted)
	assert.Equal(t, 0, first.Duplicates)

	// WHEN: Recomputing the same period
	var second CalculateResponse
	ts.mustDo(t, http.MethodPost, "/api/deals/deal-1/calculations?persist=true&all=true", nil, &second, http.StatusOK)

	// THEN: Nothing new is stored and the stored IDs are returned
	assert.Equal(t, 0, second.Persisted)
	assert.Equal(t, 4, second.Duplicates)
	require.Len(t, second.Calculations, 4)
	for i := range first.Calculations {
		assert.Equal(t, first.Calculations[i].ID, second.Calculations[i].ID)
		assert.Equal(t, first.Calculations[i].IdempotencyKey, second.Calculations[i].IdempotencyKey)
	}

	var stored []CalculationDTO
	ts.mustDo(t, http.MethodGet, "/api/deals/deal-1/calculations", nil, &stored, http.StatusOK)
	assert.Len(t, stored, 4)
}

func TestCalculate_BadFlag(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSponsor(t)
	ts.seedJanuaryDeal(t, "deal-1", "active")

	code := ts.do(t, http.MethodPost, "/api/deals/deal-1/calculations?persist=maybe", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

// =============================================================================
// ANALYTICS
// =============================================================================

func TestGetSummary_CachedUntilWrite(t *testing.T) {
	cache := newMapCache()
	ts := newTestServer(t, WithCache(cache))
	ts.seedSponsor(t)
	ts.seedJanuaryDeal(t, "deal-1", "active")
	ts.mustDo(t, http.MethodPost, "/api/deals/deal-1/payouts", CreatePayoutRequest{
		Type: "base_fee", Amount: mustDecimal("2000"), PeriodStart: "2025-01-01", PeriodEnd: "2025-01-31",
	}, nil, http.StatusCreated)

	// WHEN: Requesting the summary twice
	var first, second SummaryDTO
	ts.mustDo(t, http.MethodGet, "/api/deals/deal-1/summary", nil, &first, http.StatusOK)
	ts.mustDo(t, http.MethodGet, "/api/deals/deal-1/summary", nil, &second, http.StatusOK)

	// THEN: The second one comes from the cache
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.True(t, first.Metrics.Views.Equal(mustDecimal("6000")))
	assert.True(t, first.Spend.TotalSpend.Equal(mustDecimal("2000")))
	assert.True(t, first.Ratios.CPM.Equal(mustDecimal("333.3333")), first.Ratios.CPM.String())

	// KPI: views 6000/5000 = 120, clicks 800/1000 = 80 -> 100 -> A
	assert.Equal(t, "A", first.Grade)
	assert.True(t, first.OverallScore.Equal(mustDecimal("100")), first.OverallScore.String())

	// WHEN: New metrics arrive
	ts.mustDo(t, http.MethodPost, "/api/deals/deal-1/metrics", RecordMetricsRequest{Metrics: []MetricInput{
		{Type: "views", Value: mustDecimal("1000"), MeasuredAt: time.Date(2025, 1, 25, 0, 0, 0, 0, time.UTC)},
	}}, nil, http.StatusCreated)

	// THEN: The summary is regenerated
	var third SummaryDTO
	ts.mustDo(t, http.MethodGet, "/api/deals/deal-1/summary", nil, &third, http.StatusOK)
	assert.False(t, third.Cached)
	assert.True(t, third.Metrics.Views.Equal(mustDecimal("7000")))
}

func TestGetSummary_NoTargetsIsNotGraded(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSponsor(t)
	req := januaryDealRequest("deal-1")
	delete(req, "kpi_targets")
	ts.mustDo(t, http.MethodPost, "/api/deals", req, nil, http.StatusCreated)

	var s SummaryDTO
	ts.mustDo(t, http.MethodGet, "/api/deals/deal-1/summary?start=2025-01-01&end=2025-01-10", nil, &s, http.StatusOK)

	assert.Equal(t, "N/A", s.Grade)
	assert.Equal(t, "2025-01-10", s.PeriodEnd)
	assert.True(t, s.Ratios.ROI.IsZero())
}

func TestGetTargeting_RanksPlatforms(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSponsor(t)
	ts.seedJanuaryDeal(t, "deal-1", "active")

	var resp TargetingDTO
	ts.mustDo(t, http.MethodGet, "/api/deals/deal-1/targeting", nil, &resp, http.StatusOK)

	assert.Equal(t, []string{"youtube", "tiktok"}, resp.RecommendedPlatforms)
	require.Len(t, resp.Scores, 2)
	assert.True(t, resp.Scores[0].Score.Equal(mustDecimal("4000")))
}

// =============================================================================
// OPS
// =============================================================================

func TestHealthzAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	var health map[string]string
	ts.mustDo(t, http.MethodGet, "/healthz", nil, &health, http.StatusOK)
	assert.Equal(t, "ok", health["status"])

	ts.do(t, http.MethodGet, "/api/deals/missing", nil, nil)

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, `sponsorship_http_requests_total{method="GET",route="/api/deals/{id}`), text)
	assert.True(t, strings.Contains(text, `status="404"`), text)
	assert.True(t, strings.Contains(text, "go_goroutines"), "runtime collectors registered")
}

func TestRateLimit(t *testing.T) {
	h := NewHandler(store.NewMemory(), nil, nil)
	cfg := config.Default()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, Requests: 2, Window: time.Minute}
	router := NewRouter(h, &cfg)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/sponsors", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestPersistCalculations_MemoryStore(t *testing.T) {
	h := NewHandler(store.NewMemory(), nil, nil, WithClock(func() time.Time { return feb5 }))
	deal := sponsorship.Deal{
		ID:     "deal-mem",
		Period: sponsorship.MustPeriod(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)),
		Rules:  []sponsorship.Rule{sponsorship.NewFixedRule("flat", mustDecimal("10"))},
	}
	calcs := h.Calc.CalculateBonus(deal, nil, deal.Period)

	_, persisted, _, err := h.persistCalculations(context.Background(), deal.ID, calcs)
	require.NoError(t, err)
	assert.Equal(t, 1, persisted)

	again := h.Calc.CalculateBonus(deal, nil, deal.Period)
	out, persisted, duplicates, err := h.persistCalculations(context.Background(), deal.ID, again)
	require.NoError(t, err)
	assert.Equal(t, 0, persisted)
	assert.Equal(t, 1, duplicates)
	assert.Equal(t, calcs[0].ID, out[0].ID)
}
