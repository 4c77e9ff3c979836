/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	sponsors, deals, measurements and payouts. Each scenario exercises a
	different part of the bonus engine.

AVAILABLE SCENARIOS:

	launch-campaign:  Silver sponsor, threshold + rate rules, running deal
	tiered-creator:   Platinum sponsor, tiered and milestone rules, KPI grading
	ended-campaign:   Active deal whose period ended last month, ready to settle

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create sponsor
 3. Create deal from rule JSON via the rule factory
 4. Append performance measurements
 5. Optionally record payouts

DATES:

	Scenario periods are relative to the handler clock, so a loaded
	scenario always looks current.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "tiered-creator"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and helpers
  - factory/rule.go: Rule JSON definitions
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/sponsorship-engine/sponsorship"
	"go.uber.org/zap"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "launch-campaign",
		Name:        "Launch Campaign",
		Description: "Silver sponsor with a views threshold bonus and a per-click rate, deal in progress",
	},
	{
		ID:          "tiered-creator",
		Name:        "Tiered Creator",
		Description: "Platinum sponsor with tiered download rates, view milestones and KPI targets",
	},
	{
		ID:          "ended-campaign",
		Name:        "Ended Campaign",
		Description: "Active deal whose period ended last month; the scheduler settles it",
	},
}

type scenarioLoader func(h *Handler, ctx context.Context, today time.Time) error

var scenarioLoaders = map[string]scenarioLoader{
	"launch-campaign": (*Handler).loadLaunchCampaign,
	"tiered-creator":  (*Handler).loadTieredCreator,
	"ended-campaign":  (*Handler).loadEndedCampaign,
}

// =============================================================================
// HANDLERS
// =============================================================================

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	h.mu.Lock()
	defer h.mu.Unlock()

	// Reset first
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset store", err)
		return
	}
	if err := load(h, ctx, sponsorship.Day(h.now())); err != nil {
		h.Logger.Error("failed to load scenario", zap.String("scenario", req.ScenarioID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID

	h.Logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset store", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// reset clears the store and every cached summary. Callers hold h.mu.
func (h *Handler) reset(ctx context.Context) error {
	deals, err := h.Store.ListDeals(ctx, sponsorship.DealFilter{})
	if err != nil {
		return err
	}
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	for _, d := range deals {
		h.invalidate(ctx, d.ID)
	}
	h.currentScenario = ""
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadLaunchCampaign(ctx context.Context, today time.Time) error {
	sponsor := sponsorship.Sponsor{
		ID:     "sponsor-nimbus",
		Name:   "Nimbus Audio",
		Tier:   sponsorship.TierSilver,
		Budget: mustDecimal("25000"),
		Preferences: sponsorship.SponsorPreferences{
			Platforms:  []string{"youtube", "spotify"},
			Categories: []string{"music", "tech"},
		},
		CreatedAt: h.now(),
	}
	rules := `[
		{"id": "views-bonus", "name": "100k views bonus", "bonus_type": "performance",
		 "metric_type": "views", "threshold": "100000", "base_amount": "500", "cap": "1500"},
		{"id": "click-rate", "name": "Per-click rate", "bonus_type": "performance",
		 "metric_type": "clicks", "rate": "0.25", "cap": "1000", "minimum_performance": "1000"}
	]`
	deal, err := h.scenarioDeal(ctx, sponsor, "deal-nimbus-launch", "Headphone launch", rules,
		today.AddDate(0, 0, -20), today.AddDate(0, 0, 10),
		map[string]string{"views": "150000", "clicks": "4000"})
	if err != nil {
		return err
	}

	metrics := dailyMetrics(deal.ID, deal.Period.Start, 20, []dailySeries{
		{sponsorship.MetricViews, "youtube", 6500},
		{sponsorship.MetricClicks, "youtube", 180},
		{sponsorship.MetricEngagement, "youtube", 420},
		{sponsorship.MetricStreams, "spotify", 2200},
	})
	if err := h.Store.AppendMetrics(ctx, metrics); err != nil {
		return err
	}

	return h.Store.SavePayout(ctx, sponsorship.Payout{
		ID:        "payout-nimbus-base",
		DealID:    deal.ID,
		Type:      sponsorship.PayoutBaseFee,
		Amount:    deal.BaseFee,
		Period:    deal.Period,
		Status:    sponsorship.PayoutPaid,
		CreatedAt: h.now(),
	})
}

func (h *Handler) loadTieredCreator(ctx context.Context, today time.Time) error {
	sponsor := sponsorship.Sponsor{
		ID:     "sponsor-orbit",
		Name:   "Orbit Games",
		Tier:   sponsorship.TierPlatinum,
		Budget: mustDecimal("120000"),
		Preferences: sponsorship.SponsorPreferences{
			Platforms:  []string{"twitch", "youtube", "tiktok"},
			Categories: []string{"gaming"},
		},
		CreatedAt: h.now(),
	}
	rules := `[
		{"id": "download-tiers", "name": "Download tiers", "bonus_type": "tiered",
		 "metric_type": "downloads", "tiers": [
			{"min": "0", "max": "10000", "rate": "0.10"},
			{"min": "10000", "max": "50000", "rate": "0.15"},
			{"min": "50000", "bonus": "10000"}
		 ]},
		{"id": "view-milestones", "name": "View milestones", "bonus_type": "milestone",
		 "metric_type": "views", "milestones": [
			{"target": "250000", "bonus": "1000"},
			{"target": "500000", "bonus": "2500"},
			{"target": "1000000", "bonus": "5000"}
		 ]},
		{"id": "rev-share", "name": "In-game purchase share", "bonus_type": "revenue_share",
		 "percentage": "5", "cap": "4000"}
	]`
	deal, err := h.scenarioDeal(ctx, sponsor, "deal-orbit-season", "Season launch", rules,
		today.AddDate(0, 0, -28), today.AddDate(0, 0, 2),
		map[string]string{"views": "600000", "downloads": "30000", "engagement_rate": "5"})
	if err != nil {
		return err
	}

	metrics := dailyMetrics(deal.ID, deal.Period.Start, 28, []dailySeries{
		{sponsorship.MetricViews, "twitch", 9000},
		{sponsorship.MetricViews, "youtube", 12000},
		{sponsorship.MetricViews, "tiktok", 4000},
		{sponsorship.MetricEngagement, "twitch", 1100},
		{sponsorship.MetricEngagement, "tiktok", 900},
		{sponsorship.MetricDownloads, "", 850},
		{sponsorship.MetricRevenue, "", 1900},
		{sponsorship.MetricConversions, "", 60},
	})
	if err := h.Store.AppendMetrics(ctx, metrics); err != nil {
		return err
	}

	return h.Store.SavePayout(ctx, sponsorship.Payout{
		ID:        "payout-orbit-base",
		DealID:    deal.ID,
		Type:      sponsorship.PayoutBaseFee,
		Amount:    deal.BaseFee,
		Period:    deal.Period,
		Status:    sponsorship.PayoutPaid,
		CreatedAt: h.now(),
	})
}

func (h *Handler) loadEndedCampaign(ctx context.Context, today time.Time) error {
	sponsor := sponsorship.Sponsor{
		ID:        "sponsor-brew",
		Name:      "Brewline Coffee",
		Tier:      sponsorship.TierGold,
		Budget:    mustDecimal("40000"),
		CreatedAt: h.now(),
	}
	rules := `[
		{"id": "flat-bonus", "name": "Completion bonus", "bonus_type": "fixed",
		 "base_amount": "750", "minimum_performance": "50000"},
		{"id": "conversion-rate", "name": "Per-conversion rate", "bonus_type": "performance",
		 "metric_type": "conversions", "rate": "4", "cap": "2000"}
	]`
	deal, err := h.scenarioDeal(ctx, sponsor, "deal-brew-podcast", "Podcast mid-rolls", rules,
		today.AddDate(0, -1, -30), today.AddDate(0, 0, -3),
		map[string]string{"downloads": "60000", "conversions": "400"})
	if err != nil {
		return err
	}

	metrics := dailyMetrics(deal.ID, deal.Period.Start, deal.Period.Days(), []dailySeries{
		{sponsorship.MetricViews, "podcast", 2100},
		{sponsorship.MetricDownloads, "podcast", 1300},
		{sponsorship.MetricConversions, "", 9},
		{sponsorship.MetricRevenue, "", 320},
	})
	return h.Store.AppendMetrics(ctx, metrics)
}

// =============================================================================
// LOADER HELPERS
// =============================================================================

// scenarioDeal saves the sponsor and an active deal built from rule JSON.
func (h *Handler) scenarioDeal(
	ctx context.Context,
	sponsor sponsorship.Sponsor,
	id sponsorship.DealID,
	title, rulesJSON string,
	start, end time.Time,
	kpis map[string]string,
) (sponsorship.Deal, error) {
	if err := h.Store.SaveSponsor(ctx, sponsor); err != nil {
		return sponsorship.Deal{}, err
	}

	rules, err := h.Rules.ParseRules(rulesJSON)
	if err != nil {
		return sponsorship.Deal{}, fmt.Errorf("scenario rules: %w", err)
	}
	period, err := sponsorship.NewPeriod(start, end)
	if err != nil {
		return sponsorship.Deal{}, err
	}
	targets := make(map[string]decimal.Decimal, len(kpis))
	for name, v := range kpis {
		targets[name] = mustDecimal(v)
	}

	now := h.now()
	deal := sponsorship.Deal{
		ID:         id,
		SponsorID:  sponsor.ID,
		CreatorID:  sponsorship.CreatorID("creator-" + string(id)),
		Title:      title,
		BaseFee:    mustDecimal("5000"),
		Currency:   "USD",
		Rules:      rules,
		Period:     period,
		KPITargets: targets,
		Status:     sponsorship.DealActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return deal, h.Store.SaveDeal(ctx, deal)
}

type dailySeries struct {
	metric   sponsorship.MetricType
	platform string
	perDay   int64
}

// dailyMetrics produces one measurement per series per day at noon UTC.
func dailyMetrics(dealID sponsorship.DealID, from time.Time, days int, series []dailySeries) []sponsorship.PerformanceMetric {
	var out []sponsorship.PerformanceMetric
	for d := 0; d < days; d++ {
		at := from.AddDate(0, 0, d).Add(12 * time.Hour)
		for _, s := range series {
			out = append(out, sponsorship.PerformanceMetric{
				ID:         sponsorship.MetricID(fmt.Sprintf("%s-%s-%s-%d", dealID, s.metric, s.platform, d)),
				DealID:     dealID,
				Type:       s.metric,
				Value:      decimal.NewFromInt(s.perDay),
				MeasuredAt: at,
				Platform:   s.platform,
			})
		}
	}
	return out
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
