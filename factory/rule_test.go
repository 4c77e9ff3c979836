package factory_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/sponsorship-engine/factory"
	"github.com/warp/sponsorship-engine/sponsorship"
)

// =============================================================================
// PARSING
// =============================================================================

func TestParseRule_Performance(t *testing.T) {
	f := factory.NewRuleFactory()

	rule, err := f.ParseRule(`{
		"id": "views-bonus",
		"name": "Views bonus",
		"bonus_type": "performance",
		"metric_type": "views",
		"threshold": 1000,
		"rate": "0.001",
		"cap": "500"
	}`)

	require.NoError(t, err)
	perf, ok := rule.(sponsorship.PerformanceRule)
	require.True(t, ok)
	assert.Equal(t, sponsorship.RuleID("views-bonus"), perf.ID)
	assert.Equal(t, sponsorship.MetricViews, perf.Metric)
	assert.True(t, perf.Threshold.Equal(decimal.NewFromInt(1000)))
	assert.True(t, perf.Rate.Equal(decimal.RequireFromString("0.001")))
	assert.True(t, perf.Constraints.Cap.Equal(decimal.NewFromInt(500)))
	assert.Nil(t, perf.BaseAmount)
}

func TestParseRules_EveryVariant(t *testing.T) {
	f := factory.NewRuleFactory()

	rules, err := f.ParseRules(`[
		{"id": "a", "bonus_type": "fixed", "base_amount": "250"},
		{"id": "b", "bonus_type": "milestone", "metric_type": "views",
		 "milestones": [{"target": "10000", "bonus": "200"}, {"target": "50000", "bonus": "500"}]},
		{"id": "c", "bonus_type": "revenue_share", "percentage": "15"},
		{"id": "d", "bonus_type": "tiered", "metric_type": "clicks",
		 "tiers": [{"min": "0", "max": "99", "bonus": "0"}, {"min": "100", "rate": "0.5"}]}
	]`)

	require.NoError(t, err)
	require.Len(t, rules, 4)
	assert.Equal(t, sponsorship.BonusFixed, rules[0].BonusType())
	assert.Len(t, rules[1].(sponsorship.MilestoneRule).Milestones, 2)
	assert.Equal(t, sponsorship.BonusRevenueShare, rules[2].BonusType())
	tiered := rules[3].(sponsorship.TieredRule)
	assert.Nil(t, tiered.Tiers[1].Max)
	assert.Equal(t, sponsorship.MetricClicks, tiered.PrimaryMetric())
}

func TestParseRule_IgnoresForeignFields(t *testing.T) {
	// GIVEN: A milestone rule carrying a rate it does not use
	f := factory.NewRuleFactory()

	rule, err := f.ParseRule(`{"bonus_type": "milestone", "metric_type": "views", "rate": "9",
		"milestones": [{"target": "1", "bonus": "1"}]}`)

	// THEN: Accepted, and the rate is dropped on the way out
	require.NoError(t, err)
	rj, err := factory.ToJSON(rule)
	require.NoError(t, err)
	assert.Nil(t, rj.Rate)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestParseRule_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		json   string
		target error
		field  string
	}{
		{"unknown bonus type", `{"bonus_type": "lottery"}`, sponsorship.ErrUnknownBonusType, ""},
		{"missing bonus type", `{"id": "x"}`, sponsorship.ErrInvalidRule, "BonusType"},
		{"negative cap", `{"bonus_type": "fixed", "base_amount": "1", "cap": "-1"}`, sponsorship.ErrInvalidRule, "cap"},
		{"negative base", `{"bonus_type": "fixed", "base_amount": "-5"}`, sponsorship.ErrInvalidRule, "base_amount"},
		{"percentage over 100", `{"bonus_type": "revenue_share", "percentage": "101"}`, sponsorship.ErrInvalidRule, "percentage"},
		{"unknown metric", `{"bonus_type": "performance", "metric_type": "vibes", "rate": "1"}`, sponsorship.ErrInvalidRule, "metric_type"},
		{"missing metric", `{"bonus_type": "tiered", "tiers": [{"min": "0"}]}`, sponsorship.ErrInvalidRule, "metric_type"},
		{"empty milestones", `{"bonus_type": "milestone", "metric_type": "views"}`, sponsorship.ErrInvalidRule, "milestones"},
		{"inverted tier", `{"bonus_type": "tiered", "metric_type": "views", "tiers": [{"min": "10", "max": "5"}]}`, sponsorship.ErrInvalidRule, "tiers.max"},
	}

	f := factory.NewRuleFactory()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ParseRule(tt.json)

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
			assert.True(t, sponsorship.IsClientError(err))
			if tt.field != "" {
				var re *sponsorship.RuleError
				require.True(t, errors.As(err, &re))
				assert.Equal(t, tt.field, re.Field)
			}
		})
	}
}

func TestParseRule_MalformedJSON(t *testing.T) {
	_, err := factory.NewRuleFactory().ParseRule(`{"bonus_type": `)
	assert.Error(t, err)
}

func TestParseRules_ReportsFailingIndex(t *testing.T) {
	_, err := factory.NewRuleFactory().ParseRules(`[{"bonus_type": "fixed"}, {"bonus_type": "nope"}]`)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule 1")
}

// =============================================================================
// ROUND TRIP
// =============================================================================

func TestToJSON_TieredFlatBonusSurvives(t *testing.T) {
	// GIVEN: A tier paying a flat bonus and one paying a rate
	rule := sponsorship.NewTieredRule("t", sponsorship.MetricViews,
		sponsorship.RateTier{Min: decimal.Zero, Max: sponsorship.Dec(999), Bonus: decimal.NewFromInt(10)},
		sponsorship.RateTier{Min: decimal.NewFromInt(1000), Rate: sponsorship.Dec(0.02)},
	)

	// WHEN: Converting out and back in
	rj, err := factory.ToJSON(rule)
	require.NoError(t, err)
	back, err := factory.NewRuleFactory().FromJSON(rj)
	require.NoError(t, err)

	// THEN: Both tiers evaluate identically
	for _, views := range []int64{500, 5000} {
		m := sponsorship.Totals{sponsorship.MetricViews: decimal.NewFromInt(views)}
		assert.True(t, sponsorship.Evaluate(rule, m).BonusAmount.Equal(sponsorship.Evaluate(back, m).BonusAmount))
	}
	require.NotNil(t, rj.Tiers[0].Bonus)
	assert.Nil(t, rj.Tiers[1].Bonus)
}

func TestParseRule_RevenueShareMinimumMetric(t *testing.T) {
	// GIVEN: A revenue share gated on revenue rather than views
	f := factory.NewRuleFactory()
	rule, err := f.ParseRule(`{"id": "rev", "bonus_type": "revenue_share", "metric_type": "revenue",
		"percentage": "10", "minimum_performance": "5000"}`)
	require.NoError(t, err)

	// WHEN: Only revenue is recorded
	m := sponsorship.Totals{sponsorship.MetricRevenue: decimal.NewFromInt(10000)}
	out := sponsorship.ApplyConstraints(rule, m, sponsorship.Evaluate(rule, m))

	// THEN: The minimum passes and 10% is paid
	assert.True(t, out.BonusAmount.Equal(decimal.NewFromInt(1000)), out.BonusAmount.String())

	// AND: The metric survives the trip back to JSON
	rj, err := factory.ToJSON(rule)
	require.NoError(t, err)
	assert.Equal(t, "revenue", rj.MetricType)
}

func TestParseRule_FixedMetricDefaultsToViews(t *testing.T) {
	f := factory.NewRuleFactory()

	rule, err := f.ParseRule(`{"bonus_type": "fixed", "base_amount": "100", "minimum_performance": "10"}`)
	require.NoError(t, err)
	assert.Equal(t, sponsorship.MetricViews, rule.PrimaryMetric())

	_, err = f.ParseRule(`{"bonus_type": "fixed", "metric_type": "vibes", "base_amount": "100"}`)
	assert.ErrorIs(t, err, sponsorship.ErrInvalidRule)
}

func TestToJSON_NilRule(t *testing.T) {
	_, err := factory.ToJSON(nil)
	assert.ErrorIs(t, err, sponsorship.ErrInvalidRule)
}
