package sponsorship

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECOMMENDATION ENGINE
// =============================================================================

// Defaults for recommended rule sets.
var (
	recommendedViewRate       = decimal.RequireFromString("0.001")
	recommendedViewFloor      = decimal.NewFromInt(1000)
	recommendedViewCap        = decimal.NewFromInt(500)
	recommendedBudgetCapShare = decimal.RequireFromString("0.10")

	recommendedEngagementRate      = decimal.RequireFromString("0.01")
	recommendedEngagementThreshold = decimal.NewFromInt(100)
	recommendedEngagementCap       = decimal.NewFromInt(1000)

	recommendedMilestones = []Milestone{
		{Target: decimal.NewFromInt(10000), Bonus: decimal.NewFromInt(100)},
		{Target: decimal.NewFromInt(50000), Bonus: decimal.NewFromInt(300)},
		{Target: decimal.NewFromInt(100000), Bonus: decimal.NewFromInt(750)},
	}
)

// maxRecommendedPlatforms bounds the targeting recommendation.
const maxRecommendedPlatforms = 5

// RecommendBonusStructure proposes a default rule set for sponsor.
//
// Every sponsor gets a views performance rule. Its threshold never drops
// below the floor but rises to half of the historical view volume, and its
// cap is 10% of the sponsor's budget when one is set. Gold and platinum
// sponsors add a views milestone rule; platinum adds an engagement rule.
func RecommendBonusStructure(sponsor Sponsor, history []PerformanceMetric) []Rule {
	var historicalViews decimal.Decimal
	for _, m := range history {
		if m.Type == MetricViews {
			historicalViews = historicalViews.Add(m.Value)
		}
	}

	threshold := decimal.Max(recommendedViewFloor, historicalViews.Div(decimal.NewFromInt(2)).Floor())
	viewCap := recommendedViewCap
	if sponsor.Budget.IsPositive() {
		viewCap = sponsor.Budget.Mul(recommendedBudgetCapShare).Round(2)
	}

	viewRate := recommendedViewRate
	views := PerformanceRule{
		RuleBase: RuleBase{
			ID:          "recommended-views",
			Name:        "Views performance bonus",
			Constraints: Constraints{Cap: &viewCap},
		},
		Metric:    MetricViews,
		Threshold: &threshold,
		Rate:      &viewRate,
	}
	rules := []Rule{views}

	if sponsor.Tier.AtLeast(TierGold) {
		milestones := make([]Milestone, len(recommendedMilestones))
		copy(milestones, recommendedMilestones)
		rules = append(rules, MilestoneRule{
			RuleBase:   RuleBase{ID: "recommended-milestones", Name: "Views milestones"},
			Metric:     MetricViews,
			Milestones: milestones,
		})
	}

	if sponsor.Tier == TierPlatinum {
		engagementRate := recommendedEngagementRate
		engagementThreshold := recommendedEngagementThreshold
		engagementCap := recommendedEngagementCap
		rules = append(rules, PerformanceRule{
			RuleBase: RuleBase{
				ID:          "recommended-engagement",
				Name:        "Engagement performance bonus",
				Constraints: Constraints{Cap: &engagementCap},
			},
			Metric:    MetricEngagement,
			Threshold: &engagementThreshold,
			Rate:      &engagementRate,
		})
	}
	return rules
}

// PlatformScore is the combined views + engagement of one platform.
type PlatformScore struct {
	Platform string
	Score    decimal.Decimal
}

type TargetingRecommendation struct {
	DealID               DealID
	Scores               []PlatformScore
	RecommendedPlatforms []string
}

// OptimizeCampaignTargeting ranks platforms by historical views plus
// engagement, descending (ties by name), and recommends the top five.
func OptimizeCampaignTargeting(deal Deal, history []PerformanceMetric) TargetingRecommendation {
	byPlatform := AggregateByPlatform(history)

	scores := make([]PlatformScore, 0, len(byPlatform))
	for platform, score := range byPlatform {
		scores = append(scores, PlatformScore{Platform: platform, Score: score})
	}
	sort.Slice(scores, func(i, j int) bool {
		if !scores[i].Score.Equal(scores[j].Score) {
			return scores[i].Score.GreaterThan(scores[j].Score)
		}
		return scores[i].Platform < scores[j].Platform
	})

	top := len(scores)
	if top > maxRecommendedPlatforms {
		top = maxRecommendedPlatforms
	}
	rec := TargetingRecommendation{
		DealID:               deal.ID,
		Scores:               scores,
		RecommendedPlatforms: make([]string, 0, top),
	}
	for _, s := range scores[:top] {
		rec.RecommendedPlatforms = append(rec.RecommendedPlatforms, s.Platform)
	}
	return rec
}
