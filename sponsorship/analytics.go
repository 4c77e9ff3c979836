/*
analytics.go - Campaign analytics generator

PURPOSE:
  Produces a CampaignSummary for a deal over a period: metric totals,
  spend breakdown from payouts, derived ratios, KPI achievement and a
  letter grade. The summary is fully derived and can be regenerated at
  any time.

STEPS:
  1. Aggregate metrics over the period
  2. Sum payouts overlapping the period into base fees vs bonus payments
  3. Derive ratios; a zero denominator leaves the ratio at 0
  4. KPI achievement = actual / target * 100, capped at 200
  5. Average achievement -> grade A (>=90) B (>=80) C (>=70) D (>=60) F

RATIOS:
  cpm             = spend / views * 1000
  cpc             = spend / clicks
  cpa             = spend / conversions
  roi             = (revenue - spend) / spend * 100
  engagement_rate = engagement / views * 100
  conversion_rate = conversions / clicks * 100

SEE ALSO:
  - aggregate.go: Metric totals
  - api/handlers.go: Summary endpoint and cache
*/
package sponsorship

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SUMMARY TYPES
// =============================================================================

type Grade string

const (
	GradeA    Grade = "A"
	GradeB    Grade = "B"
	GradeC    Grade = "C"
	GradeD    Grade = "D"
	GradeF    Grade = "F"
	GradeNone Grade = "N/A" // deal has no KPI targets
)

// MetricSummary holds the period totals a campaign is judged on.
type MetricSummary struct {
	Views       decimal.Decimal
	Downloads   decimal.Decimal
	Streams     decimal.Decimal
	Engagement  decimal.Decimal
	Clicks      decimal.Decimal
	Conversions decimal.Decimal
	Revenue     decimal.Decimal
}

// SpendBreakdown splits payouts by type. Penalties are reported but are
// not part of TotalSpend.
type SpendBreakdown struct {
	BaseFees              decimal.Decimal
	BonusPayments         decimal.Decimal
	Penalties             decimal.Decimal
	TotalSpend            decimal.Decimal
	AverageBonusPerPeriod decimal.Decimal
}

type Ratios struct {
	CPM            decimal.Decimal
	CPC            decimal.Decimal
	CPA            decimal.Decimal
	ROI            decimal.Decimal
	EngagementRate decimal.Decimal
	ConversionRate decimal.Decimal
}

type CampaignSummary struct {
	DealID         DealID
	Period         Period
	Metrics        MetricSummary
	Spend          SpendBreakdown
	Ratios         Ratios
	KPIAchievement map[string]decimal.Decimal
	OverallScore   decimal.Decimal
	Grade          Grade
	GeneratedAt    time.Time
}

var (
	thousand         = decimal.NewFromInt(1000)
	maxAchievement   = decimal.NewFromInt(200)
	daysPerBonusTerm = 30
	ratioPlaces      = int32(4)
	percentPlaces    = int32(2)
)

// =============================================================================
// GENERATOR
// =============================================================================

// GenerateCampaignSummary derives the campaign summary for deal over period.
func (c *Calculator) GenerateCampaignSummary(deal Deal, metrics []PerformanceMetric, payouts []Payout, period Period) CampaignSummary {
	totals := AggregateMetrics(metrics, period)

	summary := CampaignSummary{
		DealID: deal.ID,
		Period: period,
		Metrics: MetricSummary{
			Views:       totals.Get(MetricViews),
			Downloads:   totals.Get(MetricDownloads),
			Streams:     totals.Get(MetricStreams),
			Engagement:  totals.Get(MetricEngagement),
			Clicks:      totals.Get(MetricClicks),
			Conversions: totals.Get(MetricConversions),
			Revenue:     totals.Get(MetricRevenue),
		},
		Spend:       SummarizeSpend(payouts, period),
		GeneratedAt: c.now(),
	}
	summary.Ratios = DeriveRatios(summary.Metrics, summary.Spend.TotalSpend)
	summary.KPIAchievement, summary.OverallScore = KPIAchievement(deal.KPITargets, totals, summary.Ratios)
	summary.Grade = GradeFor(summary.OverallScore, len(summary.KPIAchievement))
	return summary
}

// SummarizeSpend sums payouts overlapping period by type. Failed payouts
// never left the account and are skipped.
func SummarizeSpend(payouts []Payout, period Period) SpendBreakdown {
	var s SpendBreakdown
	for _, p := range payouts {
		if p.Status == PayoutFailed || !payoutPeriod(p).Overlaps(period) {
			continue
		}
		switch p.Type {
		case PayoutBaseFee:
			s.BaseFees = s.BaseFees.Add(p.Amount)
		case PayoutBonus, PayoutMilestone:
			s.BonusPayments = s.BonusPayments.Add(p.Amount)
		case PayoutPenalty:
			s.Penalties = s.Penalties.Add(p.Amount)
		}
	}
	s.TotalSpend = s.BaseFees.Add(s.BonusPayments)

	terms := period.Days() / daysPerBonusTerm
	if terms < 1 {
		terms = 1
	}
	s.AverageBonusPerPeriod = s.BonusPayments.Div(decimal.NewFromInt(int64(terms))).Round(percentPlaces)
	return s
}

// payoutPeriod falls back to the creation day for payouts recorded
// without an explicit period.
func payoutPeriod(p Payout) Period {
	if p.Period.IsZero() {
		return Period{Start: Day(p.CreatedAt), End: Day(p.CreatedAt)}
	}
	return p.Period
}

// DeriveRatios computes the cost and rate ratios from totals and spend.
func DeriveRatios(m MetricSummary, spend decimal.Decimal) Ratios {
	var r Ratios
	r.CPM = safeDiv(spend, m.Views).Mul(thousand).Round(ratioPlaces)
	r.CPC = safeDiv(spend, m.Clicks).Round(ratioPlaces)
	r.CPA = safeDiv(spend, m.Conversions).Round(ratioPlaces)
	r.ROI = safeDiv(m.Revenue.Sub(spend), spend).Mul(hundred).Round(ratioPlaces)
	r.EngagementRate = safeDiv(m.Engagement, m.Views).Mul(hundred).Round(ratioPlaces)
	r.ConversionRate = safeDiv(m.Conversions, m.Clicks).Mul(hundred).Round(ratioPlaces)
	return r
}

// KPIAchievement scores each target as actual/target*100, capped at 200,
// and returns the per-KPI map plus the average.
//
// A KPI name resolves to a metric total (e.g. "views") or a derived rate
// ("engagement_rate", "conversion_rate", "roi"). Unknown names score 0.
func KPIAchievement(targets map[string]decimal.Decimal, totals Totals, ratios Ratios) (map[string]decimal.Decimal, decimal.Decimal) {
	achievement := make(map[string]decimal.Decimal, len(targets))
	if len(targets) == 0 {
		return achievement, decimal.Zero
	}

	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)

	sum := decimal.Zero
	for _, name := range names {
		actual := kpiActual(name, totals, ratios)
		pct := safeDiv(actual, targets[name]).Mul(hundred)
		pct = decimal.Min(pct, maxAchievement).Round(percentPlaces)
		achievement[name] = pct
		sum = sum.Add(pct)
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(names)))).Round(percentPlaces)
	return achievement, avg
}

func kpiActual(name string, totals Totals, ratios Ratios) decimal.Decimal {
	switch name {
	case "engagement_rate":
		return ratios.EngagementRate
	case "conversion_rate":
		return ratios.ConversionRate
	case "roi":
		return ratios.ROI
	}
	return totals.Get(MetricType(name))
}

// GradeFor maps an average achievement to a letter grade.
func GradeFor(score decimal.Decimal, kpiCount int) Grade {
	if kpiCount == 0 {
		return GradeNone
	}
	switch {
	case score.GreaterThanOrEqual(decimal.NewFromInt(90)):
		return GradeA
	case score.GreaterThanOrEqual(decimal.NewFromInt(80)):
		return GradeB
	case score.GreaterThanOrEqual(decimal.NewFromInt(70)):
		return GradeC
	case score.GreaterThanOrEqual(decimal.NewFromInt(60)):
		return GradeD
	default:
		return GradeF
	}
}

// safeDiv returns 0 when the denominator is zero or negative.
func safeDiv(num, den decimal.Decimal) decimal.Decimal {
	if !den.IsPositive() {
		return decimal.Zero
	}
	return num.Div(den)
}
