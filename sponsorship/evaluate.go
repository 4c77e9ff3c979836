/*
evaluate.go - Bonus rule evaluator

PURPOSE:
  Computes the raw (pre-constraint) bonus for one rule against the
  aggregated metrics of a period. Evaluate is a pure function: the same
  rule and totals always produce the same Outcome.

STRATEGIES:
  fixed:         bonus = base_amount
  performance:   threshold gate, then value*rate, or base scaled by
                 1 + (value-threshold)/threshold (at most 5x), or base
  milestone:     sum of every milestone whose target is reached
                 (a metric with no measurements counts as 0)
  revenue_share: revenue * percentage / 100
  tiered:        first band (ascending min) containing value; value*rate
                 or the band's flat bonus

MILESTONE vs TIERED:
  Milestones accumulate; tiers select exactly one band. The two are
  deliberately different.

SEE ALSO:
  - constraints.go: Applied to the Outcome afterwards
  - calculator.go: Runs Evaluate + ApplyConstraints per rule
*/
package sponsorship

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// OUTCOME
// =============================================================================

// Status explains why a calculation produced the amount it did.
type Status string

const (
	StatusMet           Status = "met"            // positive bonus, uncapped
	StatusCapped        Status = "capped"         // bonus clamped to the cap
	StatusNotMet        Status = "not_met"        // evaluated, nothing earned
	StatusNotApplicable Status = "not_applicable" // required metric absent this period
	StatusInvalid       Status = "invalid"        // rule could not be evaluated
)

// Outcome is the result of evaluating one rule.
type Outcome struct {
	BonusAmount  decimal.Decimal
	ThresholdMet bool
	CapApplied   bool
	AppliedRules []string
	Status       Status
}

var (
	hundred       = decimal.NewFromInt(100)
	maxMultiplier = decimal.NewFromInt(5)
)

// =============================================================================
// EVALUATOR
// =============================================================================

// Evaluate dispatches on the rule variant. An unrecognized or nil rule
// yields a zero bonus with StatusInvalid instead of failing.
func Evaluate(rule Rule, totals Totals) Outcome {
	switch r := rule.(type) {
	case FixedRule:
		return evaluateFixed(r)
	case PerformanceRule:
		return evaluatePerformance(r, totals)
	case MilestoneRule:
		return evaluateMilestone(r, totals)
	case RevenueShareRule:
		return evaluateRevenueShare(r, totals)
	case TieredRule:
		return evaluateTiered(r, totals)
	default:
		return Outcome{BonusAmount: decimal.Zero, ThresholdMet: false, Status: StatusInvalid}
	}
}

func newOutcome() Outcome {
	return Outcome{BonusAmount: decimal.Zero, ThresholdMet: true, Status: StatusNotMet}
}

func evaluateFixed(r FixedRule) Outcome {
	out := newOutcome()
	if r.BaseAmount != nil {
		out.BonusAmount = *r.BaseAmount
	}
	return out
}

func evaluatePerformance(r PerformanceRule, totals Totals) Outcome {
	out := newOutcome()
	if r.Metric == "" || !totals.Has(r.Metric) {
		out.Status = StatusNotApplicable
		return out
	}
	value := totals.Get(r.Metric)

	if r.Threshold != nil && value.LessThan(*r.Threshold) {
		out.ThresholdMet = false
		return out
	}

	switch {
	case r.Rate != nil:
		out.BonusAmount = value.Mul(*r.Rate)
	case r.BaseAmount != nil && r.Threshold != nil:
		out.BonusAmount = r.BaseAmount.Mul(thresholdMultiplier(value, *r.Threshold))
	case r.BaseAmount != nil:
		out.BonusAmount = *r.BaseAmount
	}
	return out
}

// thresholdMultiplier is 1 + (value-threshold)/threshold, capped at 5.
// A zero threshold has no scale to measure against and yields 1.
func thresholdMultiplier(value, threshold decimal.Decimal) decimal.Decimal {
	if threshold.IsZero() {
		return decimal.NewFromInt(1)
	}
	m := decimal.NewFromInt(1).Add(value.Sub(threshold).Div(threshold))
	return decimal.Min(m, maxMultiplier)
}

// evaluateMilestone reads an absent metric as zero, so a zero target pays.
func evaluateMilestone(r MilestoneRule, totals Totals) Outcome {
	out := newOutcome()
	if r.Metric == "" {
		out.Status = StatusNotApplicable
		return out
	}
	value := totals.Get(r.Metric)

	for _, m := range r.Milestones {
		if value.GreaterThanOrEqual(m.Target) {
			out.BonusAmount = out.BonusAmount.Add(m.Bonus)
			out.AppliedRules = append(out.AppliedRules, "milestone:"+m.Target.String())
		}
	}
	return out
}

func evaluateRevenueShare(r RevenueShareRule, totals Totals) Outcome {
	out := newOutcome()
	if !totals.Has(MetricRevenue) {
		out.Status = StatusNotApplicable
		return out
	}
	revenue := totals.Get(MetricRevenue)
	if r.Percentage != nil && revenue.IsPositive() {
		out.BonusAmount = revenue.Mul(r.Percentage.Div(hundred))
	}
	return out
}

// evaluateTiered reads an absent metric as zero, landing in a floor band
// when one starts at 0.
func evaluateTiered(r TieredRule, totals Totals) Outcome {
	out := newOutcome()
	if r.Metric == "" {
		out.Status = StatusNotApplicable
		return out
	}
	value := totals.Get(r.Metric)

	tiers := make([]RateTier, len(r.Tiers))
	copy(tiers, r.Tiers)
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].Min.LessThan(tiers[j].Min)
	})

	for _, t := range tiers {
		if value.LessThan(t.Min) {
			continue
		}
		if t.Max != nil && value.GreaterThan(*t.Max) {
			continue
		}
		if t.Rate != nil {
			out.BonusAmount = value.Mul(*t.Rate)
		} else {
			out.BonusAmount = t.Bonus
		}
		out.AppliedRules = append(out.AppliedRules, tierLabel(t))
		break
	}
	return out
}

func tierLabel(t RateTier) string {
	upper := "inf"
	if t.Max != nil {
		upper = t.Max.String()
	}
	return fmt.Sprintf("tier:%s-%s", t.Min.String(), upper)
}
