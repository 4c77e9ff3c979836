/*
calculator.go - Bonus calculation orchestrator

PURPOSE:
  Runs the metric aggregator once per request, then evaluates and
  constrains every rule attached to a deal. Produces one BonusCalculation
  per rule so callers can tell "evaluated, not met" from "not evaluated".

IDEMPOTENCY:
  The same deal, metrics and period always produce the same amounts,
  flags, statuses and IdempotencyKey. Only ID and CreatedAt are fresh.
  Stores deduplicate recomputations on IdempotencyKey.

CONCURRENCY:
  A Calculator has no mutable state. The ID generator and clock are
  injected and must themselves be safe for concurrent use (the defaults
  are). Concurrent calls for the same or different deals never interact.

USAGE:
  calc := sponsorship.NewCalculator()
  results := calc.CalculateBonus(deal, metrics, period)
  owed := sponsorship.Payable(results) // positive bonuses only

SEE ALSO:
  - evaluate.go: Strategy evaluation
  - constraints.go: Minimum performance and cap
  - api/scheduler.go: Settles ended deals using Payable results
*/
package sponsorship

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// calculationNamespace scopes the deterministic idempotency keys.
var calculationNamespace = uuid.MustParse("6f1c3a52-8d0e-4b7a-9c55-2e4f1d7b9a10")

// =============================================================================
// BONUS CALCULATION
// =============================================================================

// BonusCalculation is one evaluation of one rule over one period.
// It is never mutated; a recomputation produces a new record.
type BonusCalculation struct {
	ID             CalculationID
	IdempotencyKey string
	DealID         DealID
	RuleID         RuleID
	BonusType      BonusType
	Period         Period
	BaseMetrics    Totals
	BonusAmount    decimal.Decimal
	ThresholdMet   bool
	CapApplied     bool
	AppliedRules   []string
	Status         Status
	CreatedAt      time.Time
}

// IsPayable reports whether the calculation owes the creator anything.
func (c BonusCalculation) IsPayable() bool {
	return c.BonusAmount.IsPositive()
}

// Payable keeps only calculations with a positive bonus.
func Payable(calcs []BonusCalculation) []BonusCalculation {
	out := make([]BonusCalculation, 0, len(calcs))
	for _, c := range calcs {
		if c.IsPayable() {
			out = append(out, c)
		}
	}
	return out
}

// TotalBonus sums the bonus of every calculation.
func TotalBonus(calcs []BonusCalculation) decimal.Decimal {
	total := decimal.Zero
	for _, c := range calcs {
		total = total.Add(c.BonusAmount)
	}
	return total
}

// CalculationKey derives the idempotency key for a rule over a period.
// ruleRef is the rule ID, or its position when the rule has none.
func CalculationKey(dealID DealID, ruleRef string, period Period) string {
	name := fmt.Sprintf("%s|%s|%s|%s", dealID, ruleRef,
		period.Start.Format("2006-01-02"), period.End.Format("2006-01-02"))
	return uuid.NewSHA1(calculationNamespace, []byte(name)).String()
}

// =============================================================================
// CALCULATOR
// =============================================================================

type Calculator struct {
	now   func() time.Time
	newID func() CalculationID
}

type CalculatorOption func(*Calculator)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) CalculatorOption {
	return func(c *Calculator) { c.now = now }
}

// WithIDGenerator overrides the calculation ID source.
func WithIDGenerator(gen func() CalculationID) CalculatorOption {
	return func(c *Calculator) { c.newID = gen }
}

func NewCalculator(opts ...CalculatorOption) *Calculator {
	c := &Calculator{
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() CalculationID { return CalculationID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CalculateBonus evaluates every rule on the deal against metrics measured
// within period and returns one calculation per rule, in rule order.
// A rule that cannot be evaluated contributes a zero StatusInvalid result
// and does not affect the others.
func (c *Calculator) CalculateBonus(deal Deal, metrics []PerformanceMetric, period Period) []BonusCalculation {
	totals := AggregateMetrics(metrics, period)
	createdAt := c.now()

	results := make([]BonusCalculation, 0, len(deal.Rules))
	for i, rule := range deal.Rules {
		calc := BonusCalculation{
			ID:          c.newID(),
			DealID:      deal.ID,
			Period:      period,
			BaseMetrics: totals.Copy(),
			CreatedAt:   createdAt,
		}

		ruleRef := fmt.Sprintf("#%d", i)
		if rule != nil {
			calc.RuleID = rule.Base().ID
			calc.BonusType = rule.BonusType()
			if calc.RuleID != "" {
				ruleRef = string(calc.RuleID)
			}
		}
		calc.IdempotencyKey = CalculationKey(deal.ID, ruleRef, period)

		out := ApplyConstraints(rule, totals, Evaluate(rule, totals))
		calc.BonusAmount = out.BonusAmount
		calc.ThresholdMet = out.ThresholdMet
		calc.CapApplied = out.CapApplied
		calc.AppliedRules = out.AppliedRules
		calc.Status = out.Status

		results = append(results, calc)
	}
	return results
}
