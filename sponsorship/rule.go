/*
rule.go - Bonus rule variants

PURPOSE:
  A bonus rule is a configured strategy for computing a supplemental
  payment on top of a deal's base fee. Each strategy is its own Go type
  carrying only the fields it needs; the Rule interface is sealed so the
  evaluator's type switch is the single dispatch point.

VARIANTS:
  FixedRule:        flat amount, no metric dependency
  PerformanceRule:  rate per unit, or base amount scaled past a threshold
  MilestoneRule:    sums the bonus of every milestone reached
  RevenueShareRule: percentage of the revenue metric
  TieredRule:       picks exactly one band by value, rate or flat bonus

OPTIONAL FIELDS:
  Optional numerics are *decimal.Decimal. nil means "not configured" and
  is a no-op. A configured zero is a real value: a zero cap clamps every
  bonus to zero, a zero threshold is always met.

SEE ALSO:
  - evaluate.go: Strategy dispatch
  - constraints.go: Minimum performance and cap
  - factory/rule.go: JSON <-> Rule conversion and validation
*/
package sponsorship

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// BONUS TYPE
// =============================================================================

type BonusType string

const (
	BonusFixed        BonusType = "fixed"
	BonusPerformance  BonusType = "performance"
	BonusMilestone    BonusType = "milestone"
	BonusRevenueShare BonusType = "revenue_share"
	BonusTiered       BonusType = "tiered"
)

// =============================================================================
// RULE - Sealed sum type
// =============================================================================

// Rule is implemented only by the variants in this file.
type Rule interface {
	Base() RuleBase
	BonusType() BonusType

	// PrimaryMetric is the metric that minimum performance is checked
	// against. Rules without a metric type default to views.
	PrimaryMetric() MetricType

	sealed()
}

// RuleBase holds the fields shared by every variant.
type RuleBase struct {
	ID          RuleID
	Name        string
	Constraints Constraints
}

// Constraints are applied after strategy evaluation, minimum first.
type Constraints struct {
	MinimumPerformance *decimal.Decimal
	Cap                *decimal.Decimal
}

// FixedRule pays a flat amount. Metric only selects what minimum
// performance is checked against.
type FixedRule struct {
	RuleBase
	Metric     MetricType
	BaseAmount *decimal.Decimal
}

type PerformanceRule struct {
	RuleBase
	Metric     MetricType
	Threshold  *decimal.Decimal
	Rate       *decimal.Decimal
	BaseAmount *decimal.Decimal
}

type Milestone struct {
	Target decimal.Decimal
	Bonus  decimal.Decimal
}

type MilestoneRule struct {
	RuleBase
	Metric     MetricType
	Milestones []Milestone
}

// RevenueShareRule always pays from the revenue metric. Metric only
// selects what minimum performance is checked against.
type RevenueShareRule struct {
	RuleBase
	Metric     MetricType
	Percentage *decimal.Decimal // [0, 100]
}

// RateTier is one contiguous band. A nil Max is unbounded. When Rate is
// set the bonus is value*Rate, otherwise the flat Bonus.
type RateTier struct {
	Min   decimal.Decimal
	Max   *decimal.Decimal
	Rate  *decimal.Decimal
	Bonus decimal.Decimal
}

type TieredRule struct {
	RuleBase
	Metric MetricType
	Tiers  []RateTier
}

func (r FixedRule) Base() RuleBase        { return r.RuleBase }
func (r PerformanceRule) Base() RuleBase  { return r.RuleBase }
func (r MilestoneRule) Base() RuleBase    { return r.RuleBase }
func (r RevenueShareRule) Base() RuleBase { return r.RuleBase }
func (r TieredRule) Base() RuleBase       { return r.RuleBase }

func (FixedRule) BonusType() BonusType        { return BonusFixed }
func (PerformanceRule) BonusType() BonusType  { return BonusPerformance }
func (MilestoneRule) BonusType() BonusType    { return BonusMilestone }
func (RevenueShareRule) BonusType() BonusType { return BonusRevenueShare }
func (TieredRule) BonusType() BonusType       { return BonusTiered }

func (r FixedRule) PrimaryMetric() MetricType        { return orViews(r.Metric) }
func (r PerformanceRule) PrimaryMetric() MetricType  { return orViews(r.Metric) }
func (r MilestoneRule) PrimaryMetric() MetricType    { return orViews(r.Metric) }
func (r RevenueShareRule) PrimaryMetric() MetricType { return orViews(r.Metric) }
func (r TieredRule) PrimaryMetric() MetricType       { return orViews(r.Metric) }

func (FixedRule) sealed()        {}
func (PerformanceRule) sealed()  {}
func (MilestoneRule) sealed()    {}
func (RevenueShareRule) sealed() {}
func (TieredRule) sealed()       {}

func orViews(m MetricType) MetricType {
	if m == "" {
		return MetricViews
	}
	return m
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

// Dec returns a pointer to the decimal value of v, for optional fields.
func Dec(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

// NewFixedRule creates a flat bonus rule.
func NewFixedRule(id RuleID, amount decimal.Decimal) FixedRule {
	return FixedRule{RuleBase: RuleBase{ID: id}, BaseAmount: &amount}
}

// NewRateRule creates a per-unit performance rule: bonus = value * rate.
func NewRateRule(id RuleID, metric MetricType, rate decimal.Decimal) PerformanceRule {
	return PerformanceRule{RuleBase: RuleBase{ID: id}, Metric: metric, Rate: &rate}
}

// NewThresholdRule creates a performance rule paying base scaled by how
// far the metric exceeds the threshold (multiplier capped at 5x).
func NewThresholdRule(id RuleID, metric MetricType, threshold, base decimal.Decimal) PerformanceRule {
	return PerformanceRule{RuleBase: RuleBase{ID: id}, Metric: metric, Threshold: &threshold, BaseAmount: &base}
}

func NewMilestoneRule(id RuleID, metric MetricType, milestones ...Milestone) MilestoneRule {
	return MilestoneRule{RuleBase: RuleBase{ID: id}, Metric: metric, Milestones: milestones}
}

func NewRevenueShareRule(id RuleID, percentage decimal.Decimal) RevenueShareRule {
	return RevenueShareRule{RuleBase: RuleBase{ID: id}, Percentage: &percentage}
}

func NewTieredRule(id RuleID, metric MetricType, tiers ...RateTier) TieredRule {
	return TieredRule{RuleBase: RuleBase{ID: id}, Metric: metric, Tiers: tiers}
}

// WithConstraints returns a copy of rule with the given constraints.
func WithConstraints(rule Rule, c Constraints) Rule {
	switch r := rule.(type) {
	case FixedRule:
		r.Constraints = c
		return r
	case PerformanceRule:
		r.Constraints = c
		return r
	case MilestoneRule:
		r.Constraints = c
		return r
	case RevenueShareRule:
		r.Constraints = c
		return r
	case TieredRule:
		r.Constraints = c
		return r
	}
	return rule
}
