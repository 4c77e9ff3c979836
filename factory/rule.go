/*
Package factory provides JSON to Go bonus rule conversion.

PURPOSE:
  Converts JSON bonus rule definitions into sponsorship.Rule variants and
  back. This is the validation edge: anything that reaches the engine has
  a known bonus_type, non-negative amounts and percentages in [0, 100].

JSON SCHEMA:
  {
    "id": "views-bonus",
    "name": "Views bonus",
    "bonus_type": "performance",
    "metric_type": "views",
    "threshold": "1000",
    "rate": "0.001",
    "cap": "500",
    "minimum_performance": "100"
  }

  milestone: "milestones": [{"target": "10000", "bonus": "200"}, ...]
  tiered:    "tiers": [{"min": "0", "max": "999", "rate": "0.01"}, ...]
  revenue_share: "percentage": "15"

  fixed and revenue_share accept an optional "metric_type" naming the
  metric minimum_performance is checked against (views when omitted).

  Numbers may be given as JSON numbers or strings.

FIELD OWNERSHIP:
  Each variant keeps only its own fields. Fields that do not apply to the
  bonus_type (e.g. "rate" on a milestone rule) are ignored on parse and
  never emitted by ToJSON.

USAGE:
  f := factory.NewRuleFactory()
  rule, err := f.ParseRule(jsonString)
  if errors.Is(err, sponsorship.ErrUnknownBonusType) { ... }

SEE ALSO:
  - sponsorship/rule.go: Rule variants
  - api/dto.go: Deal payloads embed BonusRuleJSON
*/
package factory

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/warp/sponsorship-engine/sponsorship"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// BonusRuleJSON is the wire representation of every rule variant.
type BonusRuleJSON struct {
	ID                 string           `json:"id,omitempty" validate:"omitempty,max=128"`
	Name               string           `json:"name,omitempty" validate:"omitempty,max=256"`
	BonusType          string           `json:"bonus_type" validate:"required"`
	MetricType         string           `json:"metric_type,omitempty"`
	BaseAmount         *decimal.Decimal `json:"base_amount,omitempty"`
	Threshold          *decimal.Decimal `json:"threshold,omitempty"`
	Rate               *decimal.Decimal `json:"rate,omitempty"`
	Percentage         *decimal.Decimal `json:"percentage,omitempty"`
	Cap                *decimal.Decimal `json:"cap,omitempty"`
	MinimumPerformance *decimal.Decimal `json:"minimum_performance,omitempty"`
	Milestones         []MilestoneJSON  `json:"milestones,omitempty" validate:"omitempty,dive"`
	Tiers              []TierJSON       `json:"tiers,omitempty" validate:"omitempty,dive"`
}

type MilestoneJSON struct {
	Target decimal.Decimal `json:"target"`
	Bonus  decimal.Decimal `json:"bonus"`
}

type TierJSON struct {
	Min   decimal.Decimal  `json:"min"`
	Max   *decimal.Decimal `json:"max,omitempty"`
	Rate  *decimal.Decimal `json:"rate,omitempty"`
	Bonus *decimal.Decimal `json:"bonus,omitempty"`
}

// =============================================================================
// RULE FACTORY
// =============================================================================

// RuleFactory converts JSON rules to Go variants. Safe for concurrent use.
type RuleFactory struct {
	validate *validator.Validate
}

func NewRuleFactory() *RuleFactory {
	return &RuleFactory{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// ParseRule parses a single JSON rule.
func (f *RuleFactory) ParseRule(jsonStr string) (sponsorship.Rule, error) {
	var rj BonusRuleJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return nil, fmt.Errorf("failed to parse rule JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// ParseRules parses a JSON array of rules.
func (f *RuleFactory) ParseRules(jsonStr string) ([]sponsorship.Rule, error) {
	var rjs []BonusRuleJSON
	if err := json.Unmarshal([]byte(jsonStr), &rjs); err != nil {
		return nil, fmt.Errorf("failed to parse rules JSON: %w", err)
	}
	return f.FromJSONList(rjs)
}

// FromJSONList converts every rule, failing on the first invalid one.
func (f *RuleFactory) FromJSONList(rjs []BonusRuleJSON) ([]sponsorship.Rule, error) {
	rules := make([]sponsorship.Rule, 0, len(rjs))
	for i, rj := range rjs {
		rule, err := f.FromJSON(rj)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// FromJSON validates rj and builds the matching variant.
func (f *RuleFactory) FromJSON(rj BonusRuleJSON) (sponsorship.Rule, error) {
	if err := f.validate.Struct(rj); err != nil {
		return nil, structError(sponsorship.RuleID(rj.ID), err)
	}

	v := ruleValidator{id: sponsorship.RuleID(rj.ID)}
	v.nonNegative("cap", rj.Cap)
	v.nonNegative("minimum_performance", rj.MinimumPerformance)

	base := sponsorship.RuleBase{
		ID:   sponsorship.RuleID(rj.ID),
		Name: rj.Name,
		Constraints: sponsorship.Constraints{
			MinimumPerformance: rj.MinimumPerformance,
			Cap:                rj.Cap,
		},
	}

	var rule sponsorship.Rule
	switch sponsorship.BonusType(rj.BonusType) {
	case sponsorship.BonusFixed:
		v.optionalMetric(rj.MetricType)
		v.nonNegative("base_amount", rj.BaseAmount)
		rule = sponsorship.FixedRule{
			RuleBase:   base,
			Metric:     sponsorship.MetricType(rj.MetricType),
			BaseAmount: rj.BaseAmount,
		}

	case sponsorship.BonusPerformance:
		v.metric(rj.MetricType)
		v.nonNegative("threshold", rj.Threshold)
		v.nonNegative("rate", rj.Rate)
		v.nonNegative("base_amount", rj.BaseAmount)
		rule = sponsorship.PerformanceRule{
			RuleBase:   base,
			Metric:     sponsorship.MetricType(rj.MetricType),
			Threshold:  rj.Threshold,
			Rate:       rj.Rate,
			BaseAmount: rj.BaseAmount,
		}

	case sponsorship.BonusMilestone:
		v.metric(rj.MetricType)
		if len(rj.Milestones) == 0 {
			v.fail("milestones", "must not be empty")
		}
		milestones := make([]sponsorship.Milestone, 0, len(rj.Milestones))
		for _, m := range rj.Milestones {
			v.nonNegativeValue("milestones.target", m.Target)
			v.nonNegativeValue("milestones.bonus", m.Bonus)
			milestones = append(milestones, sponsorship.Milestone{Target: m.Target, Bonus: m.Bonus})
		}
		rule = sponsorship.MilestoneRule{
			RuleBase:   base,
			Metric:     sponsorship.MetricType(rj.MetricType),
			Milestones: milestones,
		}

	case sponsorship.BonusRevenueShare:
		v.optionalMetric(rj.MetricType)
		v.percentage(rj.Percentage)
		rule = sponsorship.RevenueShareRule{
			RuleBase:   base,
			Metric:     sponsorship.MetricType(rj.MetricType),
			Percentage: rj.Percentage,
		}

	case sponsorship.BonusTiered:
		v.metric(rj.MetricType)
		if len(rj.Tiers) == 0 {
			v.fail("tiers", "must not be empty")
		}
		tiers := make([]sponsorship.RateTier, 0, len(rj.Tiers))
		for _, t := range rj.Tiers {
			v.nonNegativeValue("tiers.min", t.Min)
			v.nonNegative("tiers.rate", t.Rate)
			v.nonNegative("tiers.bonus", t.Bonus)
			if t.Max != nil && t.Max.LessThan(t.Min) {
				v.fail("tiers.max", "must not be below min")
			}
			tier := sponsorship.RateTier{Min: t.Min, Max: t.Max, Rate: t.Rate}
			if t.Bonus != nil {
				tier.Bonus = *t.Bonus
			}
			tiers = append(tiers, tier)
		}
		rule = sponsorship.TieredRule{
			RuleBase: base,
			Metric:   sponsorship.MetricType(rj.MetricType),
			Tiers:    tiers,
		}

	default:
		return nil, fmt.Errorf("%w: %q", sponsorship.ErrUnknownBonusType, rj.BonusType)
	}

	if v.err != nil {
		return nil, v.err
	}
	return rule, nil
}

// ToJSON converts a rule variant to its wire form.
func ToJSON(rule sponsorship.Rule) (BonusRuleJSON, error) {
	if rule == nil {
		return BonusRuleJSON{}, fmt.Errorf("%w: nil rule", sponsorship.ErrInvalidRule)
	}
	b := rule.Base()
	rj := BonusRuleJSON{
		ID:                 string(b.ID),
		Name:               b.Name,
		BonusType:          string(rule.BonusType()),
		Cap:                b.Constraints.Cap,
		MinimumPerformance: b.Constraints.MinimumPerformance,
	}

	switch r := rule.(type) {
	case sponsorship.FixedRule:
		rj.MetricType = string(r.Metric)
		rj.BaseAmount = r.BaseAmount
	case sponsorship.PerformanceRule:
		rj.MetricType = string(r.Metric)
		rj.Threshold = r.Threshold
		rj.Rate = r.Rate
		rj.BaseAmount = r.BaseAmount
	case sponsorship.MilestoneRule:
		rj.MetricType = string(r.Metric)
		for _, m := range r.Milestones {
			rj.Milestones = append(rj.Milestones, MilestoneJSON{Target: m.Target, Bonus: m.Bonus})
		}
	case sponsorship.RevenueShareRule:
		rj.MetricType = string(r.Metric)
		rj.Percentage = r.Percentage
	case sponsorship.TieredRule:
		rj.MetricType = string(r.Metric)
		for _, t := range r.Tiers {
			tj := TierJSON{Min: t.Min, Max: t.Max, Rate: t.Rate}
			if t.Rate == nil {
				bonus := t.Bonus
				tj.Bonus = &bonus
			}
			rj.Tiers = append(rj.Tiers, tj)
		}
	default:
		return BonusRuleJSON{}, fmt.Errorf("%w: %T", sponsorship.ErrUnknownBonusType, rule)
	}
	return rj, nil
}

// ToJSONList converts every rule.
func ToJSONList(rules []sponsorship.Rule) ([]BonusRuleJSON, error) {
	out := make([]BonusRuleJSON, 0, len(rules))
	for _, r := range rules {
		rj, err := ToJSON(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rj)
	}
	return out, nil
}

// =============================================================================
// VALIDATION HELPERS
// =============================================================================

// ruleValidator keeps the first field error it sees.
type ruleValidator struct {
	id  sponsorship.RuleID
	err error
}

func (v *ruleValidator) fail(field, reason string) {
	if v.err == nil {
		v.err = &sponsorship.RuleError{RuleID: v.id, Field: field, Reason: reason}
	}
}

func (v *ruleValidator) nonNegative(field string, d *decimal.Decimal) {
	if d != nil {
		v.nonNegativeValue(field, *d)
	}
}

func (v *ruleValidator) nonNegativeValue(field string, d decimal.Decimal) {
	if d.IsNegative() {
		v.fail(field, "must not be negative")
	}
}

func (v *ruleValidator) metric(m string) {
	if m == "" {
		v.fail("metric_type", "is required")
		return
	}
	if !sponsorship.MetricType(m).IsValid() {
		v.fail("metric_type", fmt.Sprintf("%q is not a known metric", m))
	}
}

// optionalMetric accepts an empty metric_type, which means views.
func (v *ruleValidator) optionalMetric(m string) {
	if m != "" {
		v.metric(m)
	}
}

var hundred = decimal.NewFromInt(100)

func (v *ruleValidator) percentage(p *decimal.Decimal) {
	if p == nil {
		return
	}
	if p.IsNegative() || p.GreaterThan(hundred) {
		v.fail("percentage", "must be within [0, 100]")
	}
}

// structError converts validator tag failures to a RuleError.
func structError(id sponsorship.RuleID, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &sponsorship.RuleError{RuleID: id, Field: fe.Field(), Reason: "failed " + fe.Tag()}
	}
	return fmt.Errorf("%w: %v", sponsorship.ErrInvalidRule, err)
}
