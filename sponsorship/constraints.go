package sponsorship

import "github.com/shopspring/decimal"

// =============================================================================
// CONSTRAINT APPLIER
// =============================================================================

// ApplyConstraints enforces the rule's constraints on a raw outcome, in order:
//
//  1. Minimum performance: the rule's primary metric (views by default)
//     must reach the minimum, otherwise the bonus is zeroed and the
//     threshold marked unmet, overriding whatever was computed.
//  2. Cap: a bonus above the cap is clamped to it.
//
// Status is finalized here from the constrained amount.
func ApplyConstraints(rule Rule, totals Totals, out Outcome) Outcome {
	if rule == nil || out.Status == StatusInvalid {
		return out
	}
	c := rule.Base().Constraints

	if c.MinimumPerformance != nil {
		if totals.Get(rule.PrimaryMetric()).LessThan(*c.MinimumPerformance) {
			out.ThresholdMet = false
			out.BonusAmount = decimal.Zero
		}
	}

	if c.Cap != nil && out.BonusAmount.GreaterThan(*c.Cap) {
		out.BonusAmount = *c.Cap
		out.CapApplied = true
	}

	out.Status = finalStatus(out)
	return out
}

func finalStatus(out Outcome) Status {
	switch {
	case out.Status == StatusNotApplicable:
		return StatusNotApplicable
	case out.CapApplied:
		return StatusCapped
	case out.BonusAmount.IsPositive() && out.ThresholdMet:
		return StatusMet
	default:
		return StatusNotMet
	}
}
