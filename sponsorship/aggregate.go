package sponsorship

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// METRIC AGGREGATOR
// =============================================================================

// Totals maps a metric type to the sum of its measurements over a period.
// A missing key reads as zero everywhere downstream.
type Totals map[MetricType]decimal.Decimal

// Get returns the total for m, or zero if nothing was recorded.
func (t Totals) Get(m MetricType) decimal.Decimal {
	if v, ok := t[m]; ok {
		return v
	}
	return decimal.Zero
}

// Has reports whether at least one measurement of m was aggregated.
func (t Totals) Has(m MetricType) bool {
	_, ok := t[m]
	return ok
}

// Copy returns an independent copy, safe to hand to a caller.
func (t Totals) Copy() Totals {
	out := make(Totals, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// AggregateMetrics sums metric values by type for measurements taken
// within period (inclusive on both ends). Out-of-period measurements are
// skipped; they are not an error.
func AggregateMetrics(metrics []PerformanceMetric, period Period) Totals {
	totals := make(Totals)
	for _, m := range metrics {
		if !period.Contains(m.MeasuredAt) {
			continue
		}
		totals[m.Type] = totals.Get(m.Type).Add(m.Value)
	}
	return totals
}

// AggregateByPlatform sums views and engagement per platform across every
// measurement given. Measurements without a platform are ignored.
func AggregateByPlatform(metrics []PerformanceMetric) map[string]decimal.Decimal {
	scores := make(map[string]decimal.Decimal)
	for _, m := range metrics {
		if m.Platform == "" {
			continue
		}
		if m.Type != MetricViews && m.Type != MetricEngagement {
			continue
		}
		scores[m.Platform] = scores[m.Platform].Add(m.Value)
	}
	return scores
}
