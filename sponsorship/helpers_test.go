package sponsorship_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/sponsorship-engine/sponsorship"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func metric(typ sponsorship.MetricType, value string, at time.Time) sponsorship.PerformanceMetric {
	return sponsorship.PerformanceMetric{
		DealID:     "deal-1",
		Type:       typ,
		Value:      dec(value),
		MeasuredAt: at,
	}
}

func january() sponsorship.Period {
	return sponsorship.MustPeriod(date(2025, 1, 1), date(2025, 1, 31))
}

func dealWith(rules ...sponsorship.Rule) sponsorship.Deal {
	return sponsorship.Deal{
		ID:        "deal-1",
		SponsorID: "sponsor-1",
		CreatorID: "creator-1",
		BaseFee:   dec("1000"),
		Rules:     rules,
		Period:    january(),
		Status:    sponsorship.DealActive,
	}
}

func totals(pairs ...any) sponsorship.Totals {
	t := make(sponsorship.Totals)
	for i := 0; i+1 < len(pairs); i += 2 {
		t[pairs[i].(sponsorship.MetricType)] = dec(pairs[i+1].(string))
	}
	return t
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}
