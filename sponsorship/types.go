/*
Package sponsorship provides the bonus calculation and campaign analytics engine.

PURPOSE:
  Given a sponsorship deal's configured bonus rules and a stream of
  time-stamped performance measurements, the engine computes what a
  content creator is owed, enforces minimums and caps, and derives
  campaign-level financial and performance analytics.

KEY CONCEPTS IN THIS FILE (types.go):
  - Sponsor: the paying party, ranked by Tier
  - Deal: base fee, bonus rules, KPI targets and a date range
  - PerformanceMetric: one append-only measurement (views, clicks, ...)
  - Payout: a disbursement tied to one or more calculations
  - Period: closed date interval [Start, End], day granularity

DESIGN PRINCIPLES:
  1. Purity: every engine entry point is a function of its inputs only
  2. Precision: money and measurements use decimal.Decimal
  3. Missing data is zero: an absent metric is never an error
  4. Closed rule set: bonus strategies are a sealed sum type (rule.go)

DATA FLOW:
  The collaborator layer (api, store) loads deal + metrics + payouts,
  passes them by value into the engine, and persists whatever the engine
  returns. The engine never performs I/O.

SEE ALSO:
  - rule.go: Bonus rule variants
  - calculator.go: Bonus calculation orchestrator
  - analytics.go: Campaign summary generator
  - recommend.go: Rule and targeting recommendations
*/
package sponsorship

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SponsorID string
type DealID string
type CreatorID string
type RuleID string
type CalculationID string
type PayoutID string
type MetricID string

// =============================================================================
// SPONSOR
// =============================================================================

// Tier ranks sponsors. Higher tiers unlock richer recommended rule sets.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Rank returns the tier's position in bronze < silver < gold < platinum.
// Unknown tiers rank below bronze.
func (t Tier) Rank() int {
	switch t {
	case TierBronze:
		return 1
	case TierSilver:
		return 2
	case TierGold:
		return 3
	case TierPlatinum:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether t ranks at or above other.
func (t Tier) AtLeast(other Tier) bool { return t.Rank() >= other.Rank() }

func (t Tier) IsValid() bool { return t.Rank() > 0 }

type Sponsor struct {
	ID          SponsorID
	Name        string
	Tier        Tier
	Budget      decimal.Decimal
	Preferences SponsorPreferences
	CreatedAt   time.Time
}

type SponsorPreferences struct {
	Platforms  []string
	Categories []string
}

// =============================================================================
// DEAL
// =============================================================================

type DealStatus string

const (
	DealDraft     DealStatus = "draft"
	DealPending   DealStatus = "pending"
	DealActive    DealStatus = "active"
	DealCompleted DealStatus = "completed"
	DealCancelled DealStatus = "cancelled"
)

// Deal is a sponsorship agreement between a sponsor and a content owner.
// The engine only reads Rules, KPITargets and Period.
type Deal struct {
	ID         DealID
	SponsorID  SponsorID
	CreatorID  CreatorID
	Title      string
	BaseFee    decimal.Decimal
	Currency   string
	Rules      []Rule
	Period     Period
	KPITargets map[string]decimal.Decimal
	Status     DealStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// =============================================================================
// PERFORMANCE METRICS
// =============================================================================

// MetricType identifies what a measurement counts.
type MetricType string

const (
	MetricViews       MetricType = "views"
	MetricDownloads   MetricType = "downloads"
	MetricStreams     MetricType = "streams"
	MetricEngagement  MetricType = "engagement"
	MetricClicks      MetricType = "clicks"
	MetricConversions MetricType = "conversions"
	MetricRevenue     MetricType = "revenue"
	MetricShares      MetricType = "shares"
	MetricComments    MetricType = "comments"
	MetricLikes       MetricType = "likes"
)

// AllMetricTypes lists every known metric type in a stable order.
var AllMetricTypes = []MetricType{
	MetricViews, MetricDownloads, MetricStreams, MetricEngagement, MetricClicks,
	MetricConversions, MetricRevenue, MetricShares, MetricComments, MetricLikes,
}

func (m MetricType) IsValid() bool {
	for _, t := range AllMetricTypes {
		if t == m {
			return true
		}
	}
	return false
}

// PerformanceMetric is a single append-only measurement.
type PerformanceMetric struct {
	ID         MetricID
	DealID     DealID
	Type       MetricType
	Value      decimal.Decimal
	MeasuredAt time.Time
	Platform   string // optional
}

// =============================================================================
// PAYOUTS
// =============================================================================

type PayoutType string

const (
	PayoutBaseFee   PayoutType = "base_fee"
	PayoutBonus     PayoutType = "bonus"
	PayoutMilestone PayoutType = "milestone"
	PayoutPenalty   PayoutType = "penalty"
)

func (p PayoutType) IsValid() bool {
	switch p {
	case PayoutBaseFee, PayoutBonus, PayoutMilestone, PayoutPenalty:
		return true
	}
	return false
}

type PayoutStatus string

const (
	PayoutScheduled PayoutStatus = "scheduled"
	PayoutPaid      PayoutStatus = "paid"
	PayoutFailed    PayoutStatus = "failed"
)

// Payout is a financial disbursement. Analytics only reads it.
type Payout struct {
	ID             PayoutID
	DealID         DealID
	Type           PayoutType
	Amount         decimal.Decimal
	Period         Period
	CalculationIDs []CalculationID
	Status         PayoutStatus
	CreatedAt      time.Time
}
