/*
store.go - Persistence interfaces for the collaborator layer

PURPOSE:
  The engine never touches storage. These interfaces describe what the
  API layer needs from a store so that sqlite, in-memory and future
  implementations are interchangeable.

APPEND-ONLY RECORDS:
  Metrics and calculations are never updated or deleted. A recomputed
  calculation with an existing IdempotencyKey is rejected with
  ErrDuplicateCalculation, which callers treat as success.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Document-style SQLite store
  - sponsorship/store/memory.go: In-memory store for tests and dev

SEE ALSO:
  - store/redis/cache.go: SummaryCache implementation
*/
package sponsorship

import (
	"context"
	"time"
)

// =============================================================================
// STORE INTERFACES
// =============================================================================

type SponsorStore interface {
	SaveSponsor(ctx context.Context, s Sponsor) error
	GetSponsor(ctx context.Context, id SponsorID) (*Sponsor, error)
	ListSponsors(ctx context.Context) ([]Sponsor, error)
}

type DealStore interface {
	SaveDeal(ctx context.Context, d Deal) error
	GetDeal(ctx context.Context, id DealID) (*Deal, error)
	ListDeals(ctx context.Context, filter DealFilter) ([]Deal, error)
}

// DealFilter narrows ListDeals. Zero values match everything.
type DealFilter struct {
	SponsorID SponsorID
	CreatorID CreatorID
	Status    DealStatus
}

// MetricStore is append-only.
type MetricStore interface {
	AppendMetrics(ctx context.Context, metrics []PerformanceMetric) error
	LoadMetrics(ctx context.Context, dealID DealID) ([]PerformanceMetric, error)
	LoadMetricsBySponsor(ctx context.Context, sponsorID SponsorID) ([]PerformanceMetric, error)
}

type PayoutStore interface {
	SavePayout(ctx context.Context, p Payout) error
	LoadPayouts(ctx context.Context, dealID DealID) ([]Payout, error)
}

// CalculationStore is append-only and keyed by IdempotencyKey.
type CalculationStore interface {
	AppendCalculation(ctx context.Context, c BonusCalculation) error
	LoadCalculations(ctx context.Context, dealID DealID) ([]BonusCalculation, error)
}

// SettlementStore records automated settlement runs for audit.
type SettlementStore interface {
	SaveSettlementRun(ctx context.Context, r SettlementRun) error
	ListSettlementRuns(ctx context.Context, status string) ([]SettlementRun, error)
	IsSettled(ctx context.Context, dealID DealID, periodEnd time.Time) (bool, error)
}

// Store is the full persistence surface used by the API.
type Store interface {
	SponsorStore
	DealStore
	MetricStore
	PayoutStore
	CalculationStore
	SettlementStore
}

// =============================================================================
// SUMMARY CACHE
// =============================================================================

// SummaryCache holds generated campaign summaries.
//
// Invalidation policy: entries expire after the implementation's TTL and
// every write touching a deal (deal, metrics, payouts) must call
// Invalidate for that deal.
type SummaryCache interface {
	Get(ctx context.Context, dealID DealID, period Period) (*CampaignSummary, bool)
	Set(ctx context.Context, summary CampaignSummary) error
	Invalidate(ctx context.Context, dealID DealID) error
}

// NopCache caches nothing.
type NopCache struct{}

func (NopCache) Get(context.Context, DealID, Period) (*CampaignSummary, bool) { return nil, false }
func (NopCache) Set(context.Context, CampaignSummary) error                   { return nil }
func (NopCache) Invalidate(context.Context, DealID) error                     { return nil }

// =============================================================================
// SETTLEMENT RUNS - audit trail of automated settlements
// =============================================================================

type SettlementRun struct {
	ID           string
	DealID       DealID
	PeriodEnd    time.Time
	Status       string // "completed", "failed"
	Calculations int
	TotalBonus   string
	Error        string
	RunAt        time.Time
}
