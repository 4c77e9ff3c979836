// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/sponsorship-engine/sponsorship"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	sponsors     map[sponsorship.SponsorID]sponsorship.Sponsor
	deals        map[sponsorship.DealID]sponsorship.Deal
	metrics      map[sponsorship.DealID][]sponsorship.PerformanceMetric
	payouts      map[sponsorship.DealID][]sponsorship.Payout
	calculations map[sponsorship.DealID][]sponsorship.BonusCalculation
	idempotency  map[string]bool
	runs         []sponsorship.SettlementRun
}

var _ sponsorship.Store = (*Memory)(nil)

func NewMemory() *Memory {
	m := &Memory{}
	m.reset()
	return m
}

// Reset drops every record.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return nil
}

func (m *Memory) reset() {
	m.sponsors = make(map[sponsorship.SponsorID]sponsorship.Sponsor)
	m.deals = make(map[sponsorship.DealID]sponsorship.Deal)
	m.metrics = make(map[sponsorship.DealID][]sponsorship.PerformanceMetric)
	m.payouts = make(map[sponsorship.DealID][]sponsorship.Payout)
	m.calculations = make(map[sponsorship.DealID][]sponsorship.BonusCalculation)
	m.idempotency = make(map[string]bool)
	m.runs = nil
}

// =============================================================================
// SPONSORS & DEALS
// =============================================================================

func (m *Memory) SaveSponsor(_ context.Context, s sponsorship.Sponsor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sponsors[s.ID] = s
	return nil
}

func (m *Memory) GetSponsor(_ context.Context, id sponsorship.SponsorID) (*sponsorship.Sponsor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sponsors[id]
	if !ok {
		return nil, sponsorship.ErrSponsorNotFound
	}
	return &s, nil
}

func (m *Memory) ListSponsors(_ context.Context) ([]sponsorship.Sponsor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]sponsorship.Sponsor, 0, len(m.sponsors))
	for _, s := range m.sponsors {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) SaveDeal(_ context.Context, d sponsorship.Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deals[d.ID] = d
	return nil
}

func (m *Memory) GetDeal(_ context.Context, id sponsorship.DealID) (*sponsorship.Deal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deals[id]
	if !ok {
		return nil, sponsorship.ErrDealNotFound
	}
	return &d, nil
}

func (m *Memory) ListDeals(_ context.Context, filter sponsorship.DealFilter) ([]sponsorship.Deal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []sponsorship.Deal
	for _, d := range m.deals {
		if filter.SponsorID != "" && d.SponsorID != filter.SponsorID {
			continue
		}
		if filter.CreatorID != "" && d.CreatorID != filter.CreatorID {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// METRICS & PAYOUTS
// =============================================================================

// AppendMetrics adds measurements. Append-only.
func (m *Memory) AppendMetrics(_ context.Context, metrics []sponsorship.PerformanceMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pm := range metrics {
		txs := m.metrics[pm.DealID]

		// Keep each deal's metrics ordered by measurement time
		i := sort.Search(len(txs), func(i int) bool {
			return txs[i].MeasuredAt.After(pm.MeasuredAt)
		})
		txs = append(txs, sponsorship.PerformanceMetric{})
		copy(txs[i+1:], txs[i:])
		txs[i] = pm
		m.metrics[pm.DealID] = txs
	}
	return nil
}

func (m *Memory) LoadMetrics(_ context.Context, dealID sponsorship.DealID) ([]sponsorship.PerformanceMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]sponsorship.PerformanceMetric, len(m.metrics[dealID]))
	copy(result, m.metrics[dealID])
	return result, nil
}

func (m *Memory) LoadMetricsBySponsor(_ context.Context, sponsorID sponsorship.SponsorID) ([]sponsorship.PerformanceMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []sponsorship.PerformanceMetric
	for id, d := range m.deals {
		if d.SponsorID == sponsorID {
			result = append(result, m.metrics[id]...)
		}
	}
	return result, nil
}

// SavePayout inserts a payout or replaces the one with the same ID.
func (m *Memory) SavePayout(_ context.Context, p sponsorship.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.payouts[p.DealID] {
		if existing.ID == p.ID {
			m.payouts[p.DealID][i] = p
			return nil
		}
	}
	m.payouts[p.DealID] = append(m.payouts[p.DealID], p)
	return nil
}

func (m *Memory) LoadPayouts(_ context.Context, dealID sponsorship.DealID) ([]sponsorship.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]sponsorship.Payout, len(m.payouts[dealID]))
	copy(result, m.payouts[dealID])
	return result, nil
}

// =============================================================================
// CALCULATIONS
// =============================================================================

// AppendCalculation stores a calculation once per idempotency key.
func (m *Memory) AppendCalculation(_ context.Context, c sponsorship.BonusCalculation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.IdempotencyKey != "" && m.idempotency[c.IdempotencyKey] {
		return sponsorship.ErrDuplicateCalculation
	}
	m.calculations[c.DealID] = append(m.calculations[c.DealID], c)
	if c.IdempotencyKey != "" {
		m.idempotency[c.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) LoadCalculations(_ context.Context, dealID sponsorship.DealID) ([]sponsorship.BonusCalculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]sponsorship.BonusCalculation, len(m.calculations[dealID]))
	copy(result, m.calculations[dealID])
	return result, nil
}

// =============================================================================
// SETTLEMENT RUNS
// =============================================================================

func (m *Memory) SaveSettlementRun(_ context.Context, r sponsorship.SettlementRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	return nil
}

func (m *Memory) ListSettlementRuns(_ context.Context, status string) ([]sponsorship.SettlementRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []sponsorship.SettlementRun
	for i := len(m.runs) - 1; i >= 0; i-- {
		if status == "" || m.runs[i].Status == status {
			result = append(result, m.runs[i])
		}
	}
	return result, nil
}

func (m *Memory) IsSettled(_ context.Context, dealID sponsorship.DealID, periodEnd time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	day := sponsorship.Day(periodEnd)
	for _, r := range m.runs {
		if r.DealID == dealID && r.Status == "completed" && sponsorship.Day(r.PeriodEnd).Equal(day) {
			return true, nil
		}
	}
	return false, nil
}
