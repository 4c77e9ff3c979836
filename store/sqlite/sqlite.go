/*
Package sqlite provides a SQLite-backed implementation of sponsorship.Store.

PURPOSE:
  Persists sponsors, deals, metrics, payouts, bonus calculations and
  settlement runs. Deals keep their bonus rules as a JSON document in the
  factory wire format so rule variants round-trip without a table per
  variant.

APPEND-ONLY ENFORCEMENT:
  - metrics:      INSERT only, never updated
  - calculations: INSERT only, UNIQUE(idempotency_key); a repeated key
                  returns sponsorship.ErrDuplicateCalculation
  Payouts are upserted by ID so their status can move scheduled -> paid.

KEY TABLES:
  sponsors, deals:  Documents keyed by ID (upsert)
  metrics:          Measurements, indexed by (deal_id, measured_at)
  payouts:          Disbursements, indexed by deal_id
  calculations:     Bonus calculation audit trail
  settlement_runs:  Automated settlement history

DECIMALS:
  Money and metric values are stored as TEXT (decimal.String) and parsed
  back with decimal.NewFromString, never through float64.

WAL MODE:
  Opened with WAL journaling: readers don't block the single writer.

USAGE:
  store, err := sqlite.New("./data/sponsorship.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - sponsorship/store.go: Interface definitions
  - sponsorship/store/memory.go: In-memory implementation for testing
  - factory/rule.go: Rule JSON format stored in deals.rules_json
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/sponsorship-engine/factory"
	"github.com/warp/sponsorship-engine/sponsorship"
)

// Store implements sponsorship.Store using SQLite.
type Store struct {
	db    *sql.DB
	mu    sync.RWMutex
	rules *factory.RuleFactory
}

var _ sponsorship.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each :memory: connection is its own database
	db.SetMaxOpenConns(1)

	store := &Store{db: db, rules: factory.NewRuleFactory()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sponsors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		tier TEXT NOT NULL,
		budget TEXT NOT NULL,
		preferences_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS deals (
		id TEXT PRIMARY KEY,
		sponsor_id TEXT NOT NULL,
		creator_id TEXT NOT NULL,
		title TEXT,
		base_fee TEXT NOT NULL,
		currency TEXT,
		rules_json TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		kpi_json TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deals_sponsor ON deals(sponsor_id);
	CREATE INDEX IF NOT EXISTS idx_deals_status ON deals(status);

	-- Metrics (append-only)
	CREATE TABLE IF NOT EXISTS metrics (
		id TEXT PRIMARY KEY,
		deal_id TEXT NOT NULL,
		metric_type TEXT NOT NULL,
		value TEXT NOT NULL,
		measured_at TEXT NOT NULL,
		platform TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_metrics_deal_measured
		ON metrics(deal_id, measured_at);

	CREATE TABLE IF NOT EXISTS payouts (
		id TEXT PRIMARY KEY,
		deal_id TEXT NOT NULL,
		payout_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		period_start TEXT,
		period_end TEXT,
		calculation_ids_json TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payouts_deal ON payouts(deal_id);

	-- Calculations (append-only, one per idempotency key)
	CREATE TABLE IF NOT EXISTS calculations (
		id TEXT PRIMARY KEY,
		idempotency_key TEXT NOT NULL UNIQUE,
		deal_id TEXT NOT NULL,
		rule_id TEXT,
		bonus_type TEXT,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		base_metrics_json TEXT,
		bonus_amount TEXT NOT NULL,
		threshold_met INTEGER NOT NULL,
		cap_applied INTEGER NOT NULL,
		applied_rules_json TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_calculations_deal ON calculations(deal_id, created_at);

	CREATE TABLE IF NOT EXISTS settlement_runs (
		id TEXT PRIMARY KEY,
		deal_id TEXT NOT NULL,
		period_end TEXT NOT NULL,
		status TEXT NOT NULL,
		calculations INTEGER DEFAULT 0,
		total_bonus TEXT,
		error TEXT,
		run_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_settlement_runs_deal
		ON settlement_runs(deal_id, period_end);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset deletes every row. Used by demo scenarios only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"settlement_runs", "calculations", "payouts", "metrics", "deals", "sponsors"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SPONSORS
// =============================================================================

func (s *Store) SaveSponsor(ctx context.Context, sp sponsorship.Sponsor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := json.Marshal(sp.Preferences)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	query := `
		INSERT INTO sponsors (id, name, tier, budget, preferences_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			tier = excluded.tier,
			budget = excluded.budget,
			preferences_json = excluded.preferences_json
	`
	_, err = s.db.ExecContext(ctx, query,
		sp.ID, sp.Name, sp.Tier, sp.Budget.String(), string(prefs), formatTime(sp.CreatedAt))
	return err
}

func (s *Store) GetSponsor(ctx context.Context, id sponsorship.SponsorID) (*sponsorship.Sponsor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sponsors, err := s.querySponsors(ctx, `
		SELECT id, name, tier, budget, preferences_json, created_at
		FROM sponsors WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(sponsors) == 0 {
		return nil, sponsorship.ErrSponsorNotFound
	}
	return &sponsors[0], nil
}

func (s *Store) ListSponsors(ctx context.Context) ([]sponsorship.Sponsor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySponsors(ctx, `
		SELECT id, name, tier, budget, preferences_json, created_at
		FROM sponsors ORDER BY name`)
}

func (s *Store) querySponsors(ctx context.Context, query string, args ...any) ([]sponsorship.Sponsor, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sponsors []sponsorship.Sponsor
	for rows.Next() {
		var sp sponsorship.Sponsor
		var budget, createdAt string
		var prefs sql.NullString
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.Tier, &budget, &prefs, &createdAt); err != nil {
			return nil, err
		}
		if sp.Budget, err = decimal.NewFromString(budget); err != nil {
			return nil, fmt.Errorf("sponsor %s: bad budget: %w", sp.ID, err)
		}
		if prefs.Valid && prefs.String != "" {
			if err := json.Unmarshal([]byte(prefs.String), &sp.Preferences); err != nil {
				return nil, fmt.Errorf("sponsor %s: bad preferences: %w", sp.ID, err)
			}
		}
		sp.CreatedAt = parseTime(createdAt)
		sponsors = append(sponsors, sp)
	}
	return sponsors, rows.Err()
}

// =============================================================================
// DEALS
// =============================================================================

func (s *Store) SaveDeal(ctx context.Context, d sponsorship.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rulesJSON, err := factory.ToJSONList(d.Rules)
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	rules, err := json.Marshal(rulesJSON)
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	kpis, err := json.Marshal(d.KPITargets)
	if err != nil {
		return fmt.Errorf("failed to encode kpi targets: %w", err)
	}

	query := `
		INSERT INTO deals (id, sponsor_id, creator_id, title, base_fee, currency, rules_json,
			period_start, period_end, kpi_json, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sponsor_id = excluded.sponsor_id,
			creator_id = excluded.creator_id,
			title = excluded.title,
			base_fee = excluded.base_fee,
			currency = excluded.currency,
			rules_json = excluded.rules_json,
			period_start = excluded.period_start,
			period_end = excluded.period_end,
			kpi_json = excluded.kpi_json,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		d.ID, d.SponsorID, d.CreatorID, d.Title, d.BaseFee.String(), d.Currency, string(rules),
		formatTime(d.Period.Start), formatTime(d.Period.End), string(kpis), d.Status,
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	return err
}

const dealColumns = `id, sponsor_id, creator_id, title, base_fee, currency, rules_json,
	period_start, period_end, kpi_json, status, created_at, updated_at`

func (s *Store) GetDeal(ctx context.Context, id sponsorship.DealID) (*sponsorship.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deals, err := s.queryDeals(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(deals) == 0 {
		return nil, sponsorship.ErrDealNotFound
	}
	return &deals[0], nil
}

func (s *Store) ListDeals(ctx context.Context, filter sponsorship.DealFilter) ([]sponsorship.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + dealColumns + ` FROM deals WHERE 1=1`
	var args []any
	if filter.SponsorID != "" {
		query += ` AND sponsor_id = ?`
		args = append(args, filter.SponsorID)
	}
	if filter.CreatorID != "" {
		query += ` AND creator_id = ?`
		args = append(args, filter.CreatorID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY id`

	return s.queryDeals(ctx, query, args...)
}

func (s *Store) queryDeals(ctx context.Context, query string, args ...any) ([]sponsorship.Deal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []sponsorship.Deal
	for rows.Next() {
		var d sponsorship.Deal
		var baseFee, rulesJSON, periodStart, periodEnd, createdAt, updatedAt string
		var title, currency, kpiJSON sql.NullString
		if err := rows.Scan(&d.ID, &d.SponsorID, &d.CreatorID, &title, &baseFee, &currency, &rulesJSON,
			&periodStart, &periodEnd, &kpiJSON, &d.Status, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		d.Title = title.String
		d.Currency = currency.String
		if d.BaseFee, err = decimal.NewFromString(baseFee); err != nil {
			return nil, fmt.Errorf("deal %s: bad base fee: %w", d.ID, err)
		}
		if d.Rules, err = s.rules.ParseRules(rulesJSON); err != nil {
			return nil, fmt.Errorf("deal %s: %w", d.ID, err)
		}
		if kpiJSON.Valid && kpiJSON.String != "" && kpiJSON.String != "null" {
			if err := json.Unmarshal([]byte(kpiJSON.String), &d.KPITargets); err != nil {
				return nil, fmt.Errorf("deal %s: bad kpi targets: %w", d.ID, err)
			}
		}
		d.Period = sponsorship.Period{Start: parseTime(periodStart), End: parseTime(periodEnd)}
		d.CreatedAt = parseTime(createdAt)
		d.UpdatedAt = parseTime(updatedAt)
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// =============================================================================
// METRICS (append-only)
// =============================================================================

// AppendMetrics inserts measurements atomically.
func (s *Store) AppendMetrics(ctx context.Context, metrics []sponsorship.PerformanceMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO metrics (id, deal_id, metric_type, value, measured_at, platform)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for _, m := range metrics {
		if _, err := tx.ExecContext(ctx, query,
			m.ID, m.DealID, m.Type, m.Value.String(), formatTime(m.MeasuredAt), nullString(m.Platform),
		); err != nil {
			return fmt.Errorf("failed to append metric %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) LoadMetrics(ctx context.Context, dealID sponsorship.DealID) ([]sponsorship.PerformanceMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMetrics(ctx, `
		SELECT id, deal_id, metric_type, value, measured_at, platform
		FROM metrics WHERE deal_id = ?
		ORDER BY measured_at, id`, dealID)
}

func (s *Store) LoadMetricsBySponsor(ctx context.Context, sponsorID sponsorship.SponsorID) ([]sponsorship.PerformanceMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMetrics(ctx, `
		SELECT m.id, m.deal_id, m.metric_type, m.value, m.measured_at, m.platform
		FROM metrics m JOIN deals d ON d.id = m.deal_id
		WHERE d.sponsor_id = ?
		ORDER BY m.measured_at, m.id`, sponsorID)
}

func (s *Store) queryMetrics(ctx context.Context, query string, args ...any) ([]sponsorship.PerformanceMetric, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []sponsorship.PerformanceMetric
	for rows.Next() {
		var m sponsorship.PerformanceMetric
		var value, measuredAt string
		var platform sql.NullString
		if err := rows.Scan(&m.ID, &m.DealID, &m.Type, &value, &measuredAt, &platform); err != nil {
			return nil, err
		}
		if m.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("metric %s: bad value: %w", m.ID, err)
		}
		m.MeasuredAt = parseTime(measuredAt)
		m.Platform = platform.String
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// =============================================================================
// PAYOUTS
// =============================================================================

// SavePayout inserts a payout or updates its status.
func (s *Store) SavePayout(ctx context.Context, p sponsorship.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	calcIDs, err := json.Marshal(p.CalculationIDs)
	if err != nil {
		return fmt.Errorf("failed to encode calculation ids: %w", err)
	}

	query := `
		INSERT INTO payouts (id, deal_id, payout_type, amount, period_start, period_end,
			calculation_ids_json, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status
	`
	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.DealID, p.Type, p.Amount.String(),
		nullTime(p.Period.Start), nullTime(p.Period.End),
		string(calcIDs), p.Status, formatTime(p.CreatedAt),
	)
	return err
}

func (s *Store) LoadPayouts(ctx context.Context, dealID sponsorship.DealID) ([]sponsorship.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, deal_id, payout_type, amount, period_start, period_end,
			calculation_ids_json, status, created_at
		FROM payouts WHERE deal_id = ?
		ORDER BY created_at, rowid`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []sponsorship.Payout
	for rows.Next() {
		var p sponsorship.Payout
		var amount, createdAt string
		var periodStart, periodEnd, calcIDs sql.NullString
		if err := rows.Scan(&p.ID, &p.DealID, &p.Type, &amount, &periodStart, &periodEnd,
			&calcIDs, &p.Status, &createdAt); err != nil {
			return nil, err
		}
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("payout %s: bad amount: %w", p.ID, err)
		}
		if periodStart.Valid {
			p.Period.Start = parseTime(periodStart.String)
		}
		if periodEnd.Valid {
			p.Period.End = parseTime(periodEnd.String)
		}
		if calcIDs.Valid && calcIDs.String != "" {
			if err := json.Unmarshal([]byte(calcIDs.String), &p.CalculationIDs); err != nil {
				return nil, fmt.Errorf("payout %s: bad calculation ids: %w", p.ID, err)
			}
		}
		p.CreatedAt = parseTime(createdAt)
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// =============================================================================
// CALCULATIONS (append-only)
// =============================================================================

// AppendCalculation stores a calculation once per idempotency key.
func (s *Store) AppendCalculation(ctx context.Context, c sponsorship.BonusCalculation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	baseMetrics, err := json.Marshal(c.BaseMetrics)
	if err != nil {
		return fmt.Errorf("failed to encode base metrics: %w", err)
	}
	applied, err := json.Marshal(c.AppliedRules)
	if err != nil {
		return fmt.Errorf("failed to encode applied rules: %w", err)
	}

	query := `
		INSERT INTO calculations (id, idempotency_key, deal_id, rule_id, bonus_type,
			period_start, period_end, base_metrics_json, bonus_amount, threshold_met,
			cap_applied, applied_rules_json, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		c.ID, c.IdempotencyKey, c.DealID, c.RuleID, c.BonusType,
		formatTime(c.Period.Start), formatTime(c.Period.End), string(baseMetrics),
		c.BonusAmount.String(), c.ThresholdMet, c.CapApplied, string(applied),
		c.Status, formatTime(c.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return sponsorship.ErrDuplicateCalculation
		}
		return fmt.Errorf("failed to append calculation: %w", err)
	}
	return nil
}

func (s *Store) LoadCalculations(ctx context.Context, dealID sponsorship.DealID) ([]sponsorship.BonusCalculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, idempotency_key, deal_id, rule_id, bonus_type, period_start, period_end,
			base_metrics_json, bonus_amount, threshold_met, cap_applied, applied_rules_json,
			status, created_at
		FROM calculations WHERE deal_id = ?
		ORDER BY created_at, rowid`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calcs []sponsorship.BonusCalculation
	for rows.Next() {
		var c sponsorship.BonusCalculation
		var ruleID, bonusType, baseMetrics, applied sql.NullString
		var periodStart, periodEnd, amount, createdAt string
		if err := rows.Scan(&c.ID, &c.IdempotencyKey, &c.DealID, &ruleID, &bonusType,
			&periodStart, &periodEnd, &baseMetrics, &amount, &c.ThresholdMet, &c.CapApplied,
			&applied, &c.Status, &createdAt); err != nil {
			return nil, err
		}
		c.RuleID = sponsorship.RuleID(ruleID.String)
		c.BonusType = sponsorship.BonusType(bonusType.String)
		c.Period = sponsorship.Period{Start: parseTime(periodStart), End: parseTime(periodEnd)}
		if c.BonusAmount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("calculation %s: bad amount: %w", c.ID, err)
		}
		if baseMetrics.Valid && baseMetrics.String != "" {
			if err := json.Unmarshal([]byte(baseMetrics.String), &c.BaseMetrics); err != nil {
				return nil, fmt.Errorf("calculation %s: bad base metrics: %w", c.ID, err)
			}
		}
		if applied.Valid && applied.String != "" {
			if err := json.Unmarshal([]byte(applied.String), &c.AppliedRules); err != nil {
				return nil, fmt.Errorf("calculation %s: bad applied rules: %w", c.ID, err)
			}
		}
		c.CreatedAt = parseTime(createdAt)
		calcs = append(calcs, c)
	}
	return calcs, rows.Err()
}

// =============================================================================
// SETTLEMENT RUNS
// =============================================================================

func (s *Store) SaveSettlementRun(ctx context.Context, r sponsorship.SettlementRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO settlement_runs (id, deal_id, period_end, status, calculations,
			total_bonus, error, run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			calculations = excluded.calculations,
			total_bonus = excluded.total_bonus,
			error = excluded.error
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.DealID, formatTime(sponsorship.Day(r.PeriodEnd)), r.Status, r.Calculations,
		r.TotalBonus, r.Error, formatTime(r.RunAt),
	)
	return err
}

// ListSettlementRuns returns runs newest first, optionally by status.
func (s *Store) ListSettlementRuns(ctx context.Context, status string) ([]sponsorship.SettlementRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, deal_id, period_end, status, calculations, total_bonus, error, run_at
		FROM settlement_runs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY run_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []sponsorship.SettlementRun
	for rows.Next() {
		var r sponsorship.SettlementRun
		var periodEnd, runAt string
		var totalBonus, runErr sql.NullString
		if err := rows.Scan(&r.ID, &r.DealID, &periodEnd, &r.Status, &r.Calculations,
			&totalBonus, &runErr, &runAt); err != nil {
			return nil, err
		}
		r.PeriodEnd = parseTime(periodEnd)
		r.TotalBonus = totalBonus.String
		r.Error = runErr.String
		r.RunAt = parseTime(runAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// IsSettled checks whether a completed run exists for the deal period.
func (s *Store) IsSettled(ctx context.Context, dealID sponsorship.DealID, periodEnd time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT COUNT(*) FROM settlement_runs
		WHERE deal_id = ? AND period_end = ? AND status = 'completed'
	`
	var count int
	err := s.db.QueryRowContext(ctx, query, dealID, formatTime(sponsorship.Day(periodEnd))).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
