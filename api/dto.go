/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

DATES:
  Period bounds are calendar dates ("2025-01-31"). Measurement and
  creation timestamps are RFC 3339.

VALIDATION:
  Request types carry validator tags, checked in decodeRequest before a
  handler sees the value. Rule bodies are validated by factory.RuleFactory.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rule.go: BonusRuleJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/sponsorship-engine/factory"
	"github.com/warp/sponsorship-engine/sponsorship"
)

const dateLayout = "2006-01-02"

// =============================================================================
// SPONSORS
// =============================================================================

type SponsorDTO struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Tier       string          `json:"tier"`
	Budget     decimal.Decimal `json:"budget"`
	Platforms  []string        `json:"platforms,omitempty"`
	Categories []string        `json:"categories,omitempty"`
	CreatedAt  string          `json:"created_at,omitempty"`
}

type CreateSponsorRequest struct {
	ID         string          `json:"id" validate:"required,max=128"`
	Name       string          `json:"name" validate:"required,max=256"`
	Tier       string          `json:"tier" validate:"required,oneof=bronze silver gold platinum"`
	Budget     decimal.Decimal `json:"budget"`
	Platforms  []string        `json:"platforms"`
	Categories []string        `json:"categories"`
}

type RecommendedRulesResponse struct {
	SponsorID string                  `json:"sponsor_id"`
	Rules     []factory.BonusRuleJSON `json:"rules"`
}

// =============================================================================
// DEALS
// =============================================================================

type DealDTO struct {
	ID          string                     `json:"id"`
	SponsorID   string                     `json:"sponsor_id"`
	CreatorID   string                     `json:"creator_id"`
	Title       string                     `json:"title,omitempty"`
	BaseFee     decimal.Decimal            `json:"base_fee"`
	Currency    string                     `json:"currency"`
	Rules       []factory.BonusRuleJSON    `json:"rules"`
	PeriodStart string                     `json:"period_start"`
	PeriodEnd   string                     `json:"period_end"`
	KPITargets  map[string]decimal.Decimal `json:"kpi_targets,omitempty"`
	Status      string                     `json:"status"`
	CreatedAt   string                     `json:"created_at,omitempty"`
	UpdatedAt   string                     `json:"updated_at,omitempty"`
}

// CreateDealRequest creates a deal in draft unless Status says otherwise.
type CreateDealRequest struct {
	ID          string                     `json:"id" validate:"omitempty,max=128"`
	SponsorID   string                     `json:"sponsor_id" validate:"required"`
	CreatorID   string                     `json:"creator_id" validate:"required"`
	Title       string                     `json:"title" validate:"max=256"`
	BaseFee     decimal.Decimal            `json:"base_fee"`
	Currency    string                     `json:"currency" validate:"omitempty,len=3"`
	Rules       []factory.BonusRuleJSON    `json:"rules"`
	PeriodStart string                     `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd   string                     `json:"period_end" validate:"required,datetime=2006-01-02"`
	KPITargets  map[string]decimal.Decimal `json:"kpi_targets"`
	Status      string                     `json:"status" validate:"omitempty,oneof=draft pending active"`
}

type UpdateDealStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft pending active completed cancelled"`
}

// =============================================================================
// METRICS
// =============================================================================

type MetricDTO struct {
	ID         string          `json:"id"`
	DealID     string          `json:"deal_id"`
	Type       string          `json:"metric_type"`
	Value      decimal.Decimal `json:"value"`
	MeasuredAt string          `json:"measured_at"`
	Platform   string          `json:"platform,omitempty"`
}

type MetricInput struct {
	ID         string          `json:"id" validate:"omitempty,max=128"`
	Type       string          `json:"metric_type" validate:"required"`
	Value      decimal.Decimal `json:"value"`
	MeasuredAt time.Time       `json:"measured_at" validate:"required"`
	Platform   string          `json:"platform" validate:"max=64"`
}

type RecordMetricsRequest struct {
	Metrics []MetricInput `json:"metrics" validate:"required,min=1,max=1000,dive"`
}

// =============================================================================
// PAYOUTS
// =============================================================================

type PayoutDTO struct {
	ID             string          `json:"id"`
	DealID         string          `json:"deal_id"`
	Type           string          `json:"payout_type"`
	Amount         decimal.Decimal `json:"amount"`
	PeriodStart    string          `json:"period_start,omitempty"`
	PeriodEnd      string          `json:"period_end,omitempty"`
	CalculationIDs []string        `json:"calculation_ids,omitempty"`
	Status         string          `json:"status"`
	CreatedAt      string          `json:"created_at"`
}

type CreatePayoutRequest struct {
	ID             string          `json:"id" validate:"omitempty,max=128"`
	Type           string          `json:"payout_type" validate:"required,oneof=base_fee bonus milestone penalty"`
	Amount         decimal.Decimal `json:"amount"`
	PeriodStart    string          `json:"period_start" validate:"omitempty,datetime=2006-01-02"`
	PeriodEnd      string          `json:"period_end" validate:"omitempty,datetime=2006-01-02"`
	CalculationIDs []string        `json:"calculation_ids"`
	Status         string          `json:"status" validate:"omitempty,oneof=scheduled paid failed"`
}

// =============================================================================
// CALCULATIONS
// =============================================================================

type CalculationDTO struct {
	ID             string                     `json:"id"`
	IdempotencyKey string                     `json:"idempotency_key"`
	DealID         string                     `json:"deal_id"`
	RuleID         string                     `json:"rule_id,omitempty"`
	BonusType      string                     `json:"bonus_type,omitempty"`
	PeriodStart    string                     `json:"period_start"`
	PeriodEnd      string                     `json:"period_end"`
	BaseMetrics    map[string]decimal.Decimal `json:"base_metrics"`
	BonusAmount    decimal.Decimal            `json:"bonus_amount"`
	ThresholdMet   bool                       `json:"threshold_met"`
	CapApplied     bool                       `json:"cap_applied"`
	AppliedRules   []string                   `json:"applied_rules,omitempty"`
	Status         string                     `json:"status"`
	CreatedAt      string                     `json:"created_at"`
}

// CalculateRequest selects the measurement window. Both bounds default to
// the deal's own period.
type CalculateRequest struct {
	PeriodStart string `json:"period_start" validate:"omitempty,datetime=2006-01-02"`
	PeriodEnd   string `json:"period_end" validate:"omitempty,datetime=2006-01-02"`
}

type CalculateResponse struct {
	DealID       string           `json:"deal_id"`
	PeriodStart  string           `json:"period_start"`
	PeriodEnd    string           `json:"period_end"`
	Calculations []CalculationDTO `json:"calculations"`
	TotalBonus   decimal.Decimal  `json:"total_bonus"`
	Persisted    int              `json:"persisted"`
	Duplicates   int              `json:"duplicates"`
}

// =============================================================================
// ANALYTICS
// =============================================================================

type SummaryDTO struct {
	DealID         string                     `json:"deal_id"`
	PeriodStart    string                     `json:"period_start"`
	PeriodEnd      string                     `json:"period_end"`
	Metrics        MetricSummaryDTO           `json:"metrics"`
	Spend          SpendDTO                   `json:"spend"`
	Ratios         RatiosDTO                  `json:"ratios"`
	KPIAchievement map[string]decimal.Decimal `json:"kpi_achievement"`
	OverallScore   decimal.Decimal            `json:"overall_score"`
	Grade          string                     `json:"grade"`
	GeneratedAt    string                     `json:"generated_at"`
	Cached         bool                       `json:"cached"`
}

type MetricSummaryDTO struct {
	Views       decimal.Decimal `json:"views"`
	Downloads   decimal.Decimal `json:"downloads"`
	Streams     decimal.Decimal `json:"streams"`
	Engagement  decimal.Decimal `json:"engagement"`
	Clicks      decimal.Decimal `json:"clicks"`
	Conversions decimal.Decimal `json:"conversions"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type SpendDTO struct {
	BaseFees              decimal.Decimal `json:"base_fees"`
	BonusPayments         decimal.Decimal `json:"bonus_payments"`
	Penalties             decimal.Decimal `json:"penalties"`
	TotalSpend            decimal.Decimal `json:"total_spend"`
	AverageBonusPerPeriod decimal.Decimal `json:"average_bonus_per_period"`
}

type RatiosDTO struct {
	CPM            decimal.Decimal `json:"cpm"`
	CPC            decimal.Decimal `json:"cpc"`
	CPA            decimal.Decimal `json:"cpa"`
	ROI            decimal.Decimal `json:"roi"`
	EngagementRate decimal.Decimal `json:"engagement_rate"`
	ConversionRate decimal.Decimal `json:"conversion_rate"`
}

type PlatformScoreDTO struct {
	Platform string          `json:"platform"`
	Score    decimal.Decimal `json:"score"`
}

type TargetingDTO struct {
	DealID               string             `json:"deal_id"`
	Scores               []PlatformScoreDTO `json:"scores"`
	RecommendedPlatforms []string           `json:"recommended_platforms"`
}

// =============================================================================
// SETTLEMENT & SCENARIOS
// =============================================================================

type SettlementRunDTO struct {
	ID           string `json:"id"`
	DealID       string `json:"deal_id"`
	PeriodEnd    string `json:"period_end"`
	Status       string `json:"status"`
	Calculations int    `json:"calculations"`
	TotalBonus   string `json:"total_bonus,omitempty"`
	Error        string `json:"error,omitempty"`
	RunAt        string `json:"run_at"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toSponsorDTO(s sponsorship.Sponsor) SponsorDTO {
	return SponsorDTO{
		ID:         string(s.ID),
		Name:       s.Name,
		Tier:       string(s.Tier),
		Budget:     s.Budget,
		Platforms:  s.Preferences.Platforms,
		Categories: s.Preferences.Categories,
		CreatedAt:  formatTimestamp(s.CreatedAt),
	}
}

func toDealDTO(d sponsorship.Deal) (DealDTO, error) {
	rules, err := factory.ToJSONList(d.Rules)
	if err != nil {
		return DealDTO{}, err
	}
	return DealDTO{
		ID:          string(d.ID),
		SponsorID:   string(d.SponsorID),
		CreatorID:   string(d.CreatorID),
		Title:       d.Title,
		BaseFee:     d.BaseFee,
		Currency:    d.Currency,
		Rules:       rules,
		PeriodStart: d.Period.Start.Format(dateLayout),
		PeriodEnd:   d.Period.End.Format(dateLayout),
		KPITargets:  d.KPITargets,
		Status:      string(d.Status),
		CreatedAt:   formatTimestamp(d.CreatedAt),
		UpdatedAt:   formatTimestamp(d.UpdatedAt),
	}, nil
}

func toMetricDTO(m sponsorship.PerformanceMetric) MetricDTO {
	return MetricDTO{
		ID:         string(m.ID),
		DealID:     string(m.DealID),
		Type:       string(m.Type),
		Value:      m.Value,
		MeasuredAt: formatTimestamp(m.MeasuredAt),
		Platform:   m.Platform,
	}
}

func toPayoutDTO(p sponsorship.Payout) PayoutDTO {
	dto := PayoutDTO{
		ID:        string(p.ID),
		DealID:    string(p.DealID),
		Type:      string(p.Type),
		Amount:    p.Amount,
		Status:    string(p.Status),
		CreatedAt: formatTimestamp(p.CreatedAt),
	}
	if !p.Period.IsZero() {
		dto.PeriodStart = p.Period.Start.Format(dateLayout)
		dto.PeriodEnd = p.Period.End.Format(dateLayout)
	}
	for _, id := range p.CalculationIDs {
		dto.CalculationIDs = append(dto.CalculationIDs, string(id))
	}
	return dto
}

func toCalculationDTO(c sponsorship.BonusCalculation) CalculationDTO {
	base := make(map[string]decimal.Decimal, len(c.BaseMetrics))
	for k, v := range c.BaseMetrics {
		base[string(k)] = v
	}
	return CalculationDTO{
		ID:             string(c.ID),
		IdempotencyKey: c.IdempotencyKey,
		DealID:         string(c.DealID),
		RuleID:         string(c.RuleID),
		BonusType:      string(c.BonusType),
		PeriodStart:    c.Period.Start.Format(dateLayout),
		PeriodEnd:      c.Period.End.Format(dateLayout),
		BaseMetrics:    base,
		BonusAmount:    c.BonusAmount,
		ThresholdMet:   c.ThresholdMet,
		CapApplied:     c.CapApplied,
		AppliedRules:   c.AppliedRules,
		Status:         string(c.Status),
		CreatedAt:      formatTimestamp(c.CreatedAt),
	}
}

func toSummaryDTO(s sponsorship.CampaignSummary, cached bool) SummaryDTO {
	return SummaryDTO{
		DealID:      string(s.DealID),
		PeriodStart: s.Period.Start.Format(dateLayout),
		PeriodEnd:   s.Period.End.Format(dateLayout),
		Metrics: MetricSummaryDTO{
			Views:       s.Metrics.Views,
			Downloads:   s.Metrics.Downloads,
			Streams:     s.Metrics.Streams,
			Engagement:  s.Metrics.Engagement,
			Clicks:      s.Metrics.Clicks,
			Conversions: s.Metrics.Conversions,
			Revenue:     s.Metrics.Revenue,
		},
		Spend: SpendDTO{
			BaseFees:              s.Spend.BaseFees,
			BonusPayments:         s.Spend.BonusPayments,
			Penalties:             s.Spend.Penalties,
			TotalSpend:            s.Spend.TotalSpend,
			AverageBonusPerPeriod: s.Spend.AverageBonusPerPeriod,
		},
		Ratios: RatiosDTO{
			CPM:            s.Ratios.CPM,
			CPC:            s.Ratios.CPC,
			CPA:            s.Ratios.CPA,
			ROI:            s.Ratios.ROI,
			EngagementRate: s.Ratios.EngagementRate,
			ConversionRate: s.Ratios.ConversionRate,
		},
		KPIAchievement: s.KPIAchievement,
		OverallScore:   s.OverallScore,
		Grade:          string(s.Grade),
		GeneratedAt:    formatTimestamp(s.GeneratedAt),
		Cached:         cached,
	}
}

func toTargetingDTO(t sponsorship.TargetingRecommendation) TargetingDTO {
	dto := TargetingDTO{
		DealID:               string(t.DealID),
		Scores:               make([]PlatformScoreDTO, 0, len(t.Scores)),
		RecommendedPlatforms: t.RecommendedPlatforms,
	}
	for _, s := range t.Scores {
		dto.Scores = append(dto.Scores, PlatformScoreDTO{Platform: s.Platform, Score: s.Score})
	}
	return dto
}

func toSettlementRunDTO(r sponsorship.SettlementRun) SettlementRunDTO {
	return SettlementRunDTO{
		ID:           r.ID,
		DealID:       string(r.DealID),
		PeriodEnd:    r.PeriodEnd.Format(dateLayout),
		Status:       r.Status,
		Calculations: r.Calculations,
		TotalBonus:   r.TotalBonus,
		Error:        r.Error,
		RunAt:        formatTimestamp(r.RunAt),
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
