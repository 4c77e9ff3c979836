/*
handlers.go - HTTP API handlers for the sponsorship engine

PURPOSE:
  Exposes the bonus calculation and campaign analytics engine via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to the
  pure engine in package sponsorship.

ENDPOINTS:
  Sponsors:
    GET    /api/sponsors                         List sponsors
    POST   /api/sponsors                         Create sponsor
    GET    /api/sponsors/{id}                    Get sponsor
    GET    /api/sponsors/{id}/recommended-rules  Suggested bonus rules

  Deals:
    GET    /api/deals                  List deals (?sponsor_id, creator_id, status)
    POST   /api/deals                  Create deal with bonus rules
    GET    /api/deals/{id}             Get deal
    POST   /api/deals/{id}/status      Move deal through its workflow
    POST   /api/deals/{id}/settle      Settle an ended deal now

  Performance & money:
    POST   /api/deals/{id}/metrics       Append measurements (batch)
    GET    /api/deals/{id}/metrics       List measurements
    POST   /api/deals/{id}/payouts       Record a payout
    GET    /api/deals/{id}/payouts       List payouts
    POST   /api/deals/{id}/calculations  Calculate bonuses (?persist, ?all)
    GET    /api/deals/{id}/calculations  Stored calculations

  Analytics:
    GET    /api/deals/{id}/summary     Campaign summary (?start, ?end)
    GET    /api/deals/{id}/targeting   Platform ranking

  Settlement:
    GET    /api/settlements            Settlement run history (?status)

REQUEST FLOW:
  1. Parse HTTP request, decode JSON body
  2. Validate input (validator tags, then rule factory)
  3. Load deal, metrics and payouts from the store
  4. Call the engine (pure)
  5. Persist results, invalidate the summary cache
  6. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid rules or periods, illegal transitions
  - 404: Sponsor or deal not found
  - 409: Duplicate calculation
  - 500: Internal errors (logged)

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - settlement.go: Deal settlement
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/warp/sponsorship-engine/factory"
	"github.com/warp/sponsorship-engine/sponsorship"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies. A metrics batch of 1000 entries fits.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence the API needs: the engine's store interfaces
// plus Reset for demo scenarios.
type Store interface {
	sponsorship.Store
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   Store
	Rules   *factory.RuleFactory
	Calc    *sponsorship.Calculator
	Cache   sponsorship.SummaryCache
	Logger  *zap.Logger
	Metrics *Metrics

	validate *validator.Validate
	now      func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

type Option func(*Handler)

// WithCache enables summary caching.
func WithCache(cache sponsorship.SummaryCache) Option {
	return func(h *Handler) { h.Cache = cache }
}

// WithClock overrides "now" for calculations, payouts and settlement.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates a handler. A nil logger discards logs; nil metrics
// get a private registry.
func NewHandler(store Store, logger *zap.Logger, metrics *Metrics, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	h := &Handler{
		Store:    store,
		Rules:    factory.NewRuleFactory(),
		Cache:    sponsorship.NopCache{},
		Logger:   logger,
		Metrics:  metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	h.Calc = sponsorship.NewCalculator(sponsorship.WithClock(h.now))
	return h
}

// =============================================================================
// SPONSOR HANDLERS
// =============================================================================

func (h *Handler) ListSponsors(w http.ResponseWriter, r *http.Request) {
	sponsors, err := h.Store.ListSponsors(r.Context())
	if err != nil {
		h.writeStoreError(w, r, "failed to list sponsors", err)
		return
	}

	dtos := make([]SponsorDTO, 0, len(sponsors))
	for _, s := range sponsors {
		dtos = append(dtos, toSponsorDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateSponsor(w http.ResponseWriter, r *http.Request) {
	var req CreateSponsorRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Budget.IsNegative() {
		writeError(w, http.StatusBadRequest, "budget must not be negative", nil)
		return
	}

	sponsor := sponsorship.Sponsor{
		ID:     sponsorship.SponsorID(req.ID),
		Name:   req.Name,
		Tier:   sponsorship.Tier(req.Tier),
		Budget: req.Budget,
		Preferences: sponsorship.SponsorPreferences{
			Platforms:  req.Platforms,
			Categories: req.Categories,
		},
		CreatedAt: h.now(),
	}
	if err := h.Store.SaveSponsor(r.Context(), sponsor); err != nil {
		h.writeStoreError(w, r, "failed to save sponsor", err)
		return
	}

	writeJSON(w, http.StatusCreated, toSponsorDTO(sponsor))
}

func (h *Handler) GetSponsor(w http.ResponseWriter, r *http.Request) {
	sponsor, err := h.Store.GetSponsor(r.Context(), sponsorship.SponsorID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeStoreError(w, r, "failed to get sponsor", err)
		return
	}
	writeJSON(w, http.StatusOK, toSponsorDTO(*sponsor))
}

// RecommendedRules suggests a bonus structure from the sponsor's tier and
// the performance history of all its deals.
func (h *Handler) RecommendedRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sponsor, err := h.Store.GetSponsor(ctx, sponsorship.SponsorID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeStoreError(w, r, "failed to get sponsor", err)
		return
	}
	history, err := h.Store.LoadMetricsBySponsor(ctx, sponsor.ID)
	if err != nil {
		h.writeStoreError(w, r, "failed to load sponsor history", err)
		return
	}

	rules, err := factory.ToJSONList(sponsorship.RecommendBonusStructure(*sponsor, history))
	if err != nil {
		h.writeStoreError(w, r, "failed to encode rules", err)
		return
	}
	writeJSON(w, http.StatusOK, RecommendedRulesResponse{SponsorID: string(sponsor.ID), Rules: rules})
}

// =============================================================================
// DEAL HANDLERS
// =============================================================================

func (h *Handler) ListDeals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := sponsorship.DealFilter{
		SponsorID: sponsorship.SponsorID(q.Get("sponsor_id")),
		CreatorID: sponsorship.CreatorID(q.Get("creator_id")),
		Status:    sponsorship.DealStatus(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown deal status", fmt.Errorf("status %q", filter.Status))
		return
	}

	deals, err := h.Store.ListDeals(r.Context(), filter)
	if err != nil {
		h.writeStoreError(w, r, "failed to list deals", err)
		return
	}

	dtos := make([]DealDTO, 0, len(deals))
	for _, d := range deals {
		dto, err := toDealDTO(d)
		if err != nil {
			h.writeStoreError(w, r, "failed to encode deal", err)
			return
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateDeal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateDealRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.BaseFee.IsNegative() {
		writeError(w, http.StatusBadRequest, "base_fee must not be negative", nil)
		return
	}

	period, err := parsePeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid period", err)
		return
	}
	rules, err := h.Rules.FromJSONList(req.Rules)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bonus rules", err)
		return
	}
	if _, err := h.Store.GetSponsor(ctx, sponsorship.SponsorID(req.SponsorID)); err != nil {
		if sponsorship.IsNotFound(err) {
			writeError(w, http.StatusBadRequest, "unknown sponsor", err)
			return
		}
		h.writeStoreError(w, r, "failed to get sponsor", err)
		return
	}

	now := h.now()
	deal := sponsorship.Deal{
		ID:         sponsorship.DealID(req.ID),
		SponsorID:  sponsorship.SponsorID(req.SponsorID),
		CreatorID:  sponsorship.CreatorID(req.CreatorID),
		Title:      req.Title,
		BaseFee:    req.BaseFee,
		Currency:   req.Currency,
		Rules:      rules,
		Period:     period,
		KPITargets: req.KPITargets,
		Status:     sponsorship.DealStatus(req.Status),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if deal.ID == "" {
		deal.ID = sponsorship.DealID(uuid.NewString())
	}
	if deal.Currency == "" {
		deal.Currency = "USD"
	}
	if deal.Status == "" {
		deal.Status = sponsorship.DealDraft
	}

	if err := h.Store.SaveDeal(ctx, deal); err != nil {
		h.writeStoreError(w, r, "failed to save deal", err)
		return
	}
	h.invalidate(ctx, deal.ID)

	h.Logger.Info("deal created",
		zap.String("deal_id", string(deal.ID)),
		zap.String("sponsor_id", string(deal.SponsorID)),
		zap.Int("rules", len(deal.Rules)))
	h.writeDeal(w, r, http.StatusCreated, deal)
}

func (h *Handler) GetDeal(w http.ResponseWriter, r *http.Request) {
	deal, ok := h.loadDeal(w, r)
	if !ok {
		return
	}
	h.writeDeal(w, r, http.StatusOK, *deal)
}

// UpdateDealStatus moves a deal along draft -> pending -> active ->
// completed, or cancels it.
func (h *Handler) UpdateDealStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req UpdateDealStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	deal, ok := h.loadDeal(w, r)
	if !ok {
		return
	}

	updated, err := sponsorship.Transition(*deal, sponsorship.DealStatus(req.Status))
	if err != nil {
		h.writeStoreError(w, r, "status change rejected", err)
		return
	}
	updated.UpdatedAt = h.now()
	if err := h.Store.SaveDeal(ctx, updated); err != nil {
		h.writeStoreError(w, r, "failed to save deal", err)
		return
	}
	h.invalidate(ctx, updated.ID)

	h.Logger.Info("deal status changed",
		zap.String("deal_id", string(updated.ID)),
		zap.String("from", string(deal.Status)),
		zap.String("to", string(updated.Status)))
	h.writeDeal(w, r, http.StatusOK, updated)
}

// =============================================================================
// METRIC & PAYOUT HANDLERS
// =============================================================================

// RecordMetrics appends a batch of measurements. Either all are stored or
// none are.
func (h *Handler) RecordMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req RecordMetricsRequest
	if !h.decode(w, r, &req) {
		return
	}
	deal, ok := h.loadDeal(w, r)
	if !ok {
		return
	}

	metrics := make([]sponsorship.PerformanceMetric, 0, len(req.Metrics))
	for i, in := range req.Metrics {
		mt := sponsorship.MetricType(in.Type)
		if !mt.IsValid() {
			writeError(w, http.StatusBadRequest, "unknown metric type", fmt.Errorf("metrics[%d]: %q", i, in.Type))
			return
		}
		if in.Value.IsNegative() {
			writeError(w, http.StatusBadRequest, "metric value must not be negative", fmt.Errorf("metrics[%d]", i))
			return
		}
		id := in.ID
		if id == "" {
			id = uuid.NewString()
		}
		metrics = append(metrics, sponsorship.PerformanceMetric{
			ID:         sponsorship.MetricID(id),
			DealID:     deal.ID,
			Type:       mt,
			Value:      in.Value,
			MeasuredAt: in.MeasuredAt.UTC(),
			Platform:   in.Platform,
		})
	}

	if err := h.Store.AppendMetrics(ctx, metrics); err != nil {
		h.writeStoreError(w, r, "failed to record metrics", err)
		return
	}
	h.invalidate(ctx, deal.ID)
	h.Metrics.MetricsIngested.Add(float64(len(metrics)))

	writeJSON(w, http.StatusCreated, map[string]any{
		"deal_id":  string(deal.ID),
		"recorded": len(metrics),
	})
}

func (h *Handler) ListMetrics(w http.ResponseWriter, r *http.Request) {
	deal, ok := h.loadDeal(w, r)
	if !ok {
		return
	}
	metrics, err := h.Store.LoadMetrics(r.Context(), deal.ID)
	if err != nil {
		h.writeStoreError(w, r, "failed to load metrics", err)
		return
	}

	dtos := make([]MetricDTO, 0, len(metrics))
	for _, m := range metrics {
		dtos = append(dtos, toMetricDTO(m))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreatePayout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreatePayoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "amount must not be negative", nil)
		return
	}
	deal, ok := h.loadDeal(w, r)
	if !ok {
		return
	}

	var period sponsorship.Period
	if req.PeriodStart != "" || req.PeriodEnd != "" {
		p, err := parsePeriod(req.PeriodStart, req.PeriodEnd)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid period", err)
			return
		}
		period = p
	}

	payout := sponsorship.Payout{
		ID:        sponsorship.PayoutID(req.ID),
		DealID:    deal.ID,
		Type:      sponsorship.PayoutType(req.Type),
		Amount:    req.Amount,
		Period:    period,
		Status:    sponsorship.PayoutStatus(req.Status),
		CreatedAt: h.now(),
	}
	if payout.ID == "" {
		payout.ID = sponsorship.PayoutID(uuid.NewString())
	}
	if payout.Status == "" {
		payout.Status = sponsorship.PayoutScheduled
	}
	for _, id := range req.CalculationIDs {
		payout.CalculationIDs = append(payout.CalculationIDs, sponsorship.CalculationID(id))
	}

	if err := h.Store.SavePayout(ctx, payout); err != nil {
		h.writeStoreError(w, r, "failed to save payout", err)
		return
	}
	h.invalidate(ctx, deal.ID)

	writeJSON(w, http.StatusCreated, toPayoutDTO(payout))
}

func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	deal, ok := h.loadDeal(w, r)
	if !ok {
		return
	}
	payouts, err := h.Store.LoadPayouts(r.Context(), deal.ID)
	if err != nil {
		h.writeStoreError(w, r, "failed to load payouts", err)
		return
	}

	dtos := make([]PayoutDTO, 0, len(payouts))
	for _, p := range payouts {
		dtos = append(dtos, toPayoutDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CALCULATION HANDLERS
// =============================================================================

// Calculate runs every rule on the deal over the requested window.
//
// Query parameters:
//   - persist=true stores the calculations (deduplicated by idempotency key)
//   - all=true returns not-met, not-applicable and invalid results too
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CalculateRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	persist, err := boolQuery(r, "persist")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid persist flag", err)
		return
	}
	all, err := boolQuery(r, "all")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid all flag", err)
		return
	}

	deal, ok := h.loadDeal(w, r)
	if !ok {
		return
	}
	period, err := periodOrDefault(req.PeriodStart, req.PeriodEnd, deal.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid period", err)
		return
	}

	metrics, err := h.Store.LoadMetrics(ctx, deal.ID)
	if err != nil {
		h.writeStoreError(w, r, "failed to load metrics", err)
		return
	}
	calcs := h.Calc.CalculateBonus(*deal, metrics, period)
	h.observeCalculations(calcs)

	resp := CalculateResponse{
		DealID:      string(deal.ID),
		PeriodStart: period.Start.Format(dateLayout),
		PeriodEnd:   period.End.Format(dateLayout),
		TotalBonus:  sponsorship.TotalBonus(calcs),
	}

	if persist {
		stored, persisted, duplicates, err := h.persistCalculations(ctx, deal.ID, calcs)
		if err != nil {
			h.writeStoreError(w, r, "failed to store calculations", err)
			return
		}
		calcs = stored
		resp.Persisted = persisted
		resp.Duplicates = duplicates
	}
	if !all {
		calcs = sponsorship.Payable(calcs)
	}

	resp.Calculations = make([]CalculationDTO, 0, len(calcs))
	for _, c := range calcs {
		resp.Calculations = append(resp.Calculations, toCalculationDTO(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListCalculations(w http.ResponseWriter, r *http.Request) {
	deal, ok := h.loadDeal(w, r)
	if !ok {
		return
	}
	calcs, err := h.Store.LoadCalculations(r.Context(), deal.ID)
	if err != nil {
		h.writeStoreError(w, r, "failed to load calculations", err)
		return
	}

	dtos := make([]CalculationDTO, 0, len(calcs))
	for _, c := range calcs {
		dtos = append(dtos, toCalculationDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// persistCalculations appends each calculation. A recomputation whose
// idempotency key is already stored counts as a duplicate and is replaced
// in the result by the stored record, so callers always reference the
// persisted IDs.
func (h *Handler) persistCalculations(ctx context.Context, dealID sponsorship.DealID, calcs []sponsorship.BonusCalculation) ([]sponsorship.BonusCalculation, int, int, error) {
	out := make([]sponsorship.BonusCalculation, 0, len(calcs))
	var existing map[string]sponsorship.BonusCalculation
	persisted, duplicates := 0, 0

	for _, c := range calcs {
		err := h.Store.AppendCalculation(ctx, c)
		switch {
		case err == nil:
			persisted++
			out = append(out, c)
		case errors.Is(err, sponsorship.ErrDuplicateCalculation):
			duplicates++
			if existing == nil {
				stored, err := h.Store.LoadCalculations(ctx, dealID)
				if err != nil {
					return nil, 0, 0, err
				}
				existing = make(map[string]sponsorship.BonusCalculation, len(stored))
				for _, s := range stored {
					existing[s.IdempotencyKey] = s
				}
			}
			if prev, ok := existing[c.IdempotencyKey]; ok {
				c = prev
			}
			out = append(out, c)
		default:
			return nil, 0, 0, fmt.Errorf("calculation %s: %w", c.IdempotencyKey, err)
		}
	}
	return out, persisted, duplicates, nil
}

func (h *Handler) observeCalculations(calcs []sponsorship.BonusCalculation) {
	for _, c := range calcs {
		h.Metrics.Calculations.WithLabelValues(string(c.BonusType), string(c.Status)).Inc()
		if c.IsPayable() {
			h.Metrics.BonusAmount.Add(c.BonusAmount.InexactFloat64())
		}
	}
}

// =============================================================================
// ANALYTICS HANDLERS
// =============================================================================

// GetSummary returns the campaign summary for ?start..?end, defaulting to
// the deal period. Summaries are served from the cache when present.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deal, ok := h.loadDeal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	period, err := periodOrDefault(q.Get("start"), q.Get("end"), deal.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid period", err)
		return
	}

	if cached, hit := h.Cache.Get(ctx, deal.ID, period); hit {
		h.Metrics.SummaryCache.WithLabelValues("hit").Inc()
		writeJSON(w, http.StatusOK, toSummaryDTO(*cached, true))
		return
	}
	h.Metrics.SummaryCache.WithLabelValues("miss").Inc()

	metrics, err := h.Store.LoadMetrics(ctx, deal.ID)
	if err != nil {
		h.writeStoreError(w, r, "failed to load metrics", err)
		return
	}
	payouts, err := h.Store.LoadPayouts(ctx, deal.ID)
	if err != nil {
		h.writeStoreError(w, r, "failed to load payouts", err)
		return
	}

	summary := h.Calc.GenerateCampaignSummary(*deal, metrics, payouts, period)
	if err := h.Cache.Set(ctx, summary); err != nil {
		h.Logger.Warn("summary cache write failed",
			zap.String("deal_id", string(deal.ID)), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary, false))
}

// GetTargeting ranks platforms using the history of every deal of the
// same sponsor.
func (h *Handler) GetTargeting(w http.ResponseWriter, r *http.Request) {
	deal, ok := h.loadDeal(w, r)
	if !ok {
		return
	}
	history, err := h.Store.LoadMetricsBySponsor(r.Context(), deal.SponsorID)
	if err != nil {
		h.writeStoreError(w, r, "failed to load sponsor history", err)
		return
	}
	writeJSON(w, http.StatusOK, toTargetingDTO(sponsorship.OptimizeCampaignTargeting(*deal, history)))
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// Settle settles one deal immediately, whether or not its period ended.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	deal, ok := h.loadDeal(w, r)
	if !ok {
		return
	}
	run, err := h.SettleDeal(r.Context(), *deal)
	if err != nil {
		h.writeStoreError(w, r, "settlement failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementRunDTO(run))
}

func (h *Handler) ListSettlementRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListSettlementRuns(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.writeStoreError(w, r, "failed to list settlement runs", err)
		return
	}

	dtos := make([]SettlementRunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toSettlementRunDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Healthz reports whether the store answers.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) loadDeal(w http.ResponseWriter, r *http.Request) (*sponsorship.Deal, bool) {
	deal, err := h.Store.GetDeal(r.Context(), sponsorship.DealID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeStoreError(w, r, "failed to get deal", err)
		return nil, false
	}
	return deal, true
}

func (h *Handler) writeDeal(w http.ResponseWriter, r *http.Request, status int, deal sponsorship.Deal) {
	dto, err := toDealDTO(deal)
	if err != nil {
		h.writeStoreError(w, r, "failed to encode deal", err)
		return
	}
	writeJSON(w, status, dto)
}

// invalidate drops cached summaries for a deal. Cache failures only log;
// entries still expire by TTL.
func (h *Handler) invalidate(ctx context.Context, dealID sponsorship.DealID) {
	if err := h.Cache.Invalidate(ctx, dealID); err != nil {
		h.Logger.Warn("summary cache invalidation failed",
			zap.String("deal_id", string(dealID)), zap.Error(err))
	}
}

// decode reads a JSON body into dst and runs validator tags. On failure it
// writes a 400 and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return false
	}
	return h.check(w, dst)
}

// decodeOptional is decode for endpoints whose body may be empty.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return h.check(w, dst)
	}
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return false
	}
	return h.check(w, dst)
}

func (h *Handler) check(w http.ResponseWriter, dst any) bool {
	err := h.validate.Struct(dst)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation failed",
			Code:    "validation",
			Details: details,
		})
		return false
	}
	writeError(w, http.StatusBadRequest, "validation failed", err)
	return false
}

// writeStoreError maps engine and store errors to HTTP statuses. Only
// unexpected errors are logged.
func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, message string, err error) {
	switch {
	case sponsorship.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, sponsorship.ErrDuplicateCalculation):
		writeError(w, http.StatusConflict, message, err)
	case sponsorship.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Logger.Error(message,
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a YYYY-MM-DD date", sponsorship.ErrInvalidPeriod, s)
	}
	return t, nil
}

func parsePeriod(start, end string) (sponsorship.Period, error) {
	s, err := parseDate(start)
	if err != nil {
		return sponsorship.Period{}, err
	}
	e, err := parseDate(end)
	if err != nil {
		return sponsorship.Period{}, err
	}
	return sponsorship.NewPeriod(s, e)
}

// periodOrDefault fills missing bounds from def.
func periodOrDefault(start, end string, def sponsorship.Period) (sponsorship.Period, error) {
	if start == "" {
		start = def.Start.Format(dateLayout)
	}
	if end == "" {
		end = def.End.Format(dateLayout)
	}
	return parsePeriod(start, end)
}

func boolQuery(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
