package api

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/sponsorship-engine/sponsorship"
	"go.uber.org/zap"
)

// Settlement run statuses.
const (
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// =============================================================================
// DEAL SETTLEMENT
// =============================================================================

// SettleDeal closes an active deal over its full period:
//
//  1. Calculate every rule and persist the results (idempotent)
//  2. Schedule one payout per payable calculation
//  3. Move the deal to completed
//
// Payout IDs derive from the calculation idempotency key, so retrying a
// failed settlement never schedules the same bonus twice. Every attempt
// is recorded as a settlement run; a failed run is returned together with
// the error.
func (h *Handler) SettleDeal(ctx context.Context, deal sponsorship.Deal) (sponsorship.SettlementRun, error) {
	start := time.Now()
	run := sponsorship.SettlementRun{
		ID:        uuid.NewString(),
		DealID:    deal.ID,
		PeriodEnd: deal.Period.End,
		RunAt:     h.now(),
	}

	payable, err := h.settle(ctx, deal)
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
	} else {
		run.Status = RunCompleted
		run.Calculations = len(payable)
		run.TotalBonus = sponsorship.TotalBonus(payable).String()
	}

	if saveErr := h.Store.SaveSettlementRun(ctx, run); saveErr != nil {
		h.Logger.Error("failed to record settlement run",
			zap.String("deal_id", string(deal.ID)), zap.Error(saveErr))
		if err == nil {
			err = fmt.Errorf("failed to record settlement run: %w", saveErr)
		}
	}
	h.Metrics.SettlementRuns.WithLabelValues(run.Status).Inc()
	h.Metrics.SettlementLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		h.Logger.Warn("deal settlement failed",
			zap.String("deal_id", string(deal.ID)), zap.Error(err))
		return run, err
	}
	h.Logger.Info("deal settled",
		zap.String("deal_id", string(deal.ID)),
		zap.Int("payouts", run.Calculations),
		zap.String("total_bonus", run.TotalBonus))
	return run, nil
}

func (h *Handler) settle(ctx context.Context, deal sponsorship.Deal) ([]sponsorship.BonusCalculation, error) {
	completed, err := sponsorship.Transition(deal, sponsorship.DealCompleted)
	if err != nil {
		return nil, err
	}

	metrics, err := h.Store.LoadMetrics(ctx, deal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics: %w", err)
	}
	calcs := h.Calc.CalculateBonus(deal, metrics, deal.Period)
	h.observeCalculations(calcs)

	stored, _, _, err := h.persistCalculations(ctx, deal.ID, calcs)
	if err != nil {
		return nil, err
	}

	payable := sponsorship.Payable(stored)
	now := h.now()
	for _, c := range payable {
		payout := sponsorship.Payout{
			ID:             sponsorship.PayoutID("settle-" + c.IdempotencyKey),
			DealID:         deal.ID,
			Type:           payoutTypeFor(c.BonusType),
			Amount:         c.BonusAmount,
			Period:         c.Period,
			CalculationIDs: []sponsorship.CalculationID{c.ID},
			Status:         sponsorship.PayoutScheduled,
			CreatedAt:      now,
		}
		if err := h.Store.SavePayout(ctx, payout); err != nil {
			return nil, fmt.Errorf("failed to schedule payout for %s: %w", c.ID, err)
		}
	}

	completed.UpdatedAt = now
	if err := h.Store.SaveDeal(ctx, completed); err != nil {
		return nil, fmt.Errorf("failed to complete deal: %w", err)
	}
	h.invalidate(ctx, deal.ID)
	return payable, nil
}

func payoutTypeFor(bt sponsorship.BonusType) sponsorship.PayoutType {
	if bt == sponsorship.BonusMilestone {
		return sponsorship.PayoutMilestone
	}
	return sponsorship.PayoutBonus
}
