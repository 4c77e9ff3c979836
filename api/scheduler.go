/*
scheduler.go - Automated settlement scheduler

PURPOSE:
  Periodically looks for active deals whose period has ended and settles
  them: final bonus calculation, payout scheduling, deal completion.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Detects active deals whose period end is before today
  - Skips deals that already have a completed settlement run
  - Records settlement runs for audit (see Handler.SettleDeal)

CONFIGURATION:
  - scheduler.interval: How often to check (default: 1 hour)
  - scheduler.enabled:  Whether scheduler is active (default: true)

USAGE:
  scheduler := NewSettlementScheduler(handler, cfg.Scheduler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - settlement.go: SettleDeal
  - handlers.go: Settle endpoint (manual settlement)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/sponsorship-engine/config"
	"github.com/warp/sponsorship-engine/sponsorship"
	"go.uber.org/zap"
)

// SettlementScheduler settles ended deals in the background.
type SettlementScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	logger *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// lastRun is read by NextRunTime while a check may be running, so it
	// has its own lock; mu is held across Stop's wait.
	runMu   sync.Mutex
	lastRun time.Time
}

// NewSettlementScheduler creates a new scheduler.
func NewSettlementScheduler(handler *Handler, cfg config.SchedulerConfig) *SettlementScheduler {
	return &SettlementScheduler{
		Handler:       handler,
		CheckInterval: cfg.Interval,
		Enabled:       cfg.Enabled,
		logger:        handler.Logger.Named("scheduler"),
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *SettlementScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	s.logger.Info("started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight check to finish.
func (s *SettlementScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.logger.Info("stopped")
	}
}

func (s *SettlementScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.checkAndProcess(context.Background())

	for {
		select {
		case <-s.ticker.C:
			s.checkAndProcess(context.Background())
		case <-s.stop:
			return
		}
	}
}

// checkAndProcess settles every ended active deal and returns how many
// were settled.
func (s *SettlementScheduler) checkAndProcess(ctx context.Context) int {
	now := s.Handler.now()
	s.runMu.Lock()
	s.lastRun = now
	s.runMu.Unlock()

	today := sponsorship.Day(now)
	store := s.Handler.Store

	deals, err := store.ListDeals(ctx, sponsorship.DealFilter{Status: sponsorship.DealActive})
	if err != nil {
		s.logger.Error("failed to list active deals", zap.Error(err))
		return 0
	}

	processed, skipped, failed := 0, 0, 0
	for _, deal := range deals {
		// Period end is inclusive: a deal ending today is still running
		if !deal.Period.End.Before(today) {
			continue
		}

		done, err := store.IsSettled(ctx, deal.ID, deal.Period.End)
		if err != nil {
			s.logger.Error("failed to check settlement status",
				zap.String("deal_id", string(deal.ID)), zap.Error(err))
			continue
		}
		if done {
			skipped++
			continue
		}

		if _, err := s.Handler.SettleDeal(ctx, deal); err != nil {
			failed++
			continue
		}
		processed++
	}

	if processed > 0 || skipped > 0 || failed > 0 {
		s.logger.Info("settlement check completed",
			zap.Int("processed", processed),
			zap.Int("skipped", skipped),
			zap.Int("failed", failed))
	}
	return processed
}

// RunNow triggers an immediate check (for testing/admin).
func (s *SettlementScheduler) RunNow(ctx context.Context) int {
	return s.checkAndProcess(ctx)
}

// NextRunTime returns when the next scheduled check will occur: one
// interval after the last check, or after now on the handler's clock if
// none has run yet.
func (s *SettlementScheduler) NextRunTime() time.Time {
	s.runMu.Lock()
	last := s.lastRun
	s.runMu.Unlock()

	if last.IsZero() {
		last = s.Handler.now()
	}
	return last.Add(s.CheckInterval)
}
