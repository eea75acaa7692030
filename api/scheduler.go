/*
scheduler.go - Automated finance-charge scheduler

PURPOSE:
  Periodically runs the accrual engine so past-due invoices pick up their
  finance charges without anyone pressing the button.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick runs one batch; invoices left over are picked up next tick
  - An empty batch is normal and logged at debug only

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour)
  - BatchSize:     Invoices per run (default: engine default)
  - Enabled:       Whether scheduler is active (default: true)

USAGE:
  scheduler := NewChargeScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: GenerateCharges endpoint (manual runs)
  - apr/engine.go: the engine itself
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clearbook/finance-engine/ledger"
)

// ChargeScheduler runs the accrual engine on a fixed interval.
type ChargeScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	BatchSize     int
	Enabled       bool
	Log           zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewChargeScheduler creates a new scheduler around the handler's engine.
func NewChargeScheduler(h *Handler, log zerolog.Logger) *ChargeScheduler {
	return &ChargeScheduler{
		Handler:       h,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Log:           log,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *ChargeScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Log.Info().Msg("scheduler disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)
	go s.run()

	s.Log.Info().Dur("interval", s.CheckInterval).Msg("scheduler started")
}

// Stop stops the scheduler and waits for an in-flight run to finish.
// Safe to call more than once.
func (s *ChargeScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.ticker = nil
	close(s.stop)
	s.wg.Wait()
	s.Log.Info().Msg("scheduler stopped")
}

// RunNow triggers an immediate run (for testing/admin).
func (s *ChargeScheduler) RunNow() {
	s.runOnce()
}

func (s *ChargeScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.runOnce()

	for {
		select {
		case <-s.ticker.C:
			s.runOnce()
		case <-s.stop:
			return
		}
	}
}

func (s *ChargeScheduler) runOnce() {
	ctx := context.Background()

	report, err := s.Handler.Engine.Run(ctx, ledger.Today(), s.BatchSize)
	if err != nil {
		if ledger.IsNoWork(err) {
			s.Log.Debug().Msg("scheduler: nothing past due")
			return
		}
		s.Log.Error().Err(err).Msg("scheduler: charge run failed")
		return
	}

	recordRun(report)
	if len(report.Created) > 0 || len(report.Failures) > 0 {
		s.Log.Info().
			Int("processed", report.Processed).
			Int("created", len(report.Created)).
			Int("failed", len(report.Failures)).
			Msg("scheduler: charge run completed")
	}
}
