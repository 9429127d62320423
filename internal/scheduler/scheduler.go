// Package scheduler runs the time-triggered side of the tender lifecycle:
// the periodic deadline scan and the lower-frequency stuck-reveal check.
// All authoritative state lives in the store; a restart simply resumes at
// the next tick.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"tendermarket/internal/config"
	"tendermarket/internal/lifecycle"
	"tendermarket/internal/models"
)

// EventRevealPending is raised for closed-workflow tenders whose deadline
// passed but whose owner has not authorized disclosure yet. The scheduler
// never reveals on its own.
const EventRevealPending = "reveal_pending"

type Store interface {
	// DueTenders returns non-deleted tenders in published/locked whose
	// deadline is at or before now.
	DueTenders(ctx context.Context, now time.Time) ([]models.Tender, error)
	// ActiveTenders returns non-deleted tenders still accepting proposals.
	ActiveTenders(ctx context.Context) ([]models.Tender, error)
	// StuckSealedTenders returns closed-workflow tenders sitting in
	// deadline_reached with RevealedAt still null.
	StuckSealedTenders(ctx context.Context) ([]models.Tender, error)
	// SetDaysRemaining updates the informational counter without touching
	// version or audit trail.
	SetDaysRemaining(ctx context.Context, tenderId string, days int) error
}

// Notifier dispatches owner notifications, fire-and-forget.
type Notifier interface {
	NotifyOwner(ctx context.Context, tenderId, ownerId, event string) error
}

type Scheduler struct {
	store    Store
	engine   *lifecycle.Engine
	notifier Notifier
	log      *zap.Logger
	cfg      *config.SchedulerConfig

	scanBusy  atomic.Bool
	stuckBusy atomic.Bool
	now       func() time.Time
}

func NewScheduler(store Store, engine *lifecycle.Engine, notifier Notifier, log *zap.Logger, cfg *config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		store:    store,
		engine:   engine,
		notifier: notifier,
		log:      log,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled, firing the deadline scan and the
// stuck-reveal check on their configured intervals. One immediate scan runs
// on startup to drain deadlines missed while the process was down.
func (s *Scheduler) Run(ctx context.Context) {
	scanTicker := time.NewTicker(s.cfg.ScanInterval)
	defer scanTicker.Stop()
	stuckTicker := time.NewTicker(s.cfg.StuckCheckInterval)
	defer stuckTicker.Stop()

	s.RunDeadlineScan(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-scanTicker.C:
			s.RunDeadlineScan(ctx)
		case <-stuckTicker.C:
			s.RunStuckRevealCheck(ctx)
		}
	}
}

// RunDeadlineScan applies the deadline transition to every due tender.
// Single-flight: an overlapping fire is skipped, never queued. A failure on
// one tender is logged and does not abort the rest of the batch; the next
// tick retries naturally since each transition is idempotent.
func (s *Scheduler) RunDeadlineScan(ctx context.Context) {
	if !s.scanBusy.CompareAndSwap(false, true) {
		s.log.Debug("deadline scan already in progress, skipping")
		return
	}
	defer s.scanBusy.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()

	now := s.now()
	due, err := s.store.DueTenders(ctx, now)
	if err != nil {
		s.log.Error("deadline scan: could not list due tenders", zap.Error(err))
		return
	}

	applied := 0
	for _, tender := range due {
		_, skipped, err := s.engine.ApplyDeadline(ctx, tender, now)
		if err != nil {
			s.log.Error("deadline scan: tender transition failed",
				zap.String("tender", tender.Id), zap.Error(err))
			continue
		}
		if !skipped {
			applied++
		}
	}
	if len(due) > 0 {
		s.log.Info("deadline scan finished",
			zap.Int("due", len(due)), zap.Int("applied", applied))
	}

	s.refreshDaysRemaining(ctx, now)
}

// RunStuckRevealCheck notifies owners of sealed tenders waiting on a reveal.
func (s *Scheduler) RunStuckRevealCheck(ctx context.Context) {
	if !s.stuckBusy.CompareAndSwap(false, true) {
		s.log.Debug("stuck-reveal check already in progress, skipping")
		return
	}
	defer s.stuckBusy.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()

	stuck, err := s.store.StuckSealedTenders(ctx)
	if err != nil {
		s.log.Error("stuck-reveal check: could not list tenders", zap.Error(err))
		return
	}

	for _, tender := range stuck {
		err := s.notifier.NotifyOwner(ctx, tender.Id, tender.OwnerId, EventRevealPending)
		if err != nil {
			s.log.Warn("stuck-reveal check: notification failed",
				zap.String("tender", tender.Id), zap.Error(err))
		}
	}
}

// refreshDaysRemaining is a best-effort side task; its failure never affects
// lifecycle correctness.
func (s *Scheduler) refreshDaysRemaining(ctx context.Context, now time.Time) {
	active, err := s.store.ActiveTenders(ctx)
	if err != nil {
		s.log.Warn("could not list active tenders for days-remaining refresh", zap.Error(err))
		return
	}

	for _, tender := range active {
		days := int(tender.Deadline.Sub(now).Hours() / 24)
		if days < 0 {
			days = 0
		}
		if days == tender.DaysRemaining {
			continue
		}
		if err := s.store.SetDaysRemaining(ctx, tender.Id, days); err != nil {
			s.log.Warn("days-remaining refresh failed",
				zap.String("tender", tender.Id), zap.Error(err))
		}
	}
}
