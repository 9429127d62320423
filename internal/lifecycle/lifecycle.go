// Package lifecycle implements the tender state machine: which transitions
// are legal, their preconditions, and their side effects (once-only
// timestamps, audit entries). Manual actions report precondition violations
// as sentinel errors; automatic transitions lose races silently.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tendermarket/internal/models"
)

// Store is the persistence port the engine drives. Guarded updates are a
// single atomic read-modify-write: the change and its audit entry land
// together, or the guard misses and models.ErrAlreadyTransitioned comes back.
type Store interface {
	TenderByUUID(ctx context.Context, id string) (models.Tender, error)
	UpdateTenderGuarded(ctx context.Context, tender models.Tender, guard models.TenderGuard, entry models.AuditEntry) (models.Tender, error)
}

type Engine struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

func NewEngine(store Store, log *zap.Logger) *Engine {
	return &Engine{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// Publish moves an owner's draft into the submission-accepting phase.
// Open-workflow tenders land in published; closed-workflow tenders lock
// immediately, signaling sealed submissions with no further edits.
func (e *Engine) Publish(ctx context.Context, tenderId, actorId string) (models.Tender, error) {
	tender, err := e.store.TenderByUUID(ctx, tenderId)
	if err != nil {
		return models.Tender{}, fmt.Errorf("lifecycle.Engine.Publish: %w", err)
	}

	if tender.IsDeleted {
		return models.Tender{}, models.ErrTenderDeleted
	}
	if actorId != tender.OwnerId {
		return models.Tender{}, models.ErrForbidden
	}
	if tender.Status != models.TenderDraft {
		return models.Tender{}, models.ErrWrongStatus
	}

	now := e.now()
	if !tender.Deadline.After(now) {
		return models.Tender{}, models.ErrDeadlineNotSet
	}

	tender.Status = models.TenderPublished
	if tender.WorkflowType == models.WorkflowClosed {
		tender.Status = models.TenderLocked
	}
	tender.PublishedAt = &now

	tender, err = e.store.UpdateTenderGuarded(ctx, tender,
		models.TenderGuard{FromStatuses: []models.TenderStatus{models.TenderDraft}},
		models.AuditEntry{
			TenderId: tender.Id,
			Action:   models.AuditPublish,
			Actor:    actorId,
			Details:  string(tender.Status),
		})
	if err != nil {
		return models.Tender{}, fmt.Errorf("lifecycle.Engine.Publish: %w", err)
	}

	e.log.Info("tender published",
		zap.String("tender", tender.Id),
		zap.String("status", string(tender.Status)))
	return tender, nil
}

// ApplyDeadline drives a single tender through its deadline transition:
// published/locked become closed (open workflow) or deadline_reached (closed
// workflow). Skips, including guard misses against a concurrent transition,
// are reported via the bool and are not errors; the scan is idempotent.
func (e *Engine) ApplyDeadline(ctx context.Context, tender models.Tender, now time.Time) (models.Tender, bool, error) {
	if tender.IsDeleted || !models.AcceptingProposals(tender.Status) {
		return tender, true, nil
	}
	if tender.Deadline.After(now) {
		// no premature closure
		return tender, true, nil
	}

	if tender.WorkflowType == models.WorkflowOpen {
		tender.Status = models.TenderClosed
		tender.ClosedAt = &now
	} else {
		tender.Status = models.TenderDeadlineReached
		tender.DeadlineReachedAt = &now
	}

	updated, err := e.store.UpdateTenderGuarded(ctx, tender,
		models.TenderGuard{FromStatuses: []models.TenderStatus{models.TenderPublished, models.TenderLocked}},
		models.AuditEntry{
			TenderId: tender.Id,
			Action:   models.AuditAutoTransition,
			Details:  "deadline elapsed: " + string(tender.Status),
		})
	if errors.Is(err, models.ErrAlreadyTransitioned) {
		e.log.Debug("deadline transition lost race, skipping", zap.String("tender", tender.Id))
		return tender, true, nil
	}
	if err != nil {
		return tender, false, fmt.Errorf("lifecycle.Engine.ApplyDeadline: %w", err)
	}

	e.log.Info("deadline transition applied",
		zap.String("tender", updated.Id),
		zap.String("status", string(updated.Status)))
	return updated, false, nil
}

// Reveal unseals a closed-workflow tender's proposals after its deadline.
// It is owner/admin triggered, irreversible, and single-shot: the update is
// guarded on RevealedAt still being null, so of two concurrent calls exactly
// one wins and the loser gets ErrAlreadyRevealed.
func (e *Engine) Reveal(ctx context.Context, tenderId string, actor models.Caller) (models.Tender, error) {
	tender, err := e.store.TenderByUUID(ctx, tenderId)
	if err != nil {
		return models.Tender{}, fmt.Errorf("lifecycle.Engine.Reveal: %w", err)
	}

	if tender.IsDeleted {
		return models.Tender{}, models.ErrTenderDeleted
	}
	if actor.Id != tender.OwnerId && !actor.IsAdmin() {
		return models.Tender{}, models.ErrForbidden
	}
	if tender.WorkflowType != models.WorkflowClosed {
		return models.Tender{}, models.ErrNotSealed
	}
	if tender.RevealedAt != nil {
		return models.Tender{}, models.ErrAlreadyRevealed
	}
	if models.AcceptingProposals(tender.Status) {
		return models.Tender{}, models.ErrDeadlineNotReached
	}
	if tender.Status != models.TenderDeadlineReached {
		return models.Tender{}, models.ErrWrongStatus
	}

	now := e.now()
	tender.RevealedAt = &now

	tender, err = e.store.UpdateTenderGuarded(ctx, tender,
		models.TenderGuard{
			FromStatuses:  []models.TenderStatus{models.TenderDeadlineReached},
			RevealedAtNil: true,
		},
		models.AuditEntry{
			TenderId: tender.Id,
			Action:   models.AuditReveal,
			Actor:    actor.Id,
		})
	if errors.Is(err, models.ErrAlreadyTransitioned) {
		return models.Tender{}, models.ErrAlreadyRevealed
	}
	if err != nil {
		return models.Tender{}, fmt.Errorf("lifecycle.Engine.Reveal: %w", err)
	}

	e.log.Info("tender revealed",
		zap.String("tender", tender.Id),
		zap.String("actor", actor.Id))
	return tender, nil
}

type ModerationAction string

const (
	ModerationFlag    ModerationAction = "flag"
	ModerationApprove ModerationAction = "approve"
)

func ValidModerationAction(a ModerationAction) bool {
	return a == ModerationFlag || a == ModerationApprove
}

// Moderate applies an admin override. Flagging forces any non-terminal
// tender to cancelled out of band from the deadline flow; approving a
// flagged tender lands it in a deadline-aware recomputation of its prior
// status rather than blindly restoring it.
func (e *Engine) Moderate(ctx context.Context, tenderId string, action ModerationAction, actor models.Caller, reason string) (models.Tender, error) {
	if !actor.IsAdmin() {
		return models.Tender{}, models.ErrForbidden
	}

	tender, err := e.store.TenderByUUID(ctx, tenderId)
	if err != nil {
		return models.Tender{}, fmt.Errorf("lifecycle.Engine.Moderate: %w", err)
	}
	if tender.IsDeleted {
		return models.Tender{}, models.ErrTenderDeleted
	}

	switch action {
	case ModerationFlag:
		return e.flag(ctx, tender, actor, reason)
	case ModerationApprove:
		return e.approve(ctx, tender, actor)
	default:
		return models.Tender{}, models.ErrWrongStatus
	}
}

func (e *Engine) flag(ctx context.Context, tender models.Tender, actor models.Caller, reason string) (models.Tender, error) {
	// closed and cancelled are terminal for moderation
	if tender.Status == models.TenderClosed || tender.Status == models.TenderCancelled {
		return models.Tender{}, models.ErrWrongStatus
	}

	from := tender.Status
	tender.PrevStatus = from
	tender.Status = models.TenderCancelled
	tender.Moderated = true
	tender.ModerationReason = reason

	tender, err := e.store.UpdateTenderGuarded(ctx, tender,
		models.TenderGuard{FromStatuses: []models.TenderStatus{from}},
		models.AuditEntry{
			TenderId: tender.Id,
			Action:   models.AuditModerateFlag,
			Actor:    actor.Id,
			Details:  reason,
		})
	if err != nil {
		return models.Tender{}, fmt.Errorf("lifecycle.Engine.flag: %w", err)
	}

	e.log.Info("tender flagged by moderation",
		zap.String("tender", tender.Id),
		zap.String("admin", actor.Id),
		zap.String("reason", reason))
	return tender, nil
}

func (e *Engine) approve(ctx context.Context, tender models.Tender, actor models.Caller) (models.Tender, error) {
	if tender.Status != models.TenderCancelled || !tender.Moderated {
		return models.Tender{}, models.ErrNotFlagged
	}

	now := e.now()
	target := tender.PrevStatus

	// If the deadline elapsed while the tender sat cancelled, restoring the
	// submission status would resurrect an expired tender; land it in its
	// deadline outcome instead.
	if models.AcceptingProposals(target) && !tender.Deadline.After(now) {
		if tender.WorkflowType == models.WorkflowOpen {
			target = models.TenderClosed
			if tender.ClosedAt == nil {
				tender.ClosedAt = &now
			}
		} else {
			target = models.TenderDeadlineReached
			if tender.DeadlineReachedAt == nil {
				tender.DeadlineReachedAt = &now
			}
		}
	}

	tender.Status = target
	tender.Moderated = false
	tender.ModerationReason = ""
	tender.PrevStatus = ""

	tender, err := e.store.UpdateTenderGuarded(ctx, tender,
		models.TenderGuard{FromStatuses: []models.TenderStatus{models.TenderCancelled}},
		models.AuditEntry{
			TenderId: tender.Id,
			Action:   models.AuditModerateOk,
			Actor:    actor.Id,
			Details:  "restored to " + string(target),
		})
	if err != nil {
		return models.Tender{}, fmt.Errorf("lifecycle.Engine.approve: %w", err)
	}

	e.log.Info("tender moderation cleared",
		zap.String("tender", tender.Id),
		zap.String("admin", actor.Id),
		zap.String("status", string(tender.Status)))
	return tender, nil
}
