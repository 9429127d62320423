package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"tendermarket/internal/models"
	"tendermarket/internal/repository/memory"
)

const ownerId = "owner-1"

func newEngine() (*Engine, *memory.Store) {
	store := memory.NewStore()
	return NewEngine(store, zap.NewNop()), store
}

func seedTender(t *testing.T, store *memory.Store, workflow models.WorkflowType, deadline time.Time) models.Tender {
	t.Helper()

	tender, err := store.AddTender(context.Background(), models.Tender{
		OwnerId:      ownerId,
		Status:       models.TenderDraft,
		WorkflowType: workflow,
		Category:     models.CategoryFreelance,
		Visibility:   models.VisibilityPublic,
		Name:         gofakeit.BookTitle(),
		Description:  gofakeit.Sentence(8),
		Budget:       int64(gofakeit.Number(100, 100000)),
		Deadline:     deadline,
	})
	if err != nil {
		t.Fatalf("seed tender: %s", err)
	}
	return tender
}

func TestPublish(t *testing.T) {
	engine, store := newEngine()
	ctx := context.Background()
	deadline := time.Now().Add(time.Hour)

	tests := []struct {
		workflow models.WorkflowType
		want     models.TenderStatus
	}{
		{models.WorkflowOpen, models.TenderPublished},
		{models.WorkflowClosed, models.TenderLocked},
	}

	for _, tc := range tests {
		t.Run(string(tc.workflow), func(t *testing.T) {
			tender := seedTender(t, store, tc.workflow, deadline)

			published, err := engine.Publish(ctx, tender.Id, ownerId)
			if err != nil {
				t.Fatalf("publish: %s", err)
			}
			if published.Status != tc.want {
				t.Errorf("status = %s, want %s", published.Status, tc.want)
			}
			if published.PublishedAt == nil {
				t.Error("PublishedAt should be set")
			}
			if published.Version != tender.Version+1 {
				t.Errorf("version = %d, want %d", published.Version, tender.Version+1)
			}

			trail, err := store.AuditTrail(ctx, tender.Id)
			if err != nil {
				t.Fatalf("audit trail: %s", err)
			}
			if len(trail) != 1 || trail[0].Action != models.AuditPublish {
				t.Errorf("expected single publish audit entry, got %v", trail)
			}
			if trail[0].Actor != ownerId {
				t.Errorf("audit actor = %q, want %q", trail[0].Actor, ownerId)
			}
		})
	}
}

func TestPublishRejections(t *testing.T) {
	engine, store := newEngine()
	ctx := context.Background()

	tender := seedTender(t, store, models.WorkflowOpen, time.Now().Add(time.Hour))

	if _, err := engine.Publish(ctx, tender.Id, "stranger"); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("non-owner publish: got %v, want ErrForbidden", err)
	}
	if _, err := engine.Publish(ctx, uuid(), ownerId); !errors.Is(err, models.ErrNoTender) {
		t.Errorf("missing tender publish: got %v, want ErrNoTender", err)
	}

	stale := seedTender(t, store, models.WorkflowOpen, time.Now().Add(-time.Hour))
	if _, err := engine.Publish(ctx, stale.Id, ownerId); !errors.Is(err, models.ErrDeadlineNotSet) {
		t.Errorf("past deadline publish: got %v, want ErrDeadlineNotSet", err)
	}

	if _, err := engine.Publish(ctx, tender.Id, ownerId); err != nil {
		t.Fatalf("publish: %s", err)
	}
	if _, err := engine.Publish(ctx, tender.Id, ownerId); !errors.Is(err, models.ErrWrongStatus) {
		t.Errorf("double publish: got %v, want ErrWrongStatus", err)
	}
}

func TestApplyDeadline(t *testing.T) {
	engine, store := newEngine()
	ctx := context.Background()
	deadline := time.Now().Add(time.Hour)

	open := seedTender(t, store, models.WorkflowOpen, deadline)
	sealed := seedTender(t, store, models.WorkflowClosed, deadline)
	for _, tender := range []models.Tender{open, sealed} {
		if _, err := engine.Publish(ctx, tender.Id, ownerId); err != nil {
			t.Fatalf("publish: %s", err)
		}
	}

	// before the deadline nothing moves
	open, _ = store.TenderByUUID(ctx, open.Id)
	if _, skipped, err := engine.ApplyDeadline(ctx, open, deadline.Add(-time.Minute)); err != nil || !skipped {
		t.Fatalf("premature scan: skipped = %v, err = %v", skipped, err)
	}

	after := deadline.Add(time.Minute)

	open, skipped, err := engine.ApplyDeadline(ctx, open, after)
	if err != nil || skipped {
		t.Fatalf("open transition: skipped = %v, err = %v", skipped, err)
	}
	if open.Status != models.TenderClosed || open.ClosedAt == nil {
		t.Errorf("open tender: status = %s, ClosedAt = %v", open.Status, open.ClosedAt)
	}

	sealed, _ = store.TenderByUUID(ctx, sealed.Id)
	sealed, skipped, err = engine.ApplyDeadline(ctx, sealed, after)
	if err != nil || skipped {
		t.Fatalf("sealed transition: skipped = %v, err = %v", skipped, err)
	}
	if sealed.Status != models.TenderDeadlineReached || sealed.DeadlineReachedAt == nil {
		t.Errorf("sealed tender: status = %s, DeadlineReachedAt = %v", sealed.Status, sealed.DeadlineReachedAt)
	}
	if sealed.RevealedAt != nil {
		t.Error("deadline transition must not reveal")
	}

	// second pass over already-transitioned tenders is a no-op
	if _, skipped, err = engine.ApplyDeadline(ctx, open, after); err != nil || !skipped {
		t.Fatalf("repeat scan: skipped = %v, err = %v", skipped, err)
	}

	trail, _ := store.AuditTrail(ctx, open.Id)
	if len(trail) != 2 {
		t.Fatalf("expected publish + auto transition entries, got %d", len(trail))
	}
	if trail[1].Action != models.AuditAutoTransition || trail[1].Actor != "" {
		t.Errorf("auto transition entry = %+v", trail[1])
	}
}

func TestRevealFlow(t *testing.T) {
	engine, store := newEngine()
	ctx := context.Background()
	deadline := time.Now().Add(time.Hour)

	tender := seedTender(t, store, models.WorkflowClosed, deadline)
	if _, err := engine.Publish(ctx, tender.Id, ownerId); err != nil {
		t.Fatalf("publish: %s", err)
	}

	// too early: locked, deadline still ahead
	if _, err := engine.Reveal(ctx, tender.Id, models.Caller{Id: ownerId, Role: models.RoleCompany}); !errors.Is(err, models.ErrDeadlineNotReached) {
		t.Fatalf("early reveal: got %v, want ErrDeadlineNotReached", err)
	}
	stored, _ := store.TenderByUUID(ctx, tender.Id)
	if stored.Status != models.TenderLocked || stored.RevealedAt != nil {
		t.Fatalf("failed reveal must not change state: %+v", stored)
	}

	stored, _, err := engine.ApplyDeadline(ctx, stored, deadline.Add(time.Minute))
	if err != nil {
		t.Fatalf("deadline transition: %s", err)
	}

	if _, err = engine.Reveal(ctx, tender.Id, models.Caller{Id: "stranger", Role: models.RoleFreelancer}); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("stranger reveal: got %v, want ErrForbidden", err)
	}

	revealed, err := engine.Reveal(ctx, tender.Id, models.Caller{Id: ownerId, Role: models.RoleCompany})
	if err != nil {
		t.Fatalf("reveal: %s", err)
	}
	if revealed.RevealedAt == nil {
		t.Error("RevealedAt should be set")
	}
	if revealed.Status != models.TenderDeadlineReached {
		t.Errorf("reveal must not change status, got %s", revealed.Status)
	}

	if _, err = engine.Reveal(ctx, tender.Id, models.Caller{Id: ownerId, Role: models.RoleCompany}); !errors.Is(err, models.ErrAlreadyRevealed) {
		t.Errorf("second reveal: got %v, want ErrAlreadyRevealed", err)
	}
}

func TestRevealOpenWorkflow(t *testing.T) {
	engine, store := newEngine()
	ctx := context.Background()

	tender := seedTender(t, store, models.WorkflowOpen, time.Now().Add(time.Hour))
	if _, err := engine.Reveal(ctx, tender.Id, models.Caller{Id: ownerId, Role: models.RoleCompany}); !errors.Is(err, models.ErrNotSealed) {
		t.Errorf("open workflow reveal: got %v, want ErrNotSealed", err)
	}
}

func TestRevealConcurrent(t *testing.T) {
	engine, store := newEngine()
	ctx := context.Background()
	deadline := time.Now().Add(time.Hour)

	tender := seedTender(t, store, models.WorkflowClosed, deadline)
	if _, err := engine.Publish(ctx, tender.Id, ownerId); err != nil {
		t.Fatalf("publish: %s", err)
	}
	stored, _ := store.TenderByUUID(ctx, tender.Id)
	if _, _, err := engine.ApplyDeadline(ctx, stored, deadline.Add(time.Minute)); err != nil {
		t.Fatalf("deadline transition: %s", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Reveal(ctx, tender.Id, models.Caller{Id: ownerId, Role: models.RoleCompany})
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, models.ErrAlreadyRevealed):
		default:
			t.Errorf("unexpected reveal error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("reveal winners = %d, want exactly 1", wins)
	}

	trail, _ := store.AuditTrail(ctx, tender.Id)
	var reveals int
	for _, entry := range trail {
		if entry.Action == models.AuditReveal {
			reveals++
		}
	}
	if reveals != 1 {
		t.Errorf("reveal audit entries = %d, want exactly 1", reveals)
	}
}

func TestModerateFlagAndApprove(t *testing.T) {
	engine, store := newEngine()
	ctx := context.Background()
	admin := models.Caller{Id: "admin-1", Role: models.RoleAdmin}

	tender := seedTender(t, store, models.WorkflowOpen, time.Now().Add(time.Hour))
	if _, err := engine.Publish(ctx, tender.Id, ownerId); err != nil {
		t.Fatalf("publish: %s", err)
	}

	if _, err := engine.Moderate(ctx, tender.Id, ModerationFlag, models.Caller{Id: ownerId, Role: models.RoleCompany}, "spam"); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("non-admin flag: got %v, want ErrForbidden", err)
	}
	if _, err := engine.Moderate(ctx, tender.Id, ModerationApprove, admin, ""); !errors.Is(err, models.ErrNotFlagged) {
		t.Fatalf("approve unflagged: got %v, want ErrNotFlagged", err)
	}

	flagged, err := engine.Moderate(ctx, tender.Id, ModerationFlag, admin, "misleading description")
	if err != nil {
		t.Fatalf("flag: %s", err)
	}
	if flagged.Status != models.TenderCancelled || !flagged.Moderated {
		t.Errorf("flagged tender = %+v", flagged)
	}
	if flagged.PrevStatus != models.TenderPublished {
		t.Errorf("PrevStatus = %s, want published", flagged.PrevStatus)
	}

	restored, err := engine.Moderate(ctx, tender.Id, ModerationApprove, admin, "")
	if err != nil {
		t.Fatalf("approve: %s", err)
	}
	if restored.Status != models.TenderPublished || restored.Moderated {
		t.Errorf("restored tender = %+v", restored)
	}

	trail, _ := store.AuditTrail(ctx, tender.Id)
	if len(trail) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(trail))
	}
	if trail[1].Action != models.AuditModerateFlag || trail[1].Details != "misleading description" {
		t.Errorf("flag entry = %+v", trail[1])
	}
	if trail[2].Action != models.AuditModerateOk {
		t.Errorf("approve entry = %+v", trail[2])
	}
}

// A tender approved after its deadline elapsed lands in its deadline outcome
// instead of resurrecting the submission phase.
func TestModerateApproveAfterDeadline(t *testing.T) {
	engine, store := newEngine()
	ctx := context.Background()
	deadline := time.Now().Add(time.Hour)
	admin := models.Caller{Id: "admin-1", Role: models.RoleAdmin}

	tender := seedTender(t, store, models.WorkflowOpen, deadline)
	if _, err := engine.Publish(ctx, tender.Id, ownerId); err != nil {
		t.Fatalf("publish: %s", err)
	}
	if _, err := engine.Moderate(ctx, tender.Id, ModerationFlag, admin, "under review"); err != nil {
		t.Fatalf("flag: %s", err)
	}

	engine.now = func() time.Time { return deadline.Add(time.Minute) }

	restored, err := engine.Moderate(ctx, tender.Id, ModerationApprove, admin, "")
	if err != nil {
		t.Fatalf("approve: %s", err)
	}
	if restored.Status != models.TenderClosed {
		t.Errorf("status = %s, want closed", restored.Status)
	}
	if restored.ClosedAt == nil {
		t.Error("ClosedAt should be set on deadline-aware approval")
	}
}

func TestModerateFlagTerminal(t *testing.T) {
	engine, store := newEngine()
	ctx := context.Background()
	deadline := time.Now().Add(time.Hour)
	admin := models.Caller{Id: "admin-1", Role: models.RoleAdmin}

	tender := seedTender(t, store, models.WorkflowOpen, deadline)
	if _, err := engine.Publish(ctx, tender.Id, ownerId); err != nil {
		t.Fatalf("publish: %s", err)
	}
	stored, _ := store.TenderByUUID(ctx, tender.Id)
	if _, _, err := engine.ApplyDeadline(ctx, stored, deadline.Add(time.Minute)); err != nil {
		t.Fatalf("deadline transition: %s", err)
	}

	if _, err := engine.Moderate(ctx, tender.Id, ModerationFlag, admin, "too late"); !errors.Is(err, models.ErrWrongStatus) {
		t.Errorf("flag closed tender: got %v, want ErrWrongStatus", err)
	}
}

// Outside moderation, every transition moves strictly forward.
func TestLifecycleMonotonic(t *testing.T) {
	engine, store := newEngine()
	ctx := context.Background()
	deadline := time.Now().Add(time.Hour)

	for _, workflow := range []models.WorkflowType{models.WorkflowOpen, models.WorkflowClosed} {
		tender := seedTender(t, store, workflow, deadline)
		ranks := []int{models.StatusRank(tender.Status)}

		tender, err := engine.Publish(ctx, tender.Id, ownerId)
		if err != nil {
			t.Fatalf("publish: %s", err)
		}
		ranks = append(ranks, models.StatusRank(tender.Status))

		tender, _, err = engine.ApplyDeadline(ctx, tender, deadline.Add(time.Minute))
		if err != nil {
			t.Fatalf("deadline transition: %s", err)
		}
		ranks = append(ranks, models.StatusRank(tender.Status))

		for i := 1; i < len(ranks); i++ {
			if ranks[i] <= ranks[i-1] {
				t.Errorf("%s workflow: rank %d -> %d is not a forward move", workflow, ranks[i-1], ranks[i])
			}
		}
	}
}

func uuid() string {
	return "00000000-0000-0000-0000-00000000" + gofakeit.DigitN(4)
}
