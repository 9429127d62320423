package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"tendermarket/internal/access"
	"tendermarket/internal/lifecycle"
	"tendermarket/internal/models"
)

// Store is everything the request-facing operations need from persistence.
// The lifecycle engine drives its own, narrower port; both are satisfied by
// the same repository.
type Store interface {
	TenderByUUID(ctx context.Context, id string) (models.Tender, error)
	AddTender(ctx context.Context, tender models.Tender) (models.Tender, error)
	UpdateTender(ctx context.Context, tender models.Tender) (models.Tender, error)
	SoftDeleteTender(ctx context.Context, id string) error
	GetTenders(ctx context.Context, limit, offset int, ownerId string, categories []models.TenderCategory) ([]models.Tender, error)

	AddProposal(ctx context.Context, proposal models.Proposal, allowed []models.TenderStatus) (models.Proposal, error)
	ProposalsByTender(ctx context.Context, tenderId string) ([]models.Proposal, error)
	ProposalCount(ctx context.Context, tenderId string) (int, error)

	AuditTrail(ctx context.Context, tenderId string) ([]models.AuditEntry, error)
}

type Service struct {
	store  Store
	engine *lifecycle.Engine
	log    *zap.Logger
	now    func() time.Time
}

func NewService(store Store, engine *lifecycle.Engine, log *zap.Logger) *Service {
	return &Service{
		store:  store,
		engine: engine,
		log:    log,
		now:    time.Now,
	}
}

//// Tenders

func (s *Service) AddTender(ctx context.Context, caller models.Caller, tender models.Tender) (models.Tender, error) {
	// only company accounts own tenders
	if caller.Role != models.RoleCompany {
		return models.Tender{}, models.ErrForbidden
	}

	tender.OwnerId = caller.Id
	tender.Status = models.TenderDraft
	if err := validateTender(tender); err != nil {
		return models.Tender{}, err
	}

	tender, err := s.store.AddTender(ctx, tender)
	if err != nil {
		return models.Tender{}, fmt.Errorf("service.Service.AddTender: %w", err)
	}
	return tender, nil
}

func (s *Service) GetTender(ctx context.Context, caller models.Caller, tenderId string) (models.Tender, error) {
	tender, err := s.store.TenderByUUID(ctx, tenderId)
	if err != nil {
		return models.Tender{}, fmt.Errorf("service.Service.GetTender: %w", err)
	}

	if !access.CanView(tender, caller) {
		return models.Tender{}, models.ErrForbidden
	}
	return tender, nil
}

func (s *Service) GetTenders(ctx context.Context, caller models.Caller, limit, offset int, categories []models.TenderCategory) ([]models.Tender, error) {
	tenders, err := s.store.GetTenders(ctx, limit, offset, "", categories)
	if err != nil {
		return nil, fmt.Errorf("service.Service.GetTenders: %w", err)
	}

	visible := make([]models.Tender, 0, len(tenders))
	for _, tender := range tenders {
		if access.CanView(tender, caller) {
			visible = append(visible, tender)
		}
	}
	return visible, nil
}

func (s *Service) OwnerTenders(ctx context.Context, caller models.Caller, limit, offset int) ([]models.Tender, error) {
	tenders, err := s.store.GetTenders(ctx, limit, offset, caller.Id, nil)
	if err != nil {
		return nil, fmt.Errorf("service.Service.OwnerTenders: %w", err)
	}
	return tenders, nil
}

func (s *Service) EditTender(ctx context.Context, caller models.Caller, tenderId string, changes map[string]string) (models.Tender, error) {
	tender, err := s.store.TenderByUUID(ctx, tenderId)
	if err != nil {
		return models.Tender{}, fmt.Errorf("service.Service.EditTender: %w", err)
	}

	if !access.CanEdit(tender, caller.Id) {
		if caller.Id == tender.OwnerId && tender.WorkflowType == models.WorkflowClosed {
			// sealed-bid immutability, no bypass for the owner either
			return models.Tender{}, models.ErrSealedImmutable
		}
		if caller.Id == tender.OwnerId {
			return models.Tender{}, models.ErrWrongStatus
		}
		return models.Tender{}, models.ErrForbidden
	}

	if err := applyChanges(&tender, changes); err != nil {
		return models.Tender{}, err
	}
	if err := validateTender(tender); err != nil {
		return models.Tender{}, err
	}

	tender, err = s.store.UpdateTender(ctx, tender)
	if err != nil {
		return models.Tender{}, fmt.Errorf("service.Service.EditTender: %w", err)
	}
	return tender, nil
}

func (s *Service) DeleteTender(ctx context.Context, caller models.Caller, tenderId string) error {
	tender, err := s.store.TenderByUUID(ctx, tenderId)
	if err != nil {
		return fmt.Errorf("service.Service.DeleteTender: %w", err)
	}

	if caller.Id != tender.OwnerId && !caller.IsAdmin() {
		return models.ErrForbidden
	}

	err = s.store.SoftDeleteTender(ctx, tenderId)
	if err != nil {
		return fmt.Errorf("service.Service.DeleteTender: %w", err)
	}
	return nil
}

//// Lifecycle actions

func (s *Service) PublishTender(ctx context.Context, caller models.Caller, tenderId string) (models.Tender, error) {
	return s.engine.Publish(ctx, tenderId, caller.Id)
}

func (s *Service) RevealProposals(ctx context.Context, caller models.Caller, tenderId string) (models.Tender, error) {
	return s.engine.Reveal(ctx, tenderId, caller)
}

func (s *Service) ModerateTender(ctx context.Context, caller models.Caller, tenderId string, action lifecycle.ModerationAction, reason string) (models.Tender, error) {
	return s.engine.Moderate(ctx, tenderId, action, caller, reason)
}

//// Proposals

func (s *Service) SubmitProposal(ctx context.Context, caller models.Caller, proposal models.Proposal) (models.Proposal, error) {
	tender, err := s.store.TenderByUUID(ctx, proposal.TenderId)
	if err != nil {
		return models.Proposal{}, fmt.Errorf("service.Service.SubmitProposal: %w", err)
	}

	now := s.now()
	if !access.CanApply(tender, caller, now) {
		return models.Proposal{}, applyRejection(tender, caller, now)
	}

	if proposal.BidAmount <= 0 || proposal.BidAmount > models.MaxBidFactor*tender.Budget {
		return models.Proposal{}, models.ErrBidTooLarge
	}

	proposal.AuthorId = caller.Id
	proposal.AuthorRole = caller.Role

	// guarded insert: the proposal only attaches while the tender is still
	// in a submission-accepting status
	proposal, err = s.store.AddProposal(ctx, proposal,
		[]models.TenderStatus{models.TenderPublished, models.TenderLocked})
	if err != nil {
		return models.Proposal{}, fmt.Errorf("service.Service.SubmitProposal: %w", err)
	}
	return proposal, nil
}

func (s *Service) TenderProposals(ctx context.Context, caller models.Caller, tenderId string) ([]models.Proposal, error) {
	tender, err := s.store.TenderByUUID(ctx, tenderId)
	if err != nil {
		return nil, fmt.Errorf("service.Service.TenderProposals: %w", err)
	}

	count, err := s.store.ProposalCount(ctx, tenderId)
	if err != nil {
		return nil, fmt.Errorf("service.Service.TenderProposals: %w", err)
	}

	if !access.CanViewProposals(tender, caller, count) {
		if tender.Sealed() {
			return nil, models.ErrProposalsSealed
		}
		return nil, models.ErrForbidden
	}

	proposals, err := s.store.ProposalsByTender(ctx, tenderId)
	if err != nil {
		return nil, fmt.Errorf("service.Service.TenderProposals: %w", err)
	}
	return proposals, nil
}

//// Audit

func (s *Service) TenderAudit(ctx context.Context, caller models.Caller, tenderId string) ([]models.AuditEntry, error) {
	tender, err := s.store.TenderByUUID(ctx, tenderId)
	if err != nil {
		return nil, fmt.Errorf("service.Service.TenderAudit: %w", err)
	}

	if caller.Id != tender.OwnerId && !caller.IsAdmin() {
		return nil, models.ErrForbidden
	}

	entries, err := s.store.AuditTrail(ctx, tenderId)
	if err != nil {
		return nil, fmt.Errorf("service.Service.TenderAudit: %w", err)
	}
	return entries, nil
}

//// Service

func validateTender(t models.Tender) error {
	if len(t.Name) == 0 || len(t.Name) > 100 || len(t.Description) > 500 {
		return models.ErrWrongStatus
	}
	if !models.ValidWorkflowType(t.WorkflowType) || !models.ValidTenderCategory(t.Category) ||
		!models.ValidTenderVisibility(t.Visibility) {
		return models.ErrWrongStatus
	}
	if t.Budget <= 0 {
		return models.ErrWrongStatus
	}
	return nil
}

// applyChanges merges the allowed change set into a tender the caller may
// edit. Deadline, budget, category and workflow type are draft-only fields;
// workflow type in particular is immutable from publication onward, since
// flipping it would break the sealed-bid guarantee.
func applyChanges(t *models.Tender, changes map[string]string) error {
	draft := t.Status == models.TenderDraft

	for key, val := range changes {
		switch key {
		case "name":
			t.Name = val
		case "description":
			t.Description = val
		case "visibility":
			t.Visibility = models.TenderVisibility(val)
		case "workflowType":
			if !draft {
				return models.ErrWorkflowImmutable
			}
			t.WorkflowType = models.WorkflowType(val)
		case "category":
			if !draft {
				return models.ErrWrongStatus
			}
			t.Category = models.TenderCategory(val)
		case "budget":
			if !draft {
				return models.ErrWrongStatus
			}
			budget, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return models.ErrWrongStatus
			}
			t.Budget = budget
		case "deadline":
			if !draft {
				return models.ErrWrongStatus
			}
			deadline, err := time.Parse(time.RFC3339, val)
			if err != nil {
				return models.ErrDeadlineNotSet
			}
			t.Deadline = deadline
		default:
			return models.ErrWrongStatus
		}
	}
	return nil
}

// applyRejection maps a failed CanApply gate to its specific reason, checked
// in the same order the evaluator applies its rules.
func applyRejection(tender models.Tender, caller models.Caller, now time.Time) error {
	switch {
	case tender.IsDeleted:
		return models.ErrTenderDeleted
	case !models.AcceptingProposals(tender.Status):
		return models.ErrWrongStatus
	case !now.Before(tender.Deadline):
		return models.ErrDeadlinePassed
	case caller.Role != tender.Category.ApplicantRole():
		return models.ErrWrongRole
	case tender.Visibility == models.VisibilityInviteOnly && !tender.Invited(caller.Id):
		return models.ErrNotInvited
	default:
		return models.ErrForbidden
	}
}
