// Package memory is an in-process tender record store with the same port
// semantics as the postgres repository, including guarded compare-and-set
// updates. It backs unit tests and the STORAGE_DRIVER=memory mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tendermarket/internal/models"
)

type Store struct {
	mu        sync.Mutex
	tenders   map[string]models.Tender
	proposals map[string][]models.Proposal
	audit     map[string][]models.AuditEntry
	auditSeq  int64
	now       func() time.Time
}

func NewStore() *Store {
	return &Store{
		tenders:   make(map[string]models.Tender),
		proposals: make(map[string][]models.Proposal),
		audit:     make(map[string][]models.AuditEntry),
		now:       time.Now,
	}
}

func (s *Store) Close() error {
	return nil
}

//// Tenders

func (s *Store) TenderByUUID(ctx context.Context, id string) (models.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tender, ok := s.tenders[id]
	if !ok {
		return models.Tender{}, models.ErrNoTender
	}
	return tender, nil
}

func (s *Store) AddTender(ctx context.Context, tender models.Tender) (models.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	tender.Id = uuid.NewString()
	tender.Version = 1
	tender.CreatedAt = now
	tender.UpdatedAt = now

	s.tenders[tender.Id] = tender
	return tender, nil
}

func (s *Store) UpdateTender(ctx context.Context, tender models.Tender) (models.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tenders[tender.Id]
	if !ok || stored.IsDeleted {
		return models.Tender{}, models.ErrNoTender
	}

	tender.Version = stored.Version + 1
	tender.UpdatedAt = s.now()
	s.tenders[tender.Id] = tender
	return tender, nil
}

func (s *Store) UpdateTenderGuarded(ctx context.Context, tender models.Tender, guard models.TenderGuard, entry models.AuditEntry) (models.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tenders[tender.Id]
	if !ok {
		return models.Tender{}, models.ErrNoTender
	}
	if stored.IsDeleted || !guard.Matches(stored) {
		return models.Tender{}, models.ErrAlreadyTransitioned
	}

	tender.Version = stored.Version + 1
	tender.UpdatedAt = s.now()
	s.tenders[tender.Id] = tender

	s.auditSeq++
	entry.Id = s.auditSeq
	entry.CreatedAt = tender.UpdatedAt
	s.audit[tender.Id] = append(s.audit[tender.Id], entry)

	return tender, nil
}

func (s *Store) SoftDeleteTender(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tender, ok := s.tenders[id]
	if !ok {
		return models.ErrNoTender
	}

	tender.IsDeleted = true
	tender.UpdatedAt = s.now()
	s.tenders[id] = tender
	return nil
}

func (s *Store) GetTenders(ctx context.Context, limit, offset int, ownerId string, categories []models.TenderCategory) ([]models.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.Tender
	for _, tender := range s.tenders {
		if tender.IsDeleted {
			continue
		}
		if len(ownerId) > 0 && tender.OwnerId != ownerId {
			continue
		}
		if len(categories) > 0 && !containsCategory(categories, tender.Category) {
			continue
		}
		result = append(result, tender)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })

	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

//// Scheduler scans

func (s *Store) DueTenders(ctx context.Context, now time.Time) ([]models.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.Tender
	for _, tender := range s.tenders {
		if tender.IsDeleted || !models.AcceptingProposals(tender.Status) {
			continue
		}
		if tender.Deadline.After(now) {
			continue
		}
		result = append(result, tender)
	}
	sortByDeadline(result)
	return result, nil
}

func (s *Store) ActiveTenders(ctx context.Context) ([]models.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.Tender
	for _, tender := range s.tenders {
		if tender.IsDeleted || !models.AcceptingProposals(tender.Status) {
			continue
		}
		result = append(result, tender)
	}
	sortByDeadline(result)
	return result, nil
}

func (s *Store) StuckSealedTenders(ctx context.Context) ([]models.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.Tender
	for _, tender := range s.tenders {
		if tender.IsDeleted || !tender.Sealed() {
			continue
		}
		if tender.Status != models.TenderDeadlineReached {
			continue
		}
		result = append(result, tender)
	}
	sortByDeadline(result)
	return result, nil
}

func (s *Store) SetDaysRemaining(ctx context.Context, tenderId string, days int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tender, ok := s.tenders[tenderId]
	if !ok {
		return models.ErrNoTender
	}

	// informational only: no version bump, no audit
	tender.DaysRemaining = days
	s.tenders[tenderId] = tender
	return nil
}

//// Proposals

func (s *Store) AddProposal(ctx context.Context, proposal models.Proposal, allowed []models.TenderStatus) (models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tender, ok := s.tenders[proposal.TenderId]
	if !ok {
		return models.Proposal{}, models.ErrNoTender
	}
	if tender.IsDeleted || !containsStatus(allowed, tender.Status) {
		return models.Proposal{}, models.ErrWrongStatus
	}

	proposal.Id = uuid.NewString()
	proposal.CreatedAt = s.now()
	s.proposals[proposal.TenderId] = append(s.proposals[proposal.TenderId], proposal)
	return proposal, nil
}

func (s *Store) ProposalsByTender(ctx context.Context, tenderId string) ([]models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proposals := s.proposals[tenderId]
	result := make([]models.Proposal, len(proposals))
	copy(result, proposals)
	return result, nil
}

func (s *Store) ProposalCount(ctx context.Context, tenderId string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.proposals[tenderId]), nil
}

//// Audit

func (s *Store) AuditTrail(ctx context.Context, tenderId string) ([]models.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.audit[tenderId]
	result := make([]models.AuditEntry, len(entries))
	copy(result, entries)
	return result, nil
}

//// Service

func containsCategory(list []models.TenderCategory, c models.TenderCategory) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}

func containsStatus(list []models.TenderStatus, s models.TenderStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortByDeadline(tenders []models.Tender) {
	sort.Slice(tenders, func(i, j int) bool { return tenders[i].Deadline.Before(tenders[j].Deadline) })
}
