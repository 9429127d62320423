package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"tendermarket/internal/models"
)

// AddProposal inserts a proposal only while the owning tender still sits in
// one of the allowed statuses. The INSERT..SELECT keeps the status check and
// the insert in a single statement, so a proposal can never attach to a
// tender that already left the submission phase.
func (repo *Repository) AddProposal(ctx context.Context, proposal models.Proposal, allowed []models.TenderStatus) (models.Proposal, error) {
	proposal.Id = uuid.NewString()

	query := `
	INSERT INTO proposals (id, tender_id, author_id, author_role, bid_amount, description)
	SELECT $1, $2, $3, $4, $5, $6
	FROM tenders
	WHERE id = $2
		AND NOT is_deleted
		AND status = ANY($7::tender_status[])
	RETURNING created_at
	`

	err := repo.db.QueryRowContext(ctx, query,
		proposal.Id,
		proposal.TenderId,
		proposal.AuthorId,
		proposal.AuthorRole,
		proposal.BidAmount,
		proposal.Description,
		sliceToSQLList(allowed),
	).Scan(&proposal.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return proposal, models.ErrWrongStatus
	} else if err != nil {
		return proposal, fmt.Errorf("repository.Repository.AddProposal: %w", err)
	}

	return proposal, nil
}

func (repo *Repository) ProposalsByTender(ctx context.Context, tenderId string) ([]models.Proposal, error) {
	query := `
	SELECT id, tender_id, author_id, author_role, bid_amount, description, created_at
	FROM proposals
	WHERE tender_id = $1
	ORDER BY created_at
	`

	rows, err := repo.db.QueryContext(ctx, query, tenderId)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.ProposalsByTender: %w", err)
	}
	defer rows.Close()

	var result []models.Proposal
	var proposal models.Proposal
	for rows.Next() {
		err = rows.Scan(&proposal.Id, &proposal.TenderId, &proposal.AuthorId, &proposal.AuthorRole,
			&proposal.BidAmount, &proposal.Description, &proposal.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.ProposalsByTender: row scan failed: %w", err)
		}
		result = append(result, proposal)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("repository.Repository.ProposalsByTender: %w", rows.Err())
	}

	return result, nil
}

func (repo *Repository) ProposalCount(ctx context.Context, tenderId string) (int, error) {
	var count int
	err := repo.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM proposals WHERE tender_id = $1`, tenderId).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("repository.Repository.ProposalCount: %w", err)
	}
	return count, nil
}
