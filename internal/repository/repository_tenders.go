package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"tendermarket/internal/models"
)

const tenderColumns = `
	id,
	version,
	owner_id,
	organization_id,
	status,
	workflow_type,
	category,
	visibility,
	invite_list,
	name,
	description,
	budget,
	deadline,
	published_at,
	closed_at,
	deadline_reached_at,
	revealed_at,
	days_remaining,
	moderated,
	moderation_reason,
	prev_status,
	is_deleted,
	created_at,
	updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTender(row rowScanner) (models.Tender, error) {
	var tender models.Tender
	var prevStatus sql.NullString

	err := row.Scan(
		&tender.Id,
		&tender.Version,
		&tender.OwnerId,
		&tender.OrganizationId,
		&tender.Status,
		&tender.WorkflowType,
		&tender.Category,
		&tender.Visibility,
		pq.Array(&tender.InviteList),
		&tender.Name,
		&tender.Description,
		&tender.Budget,
		&tender.Deadline,
		&tender.PublishedAt,
		&tender.ClosedAt,
		&tender.DeadlineReachedAt,
		&tender.RevealedAt,
		&tender.DaysRemaining,
		&tender.Moderated,
		&tender.ModerationReason,
		&prevStatus,
		&tender.IsDeleted,
		&tender.CreatedAt,
		&tender.UpdatedAt,
	)
	if err != nil {
		return tender, err
	}

	tender.PrevStatus = models.TenderStatus(prevStatus.String)
	return tender, nil
}

func (repo *Repository) TenderByUUID(ctx context.Context, id string) (models.Tender, error) {
	query := `SELECT` + tenderColumns + ` FROM tenders WHERE id = $1`

	tender, err := scanTender(repo.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return tender, models.ErrNoTender
	} else if err != nil {
		return tender, fmt.Errorf("repository.Repository.TenderByUUID: %w", err)
	}

	return tender, nil
}

func (repo *Repository) AddTender(ctx context.Context, tender models.Tender) (models.Tender, error) {
	tender.Id = uuid.NewString()
	tender.Version = 1

	query := `
	INSERT INTO tenders (
		id, owner_id, organization_id, status, workflow_type, category,
		visibility, invite_list, name, description, budget, deadline
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING created_at, updated_at
	`

	err := repo.db.QueryRowContext(ctx, query,
		tender.Id,
		tender.OwnerId,
		tender.OrganizationId,
		tender.Status,
		tender.WorkflowType,
		tender.Category,
		tender.Visibility,
		pq.Array(tender.InviteList),
		tender.Name,
		tender.Description,
		tender.Budget,
		tender.Deadline,
	).Scan(&tender.CreatedAt, &tender.UpdatedAt)
	if err != nil {
		return tender, fmt.Errorf("repository.Repository.AddTender: %w", err)
	}

	return tender, nil
}

// UpdateTender persists draft-time and pre-deadline field edits. Lifecycle
// fields never travel through here; transitions go via UpdateTenderGuarded.
func (repo *Repository) UpdateTender(ctx context.Context, tender models.Tender) (models.Tender, error) {
	query := `
	UPDATE tenders SET
		name = $2,
		description = $3,
		workflow_type = $4,
		category = $5,
		visibility = $6,
		invite_list = $7,
		budget = $8,
		deadline = $9,
		version = version + 1,
		updated_at = now()
	WHERE id = $1 AND NOT is_deleted
	RETURNING version, updated_at
	`

	err := repo.db.QueryRowContext(ctx, query,
		tender.Id,
		tender.Name,
		tender.Description,
		tender.WorkflowType,
		tender.Category,
		tender.Visibility,
		pq.Array(tender.InviteList),
		tender.Budget,
		tender.Deadline,
	).Scan(&tender.Version, &tender.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tender, models.ErrNoTender
	} else if err != nil {
		return tender, fmt.Errorf("repository.Repository.UpdateTender: %w", err)
	}

	return tender, nil
}

// UpdateTenderGuarded is the compare-and-set write every lifecycle transition
// goes through: the row is updated only while it still matches the guard, and
// the audit entry lands in the same transaction. A guard miss returns
// models.ErrAlreadyTransitioned.
func (repo *Repository) UpdateTenderGuarded(ctx context.Context, tender models.Tender, guard models.TenderGuard, entry models.AuditEntry) (models.Tender, error) {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return tender, fmt.Errorf("repository.Repository.UpdateTenderGuarded: %w", err)
	}

	query := `
	UPDATE tenders SET
		status = $3,
		published_at = $4,
		closed_at = $5,
		deadline_reached_at = $6,
		revealed_at = $7,
		moderated = $8,
		moderation_reason = $9,
		prev_status = NULLIF($10, '')::tender_status,
		version = version + 1,
		updated_at = now()
	WHERE id = $1
		AND NOT is_deleted
		AND status = ANY($2::tender_status[])
		$revealGuard$
	RETURNING version, updated_at
	`

	revealGuard := ""
	if guard.RevealedAtNil {
		revealGuard = "AND revealed_at IS NULL"
	}
	query = strings.Replace(query, "$revealGuard$", revealGuard, 1)

	err = tx.QueryRowContext(ctx, query,
		tender.Id,
		sliceToSQLList(guard.FromStatuses),
		tender.Status,
		tender.PublishedAt,
		tender.ClosedAt,
		tender.DeadlineReachedAt,
		tender.RevealedAt,
		tender.Moderated,
		tender.ModerationReason,
		string(tender.PrevStatus),
	).Scan(&tender.Version, &tender.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		tx.Rollback()
		return tender, models.ErrAlreadyTransitioned
	} else if err != nil {
		return tender, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.UpdateTenderGuarded: %w", err))
	}

	err = appendAudit(ctx, tx, entry)
	if err != nil {
		return tender, wrapRollbackErr(tx, fmt.Errorf("repository.Repository.UpdateTenderGuarded: %w", err))
	}

	err = tx.Commit()
	if err != nil {
		return tender, fmt.Errorf("repository.Repository.UpdateTenderGuarded: %w", err)
	}

	return tender, nil
}

func (repo *Repository) SoftDeleteTender(ctx context.Context, id string) error {
	query := `
	UPDATE tenders SET is_deleted = TRUE, updated_at = now()
	WHERE id = $1
	RETURNING id
	`

	var dummy string
	err := repo.db.QueryRowContext(ctx, query, id).Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNoTender
	} else if err != nil {
		return fmt.Errorf("repository.Repository.SoftDeleteTender: %w", err)
	}

	return nil
}

func (repo *Repository) prepTendersQuery(limit, offset int, ownerId string, categories []models.TenderCategory) (query string, queryParams []interface{}) {
	query = `
	SELECT` + tenderColumns + `
	FROM tenders
	WHERE NOT is_deleted $conditions$
	ORDER BY created_at
	LIMIT $1
	OFFSET $2
	`

	queryParams = make([]interface{}, 0, 4)
	conditions := make([]string, 0, 2)

	if limit <= 0 {
		queryParams = append(queryParams, nil)
	} else {
		queryParams = append(queryParams, limit)
	}
	queryParams = append(queryParams, offset)

	if len(ownerId) > 0 {
		conditions = append(conditions, "owner_id = $$")
		queryParams = append(queryParams, ownerId)
	}

	if len(categories) > 0 {
		conditions = append(conditions, "category = any($$::tender_category[])")
		queryParams = append(queryParams, sliceToSQLList(categories))
	}

	condStr := ""
	if len(conditions) > 0 {
		for i := 0; i < len(conditions); i++ {
			conditions[i] = strings.Replace(conditions[i], "$$", "$"+strconv.Itoa(i+3), -1)
		}
		condStr = "AND " + strings.Join(conditions, " AND ")
	}
	query = strings.Replace(query, "$conditions$", condStr, -1)

	return query, queryParams
}

func (repo *Repository) GetTenders(ctx context.Context, limit, offset int, ownerId string, categories []models.TenderCategory) ([]models.Tender, error) {
	query, queryParams := repo.prepTendersQuery(limit, offset, ownerId, categories)

	rows, err := repo.db.QueryContext(ctx, query, queryParams...)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.GetTenders: %w", err)
	}
	defer rows.Close()

	var result []models.Tender
	for rows.Next() {
		tender, err := scanTender(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.GetTenders: row scan failed: %w", err)
		}
		result = append(result, tender)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("repository.Repository.GetTenders: %w", rows.Err())
	}

	return result, nil
}

//// Scheduler scans

func (repo *Repository) DueTenders(ctx context.Context, now time.Time) ([]models.Tender, error) {
	query := `
	SELECT` + tenderColumns + `
	FROM tenders
	WHERE NOT is_deleted
		AND status IN ('published', 'locked')
		AND deadline <= $1
	ORDER BY deadline
	`
	return repo.queryTenders(ctx, "DueTenders", query, now)
}

func (repo *Repository) ActiveTenders(ctx context.Context) ([]models.Tender, error) {
	query := `
	SELECT` + tenderColumns + `
	FROM tenders
	WHERE NOT is_deleted
		AND status IN ('published', 'locked')
	ORDER BY deadline
	`
	return repo.queryTenders(ctx, "ActiveTenders", query)
}

func (repo *Repository) StuckSealedTenders(ctx context.Context) ([]models.Tender, error) {
	query := `
	SELECT` + tenderColumns + `
	FROM tenders
	WHERE NOT is_deleted
		AND workflow_type = 'closed'
		AND status = 'deadline_reached'
		AND revealed_at IS NULL
	ORDER BY deadline
	`
	return repo.queryTenders(ctx, "StuckSealedTenders", query)
}

// SetDaysRemaining refreshes the informational counter only: no version
// bump, no audit entry.
func (repo *Repository) SetDaysRemaining(ctx context.Context, tenderId string, days int) error {
	_, err := repo.db.ExecContext(ctx, `UPDATE tenders SET days_remaining = $2 WHERE id = $1`, tenderId, days)
	if err != nil {
		return fmt.Errorf("repository.Repository.SetDaysRemaining: %w", err)
	}
	return nil
}

func (repo *Repository) queryTenders(ctx context.Context, op, query string, args ...interface{}) ([]models.Tender, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.%s: %w", op, err)
	}
	defer rows.Close()

	var result []models.Tender
	for rows.Next() {
		tender, err := scanTender(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.%s: row scan failed: %w", op, err)
		}
		result = append(result, tender)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("repository.Repository.%s: %w", op, rows.Err())
	}

	return result, nil
}
