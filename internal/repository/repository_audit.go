package repository

import (
	"context"
	"database/sql"
	"fmt"

	"tendermarket/internal/models"
)

// appendAudit writes a trail entry inside the caller's transaction, so the
// entry and the transition it records commit or roll back together.
func appendAudit(ctx context.Context, tx *sql.Tx, entry models.AuditEntry) error {
	query := `
	INSERT INTO audit_log (tender_id, action, actor, details)
	VALUES ($1, $2, $3, $4)
	`

	_, err := tx.ExecContext(ctx, query, entry.TenderId, entry.Action, entry.Actor, entry.Details)
	if err != nil {
		return fmt.Errorf("repository.appendAudit: %w", err)
	}
	return nil
}

// AuditTrail returns the append-only history of a tender, oldest first. The
// core only writes this trail; reads serve the API and dispute resolution.
func (repo *Repository) AuditTrail(ctx context.Context, tenderId string) ([]models.AuditEntry, error) {
	query := `
	SELECT id, tender_id, action, actor, details, created_at
	FROM audit_log
	WHERE tender_id = $1
	ORDER BY id
	`

	rows, err := repo.db.QueryContext(ctx, query, tenderId)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.AuditTrail: %w", err)
	}
	defer rows.Close()

	var result []models.AuditEntry
	var entry models.AuditEntry
	for rows.Next() {
		err = rows.Scan(&entry.Id, &entry.TenderId, &entry.Action, &entry.Actor, &entry.Details, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.AuditTrail: row scan failed: %w", err)
		}
		result = append(result, entry)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("repository.Repository.AuditTrail: %w", rows.Err())
	}

	return result, nil
}
