package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tendermarket/internal/config"
	"tendermarket/internal/models"

	postgres "tendermarket/internal/repository/db"
)

// Repository is the postgres-backed tender record store. Per-document
// atomicity and the guarded updates below are what make the request path and
// the background scanner safe to run concurrently.
type Repository struct {
	db  *sql.DB
	cfg *config.PostgresConfig
}

func NewRepository(db *sql.DB, cfg *config.PostgresConfig) (*Repository, error) {
	var err error

	repo := &Repository{
		db:  db,
		cfg: cfg,
	}

	if repo.cfg == nil {
		repo.cfg, err = config.NewPostgresConfig()
		if err != nil {
			return nil, fmt.Errorf("repository.NewRepository: could not load postgres config: %w", err)
		}
	}

	if repo.db == nil {
		repo.db, err = postgres.NewPostgresDB(repo.cfg)
		if err != nil {
			return nil, fmt.Errorf("repository.NewRepository: could not open postgres db: %w", err)
		}
	}

	if repo.cfg.AutoMigrateUp == "true" {
		err = repo.MigrateUp()
		if err != nil {
			return nil, err
		}
	}

	return repo, nil
}

func (repo *Repository) MigrateUp() error {
	err := postgres.MigrateUp(repo.db, repo.cfg.MigrationsURL)
	if err != nil {
		return fmt.Errorf("repository.Repository.MigrateUp: %w", err)
	}
	return nil
}

func (repo *Repository) MigrateDown() error {
	err := postgres.MigrateDown(repo.db, repo.cfg.MigrationsURL)
	if err != nil {
		return fmt.Errorf("repository.Repository.MigrateDown: %w", err)
	}
	return nil
}

func (repo *Repository) Close() error {
	var migErr error
	if repo.cfg.AutoMigrateDown == "true" {
		migErr = repo.MigrateDown()
	}

	err := repo.db.Close()
	return errors.Join(migErr, err)
}

//// Service

func wrapRollbackErr(tx *sql.Tx, err error) error {
	rollerr := tx.Rollback()
	if rollerr == nil {
		return err
	}
	return fmt.Errorf("failed to rollback transaction after previous error: %w, %w", rollerr, err)
}

func sliceToSQLList[T string | models.TenderStatus | models.TenderCategory](t []T) string {
	parts := make([]string, 0, len(t))
	for _, v := range t {
		parts = append(parts, string(v))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

//// Test utils

func (repo *Repository) TestGetDB() *sql.DB {
	return repo.db
}
