package db

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func MigrateUp(db *sql.DB, migrationsURL string) error {
	m, err := newMigrate(db, migrationsURL)
	if err != nil {
		return err
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("db.MigrateUp: %w", err)
	}
	return nil
}

func MigrateDown(db *sql.DB, migrationsURL string) error {
	m, err := newMigrate(db, migrationsURL)
	if err != nil {
		return err
	}

	err = m.Down()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("db.MigrateDown: %w", err)
	}
	return nil
}

func newMigrate(db *sql.DB, migrationsURL string) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("db.newMigrate: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsURL, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("db.newMigrate: %w", err)
	}
	return m, nil
}
