package db

import (
	"database/sql"
	"fmt"

	"tendermarket/internal/config"

	_ "github.com/lib/pq"
)

func NewPostgresDB(cfg *config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Conn)
	if err != nil {
		return nil, fmt.Errorf("db.NewPostgresDB: %w", err)
	}

	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("db.NewPostgresDB: %w", err)
	}

	return db, nil
}
