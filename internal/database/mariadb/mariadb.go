// Package mariadb provides a MariaDB/MySQL measurement store backend.
// Vectors are stored as JSON text; similar-body search runs on the
// in-memory HNSW index since MySQL has no native vector ordering.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// EnsureSchema creates the measurement tables if they do not exist.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS measurement_sets (
			id CHAR(36) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			capture_session_id VARCHAR(255) NOT NULL,
			pose_type VARCHAR(32) NOT NULL,
			calibration_ratio DOUBLE NOT NULL,
			is_accurate BOOLEAN NOT NULL,
			verified_by_user BOOLEAN NOT NULL,
			vector_json MEDIUMBLOB,
			created_at TIMESTAMP(6) NOT NULL,
			UNIQUE KEY uq_user_session (user_id, capture_session_id),
			KEY idx_user_created (user_id, created_at)
		)`,
		`CREATE TABLE IF NOT EXISTS measurement_values (
			set_id CHAR(36) NOT NULL,
			name VARCHAR(128) NOT NULL,
			centimeters DOUBLE NOT NULL,
			confidence DOUBLE NOT NULL,
			estimated_from_front_only BOOLEAN NOT NULL DEFAULT FALSE,
			conflicting BOOLEAN NOT NULL DEFAULT FALSE,
			sources VARCHAR(64) NOT NULL DEFAULT '',
			PRIMARY KEY (set_id, name),
			CONSTRAINT fk_values_set FOREIGN KEY (set_id)
				REFERENCES measurement_sets (id) ON DELETE CASCADE
		)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}
