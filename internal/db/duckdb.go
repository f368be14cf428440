// Package db opens the DuckDB database holding the geocode cache.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Config holds database configuration. An empty DataDir opens an in-memory
// database.
type Config struct {
	DataDir string
	DBName  string
}

// Path returns the database file, or "" for in-memory.
func (c Config) Path() string {
	if c.DataDir == "" {
		return ""
	}
	name := c.DBName
	if name == "" {
		name = "map"
	}
	return filepath.Join(c.DataDir, "duckdb", name+".duckdb")
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS geocode_cache (
		query      VARCHAR PRIMARY KEY,
		name       VARCHAR NOT NULL,
		lon        DOUBLE NOT NULL,
		lat        DOUBLE NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
}

// Open opens a fresh connection and applies the schema.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	path := cfg.Path()
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
	}

	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", path, err)
	}
	if err := Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Migrate applies every schema statement; all are idempotent.
func Migrate(ctx context.Context, conn *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
