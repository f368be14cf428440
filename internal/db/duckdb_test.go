package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestConfigPath(t *testing.T) {
	if got := (Config{}).Path(); got != "" {
		t.Fatalf("empty config path = %q", got)
	}
	want := filepath.Join("data", "duckdb", "map.duckdb")
	if got := (Config{DataDir: "data"}).Path(); got != want {
		t.Fatalf("path = %q, want %q", got, want)
	}
}

func TestOpenMigratesTwice(t *testing.T) {
	ctx := context.Background()
	cfg := Config{DataDir: t.TempDir(), DBName: "test"}

	conn, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := Migrate(ctx, conn); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	var n int
	if err := conn.QueryRowContext(ctx, `SELECT count(*) FROM geocode_cache`).Scan(&n); err != nil {
		t.Fatalf("geocode_cache missing: %v", err)
	}
	if n != 0 {
		t.Fatalf("fresh table has %d rows", n)
	}
	conn.Close()
}
