//go:build integration

package testhelpers

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestPostgresFixture(t *testing.T) {
	testDB := GetTestDB(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, testDB.ConnStr)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer pool.Close()

	var tableCount int
	err = pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = 'public'").
		Scan(&tableCount)
	if err != nil {
		t.Fatalf("failed to count tables: %v", err)
	}

	if tableCount != 3 {
		t.Errorf("expected 3 tables in fixture schema, got %d", tableCount)
	}
}

func TestSQLiteFixture(t *testing.T) {
	path := NewSQLiteDB(t)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open: %v", err)
	}
	defer db.Close()

	tests := []struct {
		table    string
		expected int
	}{
		{"users", 4},
		{"posts", 4},
		{"tags", 2},
	}

	for _, tt := range tests {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + tt.table).Scan(&count); err != nil {
			t.Fatalf("count %s: %v", tt.table, err)
		}
		if count != tt.expected {
			t.Errorf("expected %d rows in %s, got %d", tt.expected, tt.table, count)
		}
	}
}
