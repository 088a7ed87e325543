package search

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/688-png/dev-partner/internal/store"
)

func openTestDB(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("DEVPARTNER_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("DEVPARTNER_TEST_DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	migrationsDir := filepath.Join("..", "..", "db", "migrations")
	if err := store.ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db, ctx
}

func TestPgLikeTotalCountsBeyondLimit(t *testing.T) {
	db, ctx := openTestDB(t)

	titles := []string{"Invoice Tracker", "Time Tracker", "Habit Tracker"}
	for i, title := range titles {
		_, err := db.ExecContext(ctx, `
			INSERT INTO projects (id, title, stack)
			VALUES (gen_random_uuid(), $1, 'mern')
		`, title)
		if err != nil {
			t.Fatalf("insert project %d: %v", i, err)
		}
	}

	results, total, err := NewPgLike(db).Search(ctx, Query{Text: "tracker", Limit: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("page size = %d, want 2", len(results))
	}
	if total != 3 {
		t.Errorf("total = %d, want 3 (must count past the page limit)", total)
	}
}

func TestPgLikeFindsSessionsByMilestone(t *testing.T) {
	db, ctx := openTestDB(t)

	_, err := db.ExecContext(ctx, `
		INSERT INTO project_sessions (id, scheduled_at, session_summary, next_milestone)
		VALUES (gen_random_uuid(), NOW(), 'Steady progress on auth flow', 'Ship beta signup')
	`)
	if err != nil {
		t.Fatalf("insert session: %v", err)
	}

	results, total, err := NewPgLike(db).Search(ctx, Query{Text: "beta signup"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 || len(results) != 1 {
		t.Fatalf("total=%d results=%d, want 1/1", total, len(results))
	}
	if results[0].Type != ResultSession {
		t.Errorf("type = %s, want session", results[0].Type)
	}
	if results[0].Title != "Ship beta signup" {
		t.Errorf("title = %q", results[0].Title)
	}
}
