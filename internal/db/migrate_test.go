package db

import (
	"context"
	"os"
	"strings"
	"testing"
)

func TestLoadMigrationsOrdered(t *testing.T) {
	migs, err := loadMigrations()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(migs) < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", len(migs))
	}
	for i := 1; i < len(migs); i++ {
		if migs[i-1].Name >= migs[i].Name {
			t.Fatalf("migrations out of order: %s before %s", migs[i-1].Name, migs[i].Name)
		}
	}
	for _, m := range migs {
		if m.Content == "" {
			t.Fatalf("migration %s is empty", m.Name)
		}
		if len(m.Hash) != 64 {
			t.Fatalf("migration %s has malformed hash %q", m.Name, m.Hash)
		}
		if !strings.Contains(m.Content, "CREATE TABLE IF NOT EXISTS") {
			t.Fatalf("migration %s is not idempotent DDL", m.Name)
		}
	}
}

func TestApplyMigrations_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	ctx := context.Background()
	conn, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	if err := ApplyMigrations(ctx, conn); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	// Re-applying is a no-op thanks to the tracking table.
	if err := ApplyMigrations(ctx, conn); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	for _, table := range []string{"active_alarms", "item_permissions", "session_events"} {
		var regclass string
		err := conn.QueryRowContext(ctx, `SELECT to_regclass($1)::text`, table).Scan(&regclass)
		if err != nil || regclass != table {
			t.Fatalf("expected table %s to exist, got %q err=%v", table, regclass, err)
		}
	}
}

func TestOpenEmptyDSN(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}
