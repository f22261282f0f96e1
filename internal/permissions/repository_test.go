package permissions

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestPermittedItems_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS item_permissions (
	user_id TEXT NOT NULL,
	item_id TEXT NOT NULL,
	granted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, item_id)
)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	userID := "user-it-perm"
	_, _ = db.ExecContext(ctx, "DELETE FROM item_permissions WHERE user_id = $1", userID)
	for _, itemID := range []string{"item-a", "item-b"} {
		if _, err := db.ExecContext(ctx, `
INSERT INTO item_permissions (user_id, item_id)
VALUES ($1, $2)`, userID, itemID); err != nil {
			t.Fatalf("insert grant: %v", err)
		}
	}

	repo := NewRepository(db)
	items, err := repo.PermittedItems(ctx, userID)
	if err != nil {
		t.Fatalf("permitted items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	for _, want := range []string{"item-a", "item-b"} {
		if _, ok := items[want]; !ok {
			t.Fatalf("expected %s in permitted set", want)
		}
	}

	none, err := repo.PermittedItems(ctx, "user-it-perm-none")
	if err != nil {
		t.Fatalf("permitted items for unknown user: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected empty set for unknown user, got %d", len(none))
	}
}

func TestPermittedItemsValidation(t *testing.T) {
	var nilRepo *Repository
	if _, err := nilRepo.PermittedItems(context.Background(), "u"); err == nil {
		t.Fatalf("expected error from nil repository")
	}
	repo := NewRepository(nil)
	if _, err := repo.PermittedItems(context.Background(), "u"); err == nil {
		t.Fatalf("expected error from nil db")
	}
}
