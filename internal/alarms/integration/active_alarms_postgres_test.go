package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	alarms "alarmcast/internal/alarms/domain"
	alarmrepo "alarmcast/internal/alarms/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestListActive_Postgres(t *testing.T) {
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
CREATE TABLE IF NOT EXISTS active_alarms (
	id TEXT PRIMARY KEY,
	item_id TEXT NOT NULL,
	priority INT NOT NULL DEFAULT 3,
	status TEXT NOT NULL DEFAULT 'active',
	raised_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	_, _ = db.ExecContext(ctx, "DELETE FROM active_alarms WHERE id LIKE 'it-alarm-%'")

	raised := time.Date(2026, time.March, 2, 8, 30, 0, 0, time.UTC)
	seed := []struct {
		id, itemID, status string
		priority           int
	}{
		{"it-alarm-1", "item-x", alarms.StatusActive, alarms.PriorityCritical},
		{"it-alarm-2", "item-y", alarms.StatusActive, alarms.PriorityMinor},
		{"it-alarm-3", "item-x", alarms.StatusCleared, alarms.PriorityMajor},
	}
	for i, s := range seed {
		if _, err := db.ExecContext(ctx, `
INSERT INTO active_alarms (id, item_id, priority, status, raised_at)
VALUES ($1, $2, $3, $4, $5)`, s.id, s.itemID, s.priority, s.status, raised.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("insert alarm: %v", err)
		}
	}

	repo := alarmrepo.NewActiveAlarmRepository(db)
	list, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	got := map[string]bool{}
	for _, a := range list {
		if a.ID == "it-alarm-1" || a.ID == "it-alarm-2" || a.ID == "it-alarm-3" {
			got[a.ID] = true
			if a.RaisedAt.Location() != time.UTC {
				t.Fatalf("expected UTC raised_at, got %v", a.RaisedAt.Location())
			}
		}
	}
	if !got["it-alarm-1"] || !got["it-alarm-2"] {
		t.Fatalf("expected active alarms it-alarm-1 and it-alarm-2 in result, got %v", got)
	}
	if got["it-alarm-3"] {
		t.Fatalf("did not expect cleared alarm it-alarm-3 in result")
	}
}
