package audit

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestSessionEvents_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS session_events (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	conn_id TEXT NOT NULL,
	event TEXT NOT NULL,
	remote_addr TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM session_events WHERE user_id = 'it-session-user'`); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	repo := NewRepository(db)
	base := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	first := SessionEvent{UserID: "it-session-user", ConnID: "conn-1", Event: "connected", RemoteAddr: "10.0.0.9", CreatedAt: base}
	second := SessionEvent{UserID: "it-session-user", ConnID: "conn-1", Event: "disconnected", RemoteAddr: "10.0.0.9", CreatedAt: base.Add(time.Minute)}
	if err := repo.Insert(ctx, first); err != nil {
		t.Fatalf("insert first: %v", err)
	}
	if err := repo.Insert(ctx, second); err != nil {
		t.Fatalf("insert second: %v", err)
	}

	events, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	var mine []SessionEvent
	for _, event := range events {
		if event.UserID == "it-session-user" {
			mine = append(mine, event)
		}
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 events, got %d", len(mine))
	}
	if mine[0].Event != "disconnected" || mine[1].Event != "connected" {
		t.Fatalf("expected newest first, got %s then %s", mine[0].Event, mine[1].Event)
	}
	if mine[0].ID == "" {
		t.Fatal("expected generated id")
	}
	if loc := mine[0].CreatedAt.Location(); loc != time.UTC {
		t.Fatalf("expected UTC timestamps, got %v", loc)
	}
}

func TestRepositoryValidation(t *testing.T) {
	var nilRepo *Repository
	if err := nilRepo.Insert(context.Background(), SessionEvent{}); err == nil {
		t.Fatal("expected error from nil repo")
	}
	if _, err := (&Repository{}).Recent(context.Background(), 5); err == nil {
		t.Fatal("expected error from nil db")
	}
	if NewRepository(nil) != nil {
		t.Fatal("expected nil repository for nil db")
	}
}

func TestRecorderNilSafe(t *testing.T) {
	if NewRecorder(nil, nil) != nil {
		t.Fatal("expected nil recorder for nil repo")
	}
	var recorder *Recorder
	// Must not panic.
	recorder.RecordSession(context.Background(), "user-1", "conn-1", "connected", "10.0.0.9")
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name       string
		forwarded  string
		realIP     string
		remoteAddr string
		want       string
	}{
		{name: "forwarded first hop", forwarded: "203.0.113.7, 10.0.0.1", remoteAddr: "10.0.0.1:4040", want: "203.0.113.7"},
		{name: "real ip", realIP: "203.0.113.9", remoteAddr: "10.0.0.1:4040", want: "203.0.113.9"},
		{name: "remote addr host", remoteAddr: "192.168.1.4:55000", want: "192.168.1.4"},
		{name: "remote addr plain", remoteAddr: "192.168.1.4", want: "192.168.1.4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if tc.realIP != "" {
				r.Header.Set("X-Real-IP", tc.realIP)
			}
			if got := ClientIP(r); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
