package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository persists session events.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a session event repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Insert writes a session event.
func (r *Repository) Insert(ctx context.Context, event SessionEvent) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if event.ID == "" {
		event.ID = NewID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO session_events (
	id, user_id, conn_id, event, remote_addr, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6
)`, event.ID, event.UserID, event.ConnID, event.Event, event.RemoteAddr, event.CreatedAt)
	return err
}

// Recent returns the newest session events, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]SessionEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("audit repo: nil db")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, conn_id, event, remote_addr, created_at
FROM session_events
ORDER BY created_at DESC, id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []SessionEvent
	for rows.Next() {
		var event SessionEvent
		if err := rows.Scan(&event.ID, &event.UserID, &event.ConnID, &event.Event, &event.RemoteAddr, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
