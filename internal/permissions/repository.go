// Package permissions resolves which monitored items a user may
// observe. Rows are maintained by the access-management side; this
// service only reads them.
package permissions

import (
	"context"
	"database/sql"
	"errors"
)

// Repository reads user item grants from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PermittedItems returns the set of item IDs the user may observe.
// Grants change out of band, so callers must not cache the result
// across broadcast cycles. A user with no grants gets an empty set and
// no error.
func (r *Repository) PermittedItems(ctx context.Context, userID string) (map[string]struct{}, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("permissions repo: nil db")
	}
	if userID == "" {
		return nil, errors.New("permissions repo: empty user id")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT item_id
FROM item_permissions
WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make(map[string]struct{})
	for rows.Next() {
		var itemID string
		if err := rows.Scan(&itemID); err != nil {
			return nil, err
		}
		items[itemID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
