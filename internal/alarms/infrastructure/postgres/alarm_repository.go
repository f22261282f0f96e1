package postgres

import (
	"context"
	"database/sql"
	"errors"

	alarms "alarmcast/internal/alarms/domain"
)

// ActiveAlarmRepository reads the active alarm set maintained by the
// external alarm engine. This service never writes alarm rows.
type ActiveAlarmRepository struct {
	db *sql.DB
}

// NewActiveAlarmRepository constructs a repository.
func NewActiveAlarmRepository(db *sql.DB) *ActiveAlarmRepository {
	return &ActiveAlarmRepository{db: db}
}

// ListActive returns every currently-active alarm. The engine may
// rewrite the set between calls; row order is not meaningful.
func (r *ActiveAlarmRepository) ListActive(ctx context.Context) ([]alarms.ActiveAlarm, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, item_id, priority, raised_at
FROM active_alarms
WHERE status = $1
ORDER BY raised_at DESC`, alarms.StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.ActiveAlarm
	for rows.Next() {
		var alarm alarms.ActiveAlarm
		if err := rows.Scan(&alarm.ID, &alarm.ItemID, &alarm.Priority, &alarm.RaisedAt); err != nil {
			return nil, err
		}
		alarm.RaisedAt = alarm.RaisedAt.UTC()
		result = append(result, alarm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
