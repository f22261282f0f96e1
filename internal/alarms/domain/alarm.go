package alarms

import "time"

const (
	StatusActive       = "active"
	StatusAcknowledged = "acknowledged"
	StatusCleared      = "cleared"
)

const (
	PriorityCritical = 1
	PriorityMajor    = 2
	PriorityMinor    = 3
	PriorityWarning  = 4
)

// ActiveAlarm is one currently-active alarm as produced by the external
// alarm engine. Records are read-only on this side; the engine owns the
// lifecycle.
type ActiveAlarm struct {
	ID       string    `json:"id"`
	ItemID   string    `json:"item_id"`
	Priority int       `json:"priority"`
	RaisedAt time.Time `json:"raised_at"`
}
