package notify

import (
	"context"

	alarms "alarmcast/internal/alarms/domain"
	"alarmcast/internal/broadcast"
)

// MultiNotifier forwards change events to multiple observers.
type MultiNotifier struct {
	observers []broadcast.ChangeObserver
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(observers ...broadcast.ChangeObserver) *MultiNotifier {
	return &MultiNotifier{observers: observers}
}

// AlarmSetChanged forwards the change to all observers.
func (m *MultiNotifier) AlarmSetChanged(ctx context.Context, snap alarms.Snapshot) {
	if m == nil {
		return
	}
	for _, observer := range m.observers {
		if observer != nil {
			observer.AlarmSetChanged(ctx, snap)
		}
	}
}
