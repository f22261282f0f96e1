package audit

import (
	"context"
	"log"
	"time"
)

const recordTimeout = 3 * time.Second

// Recorder journals session events best-effort. Persistence failures are
// logged and never surface to the websocket path.
type Recorder struct {
	repo   *Repository
	logger *log.Logger
}

// NewRecorder constructs a recorder over the repository.
func NewRecorder(repo *Repository, logger *log.Logger) *Recorder {
	if repo == nil {
		return nil
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{repo: repo, logger: logger}
}

// RecordSession persists one connect/disconnect event.
func (r *Recorder) RecordSession(ctx context.Context, userID, connID, event, remoteAddr string) {
	if r == nil || r.repo == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()

	err := r.repo.Insert(ctx, SessionEvent{
		UserID:     userID,
		ConnID:     connID,
		Event:      event,
		RemoteAddr: remoteAddr,
	})
	if err != nil {
		r.logger.Printf("audit: record session failed user=%s event=%s err=%v", userID, event, err)
	}
}
