package audit

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// SessionEvent records one websocket connect or disconnect.
type SessionEvent struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	ConnID     string    `json:"connId"`
	Event      string    `json:"event"`
	RemoteAddr string    `json:"remoteAddr"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewID generates a random session event id.
func NewID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "sess-" + hex.EncodeToString(buf)
}
