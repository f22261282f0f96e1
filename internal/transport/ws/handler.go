package ws

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	alarms "alarmcast/internal/alarms/domain"
	"alarmcast/internal/audit"
	"alarmcast/internal/auth"
	"alarmcast/internal/observability/metrics"
	"alarmcast/internal/registry"
)

// SnapshotProvider yields the latest successful alarm poll.
type SnapshotProvider interface {
	Latest() (alarms.Snapshot, bool)
}

// Greeter delivers the current personalized state to one connection so
// a fresh session is not blank until the next alarm change.
type Greeter interface {
	DeliverTo(ctx context.Context, conn registry.Connection, snap alarms.Snapshot) error
}

// SessionJournal records connect/disconnect events. Optional.
type SessionJournal interface {
	RecordSession(ctx context.Context, userID, connID, event, remoteAddr string)
}

// Handler upgrades authenticated requests into registered sessions.
// The auth middleware runs first and puts the identity in the request
// context; requests arriving without one are rejected.
type Handler struct {
	registry   *registry.Registry
	snapshots  SnapshotProvider
	greeter    Greeter
	journal    SessionJournal
	logger     *log.Logger
	sendBuffer int
	upgrader   websocket.Upgrader
}

// HandlerOption customizes the handler.
type HandlerOption func(*Handler)

// WithSendBuffer sets the per-connection outbound queue size.
func WithSendBuffer(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithJournal assigns a session journal.
func WithJournal(journal SessionJournal) HandlerOption {
	return func(h *Handler) {
		h.journal = journal
	}
}

// NewHandler constructs a websocket handler.
func NewHandler(reg *registry.Registry, snapshots SnapshotProvider, greeter Greeter, logger *log.Logger, opts ...HandlerOption) (*Handler, error) {
	if reg == nil {
		return nil, errors.New("ws: nil registry")
	}
	if snapshots == nil {
		return nil, errors.New("ws: nil snapshot provider")
	}
	if greeter == nil {
		return nil, errors.New("ws: nil greeter")
	}
	if logger == nil {
		logger = log.Default()
	}
	h := &Handler{
		registry:   reg,
		snapshots:  snapshots,
		greeter:    greeter,
		logger:     logger,
		sendBuffer: 16,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Tokens already gate the endpoint; cross-origin pages are fine.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	remoteAddr := audit.ClientIP(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		h.logger.Printf("ws: upgrade failed user=%s remote=%s err=%v", userID, remoteAddr, err)
		return
	}

	client := newClient(uuid.NewString(), userID, conn, h.sendBuffer, h.logger)
	h.registry.Register(client)
	metrics.IncSession(metrics.SessionConnected)
	if h.journal != nil {
		h.journal.RecordSession(context.Background(), userID, client.ID(), metrics.SessionConnected, remoteAddr)
	}
	h.logger.Printf("ws: session open user=%s conn=%s remote=%s", userID, client.ID(), remoteAddr)

	go client.writePump()
	go client.readPump(func() {
		h.registry.Unregister(client.ID())
		metrics.IncSession(metrics.SessionDisconnected)
		if h.journal != nil {
			h.journal.RecordSession(context.Background(), userID, client.ID(), metrics.SessionDisconnected, remoteAddr)
		}
		h.logger.Printf("ws: session closed user=%s conn=%s", userID, client.ID())
	})

	// Greet with the current state; the read/write pumps own the
	// connection from here on.
	if snap, ok := h.snapshots.Latest(); ok {
		if err := h.greeter.DeliverTo(context.Background(), client, snap); err != nil {
			h.logger.Printf("ws: greeting failed user=%s conn=%s err=%v", userID, client.ID(), err)
		}
	}
}
