// Package registry tracks which users are online and which live
// connection handles belong to each of them.
package registry

import (
	"context"
	"sync"
)

// Connection is an opaque delivery handle for one client session. The
// transport owns the concrete type; the registry and the broadcaster
// only see this surface.
type Connection interface {
	// ID is unique per connection for the process lifetime.
	ID() string
	// UserID is the authenticated principal behind the connection.
	UserID() string
	// Send delivers one payload. Implementations must be safe to call
	// after the peer is gone and report an error instead of blocking.
	Send(ctx context.Context, payload []byte) error
}

// Registry is a bidirectional user <-> connections index. A user is
// listed while it has at least one connection; both directions mutate
// under one lock so they can never disagree.
type Registry struct {
	mu     sync.Mutex
	users  map[string]map[string]Connection
	owners map[string]string // connection ID -> user ID
}

// NewRegistry returns an empty registry ready for use.
func NewRegistry() *Registry {
	return &Registry{
		users:  make(map[string]map[string]Connection),
		owners: make(map[string]string),
	}
}

// Register adds conn under its user. Registering the same connection ID
// twice keeps a single entry.
func (r *Registry) Register(conn Connection) {
	if r == nil || conn == nil || conn.ID() == "" || conn.UserID() == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.users[conn.UserID()]
	if !ok {
		set = make(map[string]Connection)
		r.users[conn.UserID()] = set
	}
	set[conn.ID()] = conn
	r.owners[conn.ID()] = conn.UserID()
}

// Unregister removes the connection with the given ID. The last
// connection removes the user entry as well. Unknown IDs are a no-op;
// duplicate disconnect signals are normal.
func (r *Registry) Unregister(connID string) {
	if r == nil || connID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.owners[connID]
	if !ok {
		return
	}
	delete(r.owners, connID)
	set := r.users[userID]
	delete(set, connID)
	if len(set) == 0 {
		delete(r.users, userID)
	}
}

// OnlineUserIDs returns a copy of the current online user set.
func (r *Registry) OnlineUserIDs() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.users))
	for id := range r.users {
		out = append(out, id)
	}
	return out
}

// ConnectionsFor returns a copy of the user's current handles, empty
// when the user is offline.
func (r *Registry) ConnectionsFor(userID string) []Connection {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.users[userID]
	out := make([]Connection, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// UserCount returns how many users are online.
func (r *Registry) UserCount() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// ConnectionCount returns how many connections are open.
func (r *Registry) ConnectionCount() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners)
}
