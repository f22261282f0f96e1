// Package broadcast detects active-alarm set changes and fans
// permission-filtered alarm counts out to every online user.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	alarms "alarmcast/internal/alarms/domain"
	"alarmcast/internal/observability/metrics"
	"alarmcast/internal/registry"
)

const (
	defaultWorkers     = 16
	defaultSendTimeout = 5 * time.Second
)

// Resolver returns the set of item IDs a user may observe. Results are
// never cached across cycles; grants change out of band.
type Resolver interface {
	PermittedItems(ctx context.Context, userID string) (map[string]struct{}, error)
}

// ConnectionLister exposes the online population. *registry.Registry
// satisfies it.
type ConnectionLister interface {
	OnlineUserIDs() []string
	ConnectionsFor(userID string) []registry.Connection
}

// Update is the payload every client receives. AlarmCount is already
// filtered to the recipient's permitted items.
type Update struct {
	AlarmCount int   `json:"alarmCount"`
	Timestamp  int64 `json:"timestamp"`
}

// Broadcaster delivers personalized updates for one snapshot to all
// online users. Failures never cross user or connection boundaries.
type Broadcaster struct {
	conns       ConnectionLister
	resolver    Resolver
	logger      *log.Logger
	workers     int
	sendTimeout time.Duration
}

// BroadcasterOption customizes the broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithWorkers bounds concurrent per-user resolution.
func WithWorkers(n int) BroadcasterOption {
	return func(b *Broadcaster) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithSendTimeout bounds each connection send.
func WithSendTimeout(d time.Duration) BroadcasterOption {
	return func(b *Broadcaster) {
		if d > 0 {
			b.sendTimeout = d
		}
	}
}

// NewBroadcaster constructs a broadcaster.
func NewBroadcaster(conns ConnectionLister, resolver Resolver, logger *log.Logger, opts ...BroadcasterOption) (*Broadcaster, error) {
	if conns == nil {
		return nil, errors.New("broadcast: nil connection lister")
	}
	if resolver == nil {
		return nil, errors.New("broadcast: nil resolver")
	}
	if logger == nil {
		logger = log.Default()
	}
	b := &Broadcaster{
		conns:       conns,
		resolver:    resolver,
		logger:      logger,
		workers:     defaultWorkers,
		sendTimeout: defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Broadcast runs one fan-out cycle for snap and returns once every
// online user has been handled. Per-user work runs concurrently;
// permission resolution is one store query per user, so serializing it
// would scale cycle latency with the online population.
func (b *Broadcaster) Broadcast(ctx context.Context, snap alarms.Snapshot) {
	if b == nil {
		return
	}
	start := time.Now()
	users := b.conns.OnlineUserIDs()
	if len(users) == 0 {
		metrics.ObserveBroadcastCycle(metrics.ResultSuccess, time.Since(start))
		return
	}

	var group errgroup.Group
	group.SetLimit(b.workers)
	for _, userID := range users {
		group.Go(func() error {
			b.deliverToUser(ctx, userID, snap)
			return nil
		})
	}
	// Workers report their own failures; the join only bounds the cycle.
	_ = group.Wait()
	metrics.ObserveBroadcastCycle(metrics.ResultSuccess, time.Since(start))
	b.logger.Printf("broadcast: cycle done users=%d alarms=%d elapsed=%s", len(users), len(snap.Alarms), time.Since(start).Round(time.Millisecond))
}

// deliverToUser resolves, filters and sends for one user. A resolve
// failure skips the user for this cycle; the next change retries. A
// failed send skips only that connection.
func (b *Broadcaster) deliverToUser(ctx context.Context, userID string, snap alarms.Snapshot) {
	permitted, err := b.resolver.PermittedItems(ctx, userID)
	if err != nil {
		metrics.IncResolveFailure()
		b.logger.Printf("broadcast: resolve permissions failed user=%s err=%v", userID, err)
		return
	}
	payload, err := marshalUpdate(snap, permitted)
	if err != nil {
		b.logger.Printf("broadcast: marshal update failed user=%s err=%v", userID, err)
		return
	}
	for _, conn := range b.conns.ConnectionsFor(userID) {
		if err := b.send(ctx, conn, payload); err != nil {
			metrics.IncDelivery(metrics.ResultError)
			b.logger.Printf("broadcast: deliver failed user=%s conn=%s err=%v", userID, conn.ID(), err)
			continue
		}
		metrics.IncDelivery(metrics.ResultSuccess)
	}
}

// DeliverTo sends the personalized update for snap to one connection.
// The transport uses it to greet a fresh session with the current
// state instead of leaving it blank until the next change.
func (b *Broadcaster) DeliverTo(ctx context.Context, conn registry.Connection, snap alarms.Snapshot) error {
	if b == nil {
		return errors.New("broadcast: nil broadcaster")
	}
	if conn == nil {
		return errors.New("broadcast: nil connection")
	}
	permitted, err := b.resolver.PermittedItems(ctx, conn.UserID())
	if err != nil {
		metrics.IncResolveFailure()
		return err
	}
	payload, err := marshalUpdate(snap, permitted)
	if err != nil {
		return err
	}
	if err := b.send(ctx, conn, payload); err != nil {
		metrics.IncDelivery(metrics.ResultError)
		return err
	}
	metrics.IncDelivery(metrics.ResultSuccess)
	return nil
}

func (b *Broadcaster) send(ctx context.Context, conn registry.Connection, payload []byte) error {
	if b.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.sendTimeout)
		defer cancel()
	}
	return conn.Send(ctx, payload)
}

func marshalUpdate(snap alarms.Snapshot, permitted map[string]struct{}) ([]byte, error) {
	return json.Marshal(Update{
		AlarmCount: snap.CountForItems(permitted),
		Timestamp:  snap.TakenAt.Unix(),
	})
}
