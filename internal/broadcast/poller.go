package broadcast

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	alarms "alarmcast/internal/alarms/domain"
	"alarmcast/internal/observability/metrics"
)

const defaultPollInterval = time.Second

// AlarmSource lists the currently-active alarms from the engine store.
type AlarmSource interface {
	ListActive(ctx context.Context) ([]alarms.ActiveAlarm, error)
}

// Sink receives snapshots whose content differs from the previous
// successful poll.
type Sink interface {
	Broadcast(ctx context.Context, snap alarms.Snapshot)
}

// ChangeObserver is told about detected changes after the fan-out, for
// side channels such as ops webhooks.
type ChangeObserver interface {
	AlarmSetChanged(ctx context.Context, snap alarms.Snapshot)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Poller fetches the active alarm set at a fixed cadence and signals
// the sink only when the set's content changed. Ticks are serialized:
// a tick runs fetch, compare and fan-out to completion before the next
// one starts, so a slow cycle drops intermediate ticks instead of
// stacking them.
type Poller struct {
	source   AlarmSource
	sink     Sink
	interval time.Duration
	clock    Clock
	logger   *log.Logger
	notifier ChangeObserver

	mu         sync.Mutex
	lastDigest string
	latest     alarms.Snapshot
	hasLatest  bool
}

// PollerOption customizes the poller.
type PollerOption func(*Poller)

// WithClock assigns a clock.
func WithClock(clock Clock) PollerOption {
	return func(p *Poller) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithNotifier assigns a change observer.
func WithNotifier(notifier ChangeObserver) PollerOption {
	return func(p *Poller) {
		p.notifier = notifier
	}
}

// NewPoller constructs a poller.
func NewPoller(source AlarmSource, sink Sink, interval time.Duration, logger *log.Logger, opts ...PollerOption) (*Poller, error) {
	if source == nil {
		return nil, errors.New("broadcast: nil alarm source")
	}
	if sink == nil {
		return nil, errors.New("broadcast: nil sink")
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	p := &Poller{
		source:   source,
		sink:     sink,
		interval: interval,
		clock:    systemClock{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run drives Tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	if p == nil {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.Tick(ctx, now.UTC())
		}
	}
}

// Tick performs one poll cycle at the given time. A fetch error keeps
// the previous digest so the change is still detected on the next
// successful poll; the very first successful poll always signals.
func (p *Poller) Tick(ctx context.Context, now time.Time) {
	if p == nil {
		return
	}
	if now.IsZero() {
		now = p.clock.Now()
	}

	start := time.Now()
	list, err := p.source.ListActive(ctx)
	if err != nil {
		metrics.ObservePollTick(metrics.ResultError, time.Since(start))
		p.logger.Printf("poll: fetch active alarms failed: %v", err)
		return
	}
	metrics.ObservePollTick(metrics.ResultSuccess, time.Since(start))

	snap := alarms.NewSnapshot(list, now)

	p.mu.Lock()
	changed := snap.Digest != p.lastDigest
	p.lastDigest = snap.Digest
	p.latest = snap
	p.hasLatest = true
	p.mu.Unlock()

	if !changed {
		return
	}
	metrics.IncPollChange()
	p.logger.Printf("poll: alarm set changed alarms=%d digest=%s", len(snap.Alarms), shortDigest(snap.Digest))
	p.sink.Broadcast(ctx, snap)
	if p.notifier != nil {
		p.notifier.AlarmSetChanged(ctx, snap)
	}
}

// Latest returns the most recent successful snapshot. The second value
// is false until the first successful poll.
func (p *Poller) Latest() (alarms.Snapshot, bool) {
	if p == nil {
		return alarms.Snapshot{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest, p.hasLatest
}

func shortDigest(digest string) string {
	if len(digest) <= 12 {
		return digest
	}
	return digest[:12]
}
