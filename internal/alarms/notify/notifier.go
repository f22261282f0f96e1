// Package notify posts ops-side summaries when the active alarm set
// changes, independently of the per-user websocket fan-out.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	alarms "alarmcast/internal/alarms/domain"
)

// Clock provides time for throttling decisions.
type Clock interface {
	Now() time.Time
}

// Notifier renders one summary per detected change and sends it over a
// channel. A global cooldown throttles noisy periods; a dedupe window
// suppresses announcing a set the channel saw moments ago, which
// silences digest flapping between two states.
type Notifier struct {
	channel      Channel
	template     *Template
	clock        Clock
	cooldown     time.Duration
	dedupeWindow time.Duration

	mu       sync.Mutex
	lastSent time.Time
	sent     map[string]time.Time // digest -> last announced
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithCooldown sets a minimum interval between any two notifications.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses re-announcing a recently-announced set.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// NewNotifier constructs a change notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("alarm notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:  channel,
		template: template,
		clock:    systemClock{},
		sent:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// AlarmSetChanged implements the broadcast change observer.
func (n *Notifier) AlarmSetChanged(ctx context.Context, snap alarms.Snapshot) {
	if n == nil || n.channel == nil {
		return
	}
	content, err := n.template.Render(TemplateData{
		ActiveCount: len(snap.Alarms),
		ChangedAt:   snap.TakenAt.UTC().Format(time.RFC3339),
		Digest:      shortDigest(snap.Digest),
	})
	if err != nil {
		return
	}
	if !n.shouldSend(snap.Digest) {
		return
	}
	if err := n.channel.Send(ctx, content); err != nil {
		return
	}
	n.markSent(snap.Digest)
}

func (n *Notifier) shouldSend(digest string) bool {
	if n == nil {
		return false
	}
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	now := n.clock.Now().UTC()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cooldown > 0 && !n.lastSent.IsZero() && now.Sub(n.lastSent) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 {
		if at, ok := n.sent[digest]; ok && now.Sub(at) < n.dedupeWindow {
			return false
		}
	}
	return true
}

func (n *Notifier) markSent(digest string) {
	if n == nil {
		return
	}
	now := n.clock.Now().UTC()
	n.mu.Lock()
	n.lastSent = now
	n.sent[digest] = now
	if n.dedupeWindow > 0 {
		for key, at := range n.sent {
			if now.Sub(at) >= n.dedupeWindow {
				delete(n.sent, key)
			}
		}
	}
	n.mu.Unlock()
}

func shortDigest(digest string) string {
	if len(digest) <= 12 {
		return digest
	}
	return digest[:12]
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
