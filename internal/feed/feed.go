// Package feed is the change-notification layer: every committed
// insert/update/delete on geofences, memberships and device bindings is
// published exactly once, in commit order, to in-process subscribers
// and to a Redis outbox consumed by external delivery collaborators.
package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Entity identifies which table an event concerns.
type Entity string

const (
	EntityGeofence   Entity = "geofence"
	EntityMembership Entity = "membership"
	EntityDevice     Entity = "device_binding"
)

// Op is the mutation kind.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event describes one committed mutation. Seq is assigned by the
// broker in publish order; GeofenceID is zero for device events, which
// are scoped to UserID instead.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Seq        uint64          `json:"seq"`
	Entity     Entity          `json:"entity"`
	Op         Op              `json:"op"`
	GeofenceID uuid.UUID       `json:"geofence_id,omitempty"`
	UserID     string          `json:"user_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	At         time.Time       `json:"at"`
}

// Filter decides whether a subscriber may observe an event. It is
// built from the subscriber's membership snapshot by the API layer.
type Filter func(Event) bool

// Outbox receives every event in order for external delivery.
type Outbox interface {
	Append(ctx context.Context, e Event) error
}

type subscriber struct {
	ch     chan Event
	filter Filter
}

// Broker fans committed mutations out to subscribers. Publish is
// called by repositories immediately after their transaction commits;
// the broker's mutex serializes sequence assignment and delivery, so
// subscribers observe events in commit order.
type Broker struct {
	mu     sync.Mutex
	seq    uint64
	subs   map[int]*subscriber
	nextID int
	outbox Outbox
	logger *zap.Logger
}

// NewBroker creates a broker. outbox may be nil when no external
// delivery collaborator is configured.
func NewBroker(outbox Outbox, logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		subs:   make(map[int]*subscriber),
		outbox: outbox,
		logger: logger,
	}
}

// Subscribe registers a subscriber with the given channel buffer and
// authorization filter (nil means observe everything — reserved for
// trusted internal consumers). The returned cancel removes the
// subscription and closes the channel.
func (b *Broker) Subscribe(buffer int, filter Filter) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Event, buffer), filter: filter}
	b.subs[id] = sub
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
	}
	return sub.ch, cancel
}

// Publish assigns the next sequence number and delivers the event to
// every subscriber whose filter accepts it, and to the outbox. A
// subscriber that cannot keep up (full buffer) is dropped rather than
// allowed to stall commit-path publication; it can resubscribe and
// resume from the outbox.
//
// Mutating repositories must not call Publish after an unsynchronized
// commit: two transactions could commit in one order and take sequence
// numbers in the other. Use PublishTx, which pins the two together.
func (b *Broker) Publish(ctx context.Context, e Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishLocked(ctx, e)
}

// PublishTx runs commit while holding the publish lock and then
// delivers the events it returns, still under the lock. No other
// transaction can commit and publish in between, so sequence order
// cannot diverge from commit order. A failed commit publishes nothing
// and its error is returned as-is. A nil broker still runs commit, for
// wiring without a feed.
func (b *Broker) PublishTx(ctx context.Context, commit func() ([]Event, error)) error {
	if b == nil {
		_, err := commit()
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	events, err := commit()
	if err != nil {
		return err
	}
	for _, e := range events {
		b.publishLocked(ctx, e)
	}
	return nil
}

func (b *Broker) publishLocked(ctx context.Context, e Event) {
	b.seq++
	e.Seq = b.seq
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	if b.outbox != nil {
		if err := b.outbox.Append(ctx, e); err != nil {
			b.logger.Error("feed outbox append failed",
				zap.Error(err),
				zap.Uint64("seq", e.Seq),
				zap.String("entity", string(e.Entity)))
		}
	}

	for id, sub := range b.subs {
		if sub.filter != nil && !sub.filter(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			delete(b.subs, id)
			close(sub.ch)
			b.logger.Warn("slow feed subscriber dropped", zap.Int("subscriber", id))
		}
	}
}
