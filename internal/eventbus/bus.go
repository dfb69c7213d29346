package eventbus

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"pkt.systems/mcpdeck/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventPush carries one push-feed event.
	EventPush EventType = "push"
	// EventConnState carries a subscription state change.
	EventConnState EventType = "connstate"
)

// Event is one fan-out message delivered to subscribers.
type Event struct {
	Type  EventType
	Push  schema.PushEvent
	State schema.ConnState
	Err   string
}

// Handle identifies one subscriber. Subscribers are removed by handle on
// dialog close rather than by comparing channel values.
type Handle string

// Bus fans events out to independent subscribers. Publishing never
// blocks: a subscriber that falls behind loses events, which is safe
// because every consumer folds idempotently and can reseed from the
// rolling buffer.
type Bus struct {
	mu    sync.Mutex
	subs  map[Handle]chan Event
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[Handle]chan Event),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber and returns its channel and handle.
func (b *Bus) Subscribe() (<-chan Event, Handle) {
	if b == nil {
		return nil, ""
	}
	handle := Handle(uuid.NewString())
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	b.subs[handle] = ch
	count := len(b.subs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.Debug("eventbus subscribe", "handle", handle, "subs", count)
	}
	return ch, handle
}

// Unsubscribe removes a subscriber by handle and closes its channel.
// Unknown handles are ignored.
func (b *Bus) Unsubscribe(handle Handle) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.subs[handle]
	if ok {
		delete(b.subs, handle)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	close(ch)
	if b.log != nil {
		b.log.Debug("eventbus unsubscribe", "handle", handle)
	}
}

// PublishPush publishes one push-feed event.
func (b *Bus) PublishPush(event schema.PushEvent) {
	b.publish(Event{Type: EventPush, Push: event})
}

// PublishConnState publishes a subscription state change.
func (b *Bus) PublishConnState(state schema.ConnState, errText string) {
	b.publish(Event{Type: EventConnState, State: state, Err: errText})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	subs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		subs = append(subs, ch)
	}
	b.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 && b.log != nil {
		b.log.Trace("eventbus dropped", "count", dropped)
	}
}
