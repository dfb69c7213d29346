package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"pkt.systems/mcpdeck/internal/persist"
	"pkt.systems/mcpdeck/schema"
	"pkt.systems/pslog"
)

const cursorKey = "stream-cursor"

// reconnectDelay is the pause between a dropped push-feed connection and
// the next attempt. Variable so tests can shorten it.
var reconnectDelay = time.Second

// Reconciler owns the single push-feed subscription. It folds incoming
// events into the server aggregate, persists the stream cursor, keeps a
// bounded buffer of recent events and fans each event out to the sink
// exactly once per delivery.
type Reconciler struct {
	source EventSource
	kv     persist.KV
	sink   EventSink
	log    pslog.Logger

	mu     sync.Mutex
	state  AggregateState
	conn   schema.ConnState
	cursor schema.EventID
	buffer *eventBuffer
}

// ReconcilerConfig configures a Reconciler. Source is required.
type ReconcilerConfig struct {
	Source EventSource
	// KV persists the stream cursor across runs. Optional.
	KV persist.KV
	// Sink observes events and connection-state changes. Optional.
	Sink EventSink
	// BufferSize bounds the recent-event buffer. Zero means the default.
	BufferSize int
	Logger     pslog.Logger
}

// NewReconciler builds a Reconciler. The persisted cursor, if any, is
// loaded immediately so the first subscription resumes where the last
// run left off.
func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	if cfg.Source == nil {
		return nil, errors.New("core: reconciler needs an event source")
	}
	log := cfg.Logger
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	r := &Reconciler{
		source: cfg.Source,
		kv:     cfg.KV,
		sink:   cfg.Sink,
		log:    log,
		state:  NewAggregateState(),
		conn:   schema.ConnDisconnected,
		buffer: newEventBuffer(cfg.BufferSize),
	}
	if r.kv != nil {
		raw, ok, err := r.kv.Get(cursorKey)
		if err != nil {
			log.Warn("stream cursor load failed", "err", err)
		} else if ok {
			r.cursor = schema.EventID(raw)
		}
	}
	return r, nil
}

// Run subscribes to the push feed and keeps the subscription alive until
// ctx is done. A dropped connection is re-established after a short
// delay, resuming from the persisted cursor. Run always leaves the
// connection state at disconnected.
func (r *Reconciler) Run(ctx context.Context) error {
	defer r.setConnState(schema.ConnDisconnected, nil)
	first := true
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if first {
			r.setConnState(schema.ConnConnecting, nil)
		} else {
			r.setConnState(schema.ConnReconnecting, nil)
		}
		stream, err := r.source.OpenEvents(ctx, r.Cursor())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Warn("push feed connect failed", "err", err)
			r.setConnState(schema.ConnError, err)
			first = false
			if !sleepCtx(ctx, reconnectDelay) {
				return ctx.Err()
			}
			continue
		}
		r.setConnState(schema.ConnConnected, nil)
		r.consume(ctx, stream)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := stream.Err(); err != nil {
			r.log.Warn("push feed dropped", "err", err)
		} else {
			r.log.Debug("push feed closed by server")
		}
		first = false
		if !sleepCtx(ctx, reconnectDelay) {
			return ctx.Err()
		}
	}
}

func (r *Reconciler) consume(ctx context.Context, stream EventStream) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-stream.Events():
			if !ok {
				return
			}
			r.apply(event)
		}
	}
}

// apply folds one event into the aggregate, advances and persists the
// cursor, buffers the event and hands it to the sink. The cursor is
// durable before the sink sees the event, so a crash mid-dispatch
// re-delivers nothing: the reducer tolerates at-least-once delivery
// anyway, but the common path is exactly-once.
func (r *Reconciler) apply(event schema.PushEvent) {
	r.mu.Lock()
	r.state = ReduceAggregate(r.state, event)
	// A redelivered id is already behind the cursor; persisting it again
	// would move the cursor backwards.
	redelivered := r.buffer.Seen(event.ID)
	if event.ID != "" && event.ID != r.cursor && !redelivered {
		r.cursor = event.ID
		if r.kv != nil {
			if err := r.kv.Set(cursorKey, []byte(event.ID)); err != nil {
				r.log.Warn("stream cursor save failed", "err", err)
			}
		}
	}
	if !redelivered {
		r.buffer.Append(event)
	}
	sink := r.sink
	r.mu.Unlock()
	r.log.Trace("push event", "server", event.Server, "type", event.Type, "id", event.ID)
	if sink != nil {
		sink.OnPushEvent(event)
	}
}

func (r *Reconciler) setConnState(state schema.ConnState, err error) {
	r.mu.Lock()
	changed := r.conn != state
	r.conn = state
	sink := r.sink
	r.mu.Unlock()
	if !changed {
		return
	}
	r.log.Debug("push feed state", "state", state)
	if sink != nil {
		sink.OnConnStateChange(state, err)
	}
}

// Seed replaces the aggregate with state derived from a full reload.
// Events applied afterwards fold on top of the seeded state.
func (r *Reconciler) Seed(servers []schema.ServerInfo, instances []schema.Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = SeedAggregate(servers, instances)
}

// Snapshot returns the current aggregate state.
func (r *Reconciler) Snapshot() AggregateState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// ConnState returns the current connection state.
func (r *Reconciler) ConnState() schema.ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn
}

// Cursor returns the id of the last event folded into the aggregate.
func (r *Reconciler) Cursor() schema.EventID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// RecentEvents returns the buffered events, oldest first.
func (r *Reconciler) RecentEvents() []schema.PushEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buffer.Recent()
}

// ReplaySince returns the buffered events delivered after the given id.
func (r *Reconciler) ReplaySince(after schema.EventID) []schema.PushEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buffer.Since(after)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
