package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pkt.systems/mcpdeck/internal/persist"
	"pkt.systems/mcpdeck/schema"
)

type fakeStream struct {
	ch  chan schema.PushEvent
	err error
}

func (s *fakeStream) Events() <-chan schema.PushEvent { return s.ch }
func (s *fakeStream) Err() error                      { return s.err }

type fakeSource struct {
	mu     sync.Mutex
	afters []schema.EventID
	open   func(ctx context.Context, after schema.EventID) (EventStream, error)
}

func (s *fakeSource) OpenEvents(ctx context.Context, after schema.EventID) (EventStream, error) {
	s.mu.Lock()
	s.afters = append(s.afters, after)
	s.mu.Unlock()
	return s.open(ctx, after)
}

func (s *fakeSource) seenAfters() []schema.EventID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schema.EventID(nil), s.afters...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []schema.PushEvent
	states []schema.ConnState
	seen   chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{seen: make(chan struct{}, 64)}
}

func (s *recordingSink) OnPushEvent(event schema.PushEvent) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	s.seen <- struct{}{}
}

func (s *recordingSink) OnConnStateChange(state schema.ConnState, err error) {
	s.mu.Lock()
	s.states = append(s.states, state)
	s.mu.Unlock()
}

func (s *recordingSink) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *recordingSink) stateSeq() []schema.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schema.ConnState(nil), s.states...)
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sink delivery")
	}
}

func pushed(id schema.EventID, server schema.ServerName, typ schema.PushEventType, instance schema.InstanceID) schema.PushEvent {
	return schema.PushEvent{
		ID:         id,
		Server:     server,
		Type:       typ,
		Timestamp:  time.Now().UTC(),
		InstanceID: instance,
	}
}

func TestReconcilerResumesFromStoredCursor(t *testing.T) {
	kv, err := persist.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := kv.Set(cursorKey, []byte("evt-42")); err != nil {
		t.Fatalf("seed cursor: %v", err)
	}
	src := &fakeSource{}
	src.open = func(ctx context.Context, after schema.EventID) (EventStream, error) {
		ch := make(chan schema.PushEvent)
		go func() {
			<-ctx.Done()
			close(ch)
		}()
		return &fakeStream{ch: ch}, nil
	}
	r, err := NewReconciler(ReconcilerConfig{Source: src, KV: kv})
	if err != nil {
		t.Fatalf("NewReconciler: %v", err)
	}
	if got := r.Cursor(); got != "evt-42" {
		t.Fatalf("loaded cursor = %q, want evt-42", got)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run = %v, want deadline exceeded", err)
	}
	afters := src.seenAfters()
	if len(afters) == 0 || afters[0] != "evt-42" {
		t.Fatalf("subscription opened after %v, want first open after evt-42", afters)
	}
}

func TestReconcilerAdvancesAndPersistsCursor(t *testing.T) {
	kv, err := persist.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	sink := newRecordingSink()
	src := &fakeSource{}
	events := make(chan schema.PushEvent, 2)
	events <- pushed("evt-1", "foo", schema.EventInstanceStarted, "abc-1")
	events <- pushed("evt-2", "foo", schema.EventInstanceStopped, "abc-1")
	src.open = func(ctx context.Context, after schema.EventID) (EventStream, error) {
		return &fakeStream{ch: events}, nil
	}
	r, err := NewReconciler(ReconcilerConfig{Source: src, KV: kv, Sink: sink})
	if err != nil {
		t.Fatalf("NewReconciler: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx)
		close(done)
	}()
	waitFor(t, sink.seen)
	waitFor(t, sink.seen)
	cancel()
	<-done
	if got := r.Cursor(); got != "evt-2" {
		t.Fatalf("cursor = %q, want evt-2", got)
	}
	raw, ok, err := kv.Get(cursorKey)
	if err != nil || !ok {
		t.Fatalf("cursor not persisted: ok=%v err=%v", ok, err)
	}
	if string(raw) != "evt-2" {
		t.Fatalf("persisted cursor = %q, want evt-2", raw)
	}
	agg, ok := r.Snapshot().Server("foo")
	if !ok {
		t.Fatal("aggregate missing server foo")
	}
	if agg.InstanceCount() != 0 {
		t.Fatalf("instance count = %d, want 0 after start+stop", agg.InstanceCount())
	}
}

func TestReconcilerRedeliveryDoesNotRegressCursor(t *testing.T) {
	kv, err := persist.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	sink := newRecordingSink()
	src := &fakeSource{}
	events := make(chan schema.PushEvent, 3)
	events <- pushed("evt-1", "foo", schema.EventInstanceStarted, "abc-1")
	events <- pushed("evt-2", "foo", schema.EventInstanceStarted, "abc-2")
	// evt-1 again, as a reconnecting broker would redeliver it.
	events <- pushed("evt-1", "foo", schema.EventInstanceStarted, "abc-1")
	src.open = func(ctx context.Context, after schema.EventID) (EventStream, error) {
		return &fakeStream{ch: events}, nil
	}
	r, err := NewReconciler(ReconcilerConfig{Source: src, KV: kv, Sink: sink})
	if err != nil {
		t.Fatalf("NewReconciler: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx)
		close(done)
	}()
	for i := 0; i < 3; i++ {
		waitFor(t, sink.seen)
	}
	cancel()
	<-done
	if got := r.Cursor(); got != "evt-2" {
		t.Fatalf("cursor = %q, want evt-2 after redelivery of evt-1", got)
	}
	raw, ok, err := kv.Get(cursorKey)
	if err != nil || !ok {
		t.Fatalf("cursor not persisted: ok=%v err=%v", ok, err)
	}
	if string(raw) != "evt-2" {
		t.Fatalf("persisted cursor = %q, want evt-2", raw)
	}
	recent := r.RecentEvents()
	if len(recent) != 2 || recent[0].ID != "evt-1" || recent[1].ID != "evt-2" {
		t.Fatalf("recent events = %v, want evt-1 then evt-2 without duplicates", recent)
	}
}

func TestReconcilerBufferEvictsOldest(t *testing.T) {
	sink := newRecordingSink()
	src := &fakeSource{}
	events := make(chan schema.PushEvent, 5)
	ids := []schema.EventID{"e1", "e2", "e3", "e4", "e5"}
	for _, id := range ids {
		events <- pushed(id, "foo", schema.EventMetadataRetrieved, "")
	}
	src.open = func(ctx context.Context, after schema.EventID) (EventStream, error) {
		return &fakeStream{ch: events}, nil
	}
	r, err := NewReconciler(ReconcilerConfig{Source: src, Sink: sink, BufferSize: 3})
	if err != nil {
		t.Fatalf("NewReconciler: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx)
		close(done)
	}()
	for range ids {
		waitFor(t, sink.seen)
	}
	cancel()
	<-done
	recent := r.RecentEvents()
	if len(recent) != 3 {
		t.Fatalf("buffered %d events, want 3", len(recent))
	}
	for i, want := range []schema.EventID{"e3", "e4", "e5"} {
		if recent[i].ID != want {
			t.Fatalf("recent[%d] = %q, want %q", i, recent[i].ID, want)
		}
	}
	replay := r.ReplaySince("e4")
	if len(replay) != 1 || replay[0].ID != "e5" {
		t.Fatalf("replay since e4 = %v, want just e5", replay)
	}
}

func TestReconcilerConnStateTransitions(t *testing.T) {
	sink := newRecordingSink()
	src := &fakeSource{}
	src.open = func(ctx context.Context, after schema.EventID) (EventStream, error) {
		ch := make(chan schema.PushEvent, 1)
		ch <- pushed("e1", "foo", schema.EventServerCreated, "")
		go func() {
			<-ctx.Done()
			close(ch)
		}()
		return &fakeStream{ch: ch}, nil
	}
	r, err := NewReconciler(ReconcilerConfig{Source: src, Sink: sink})
	if err != nil {
		t.Fatalf("NewReconciler: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx)
		close(done)
	}()
	waitFor(t, sink.seen)
	cancel()
	<-done
	seq := sink.stateSeq()
	want := []schema.ConnState{schema.ConnConnecting, schema.ConnConnected, schema.ConnDisconnected}
	if len(seq) != len(want) {
		t.Fatalf("state sequence = %v, want %v", seq, want)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Fatalf("state sequence = %v, want %v", seq, want)
		}
	}
	if got := r.ConnState(); got != schema.ConnDisconnected {
		t.Fatalf("final conn state = %q, want disconnected", got)
	}
}

func TestReconcilerReconnectsAfterDrop(t *testing.T) {
	old := reconnectDelay
	reconnectDelay = time.Millisecond
	defer func() { reconnectDelay = old }()

	sink := newRecordingSink()
	src := &fakeSource{}
	var opens int
	var mu sync.Mutex
	src.open = func(ctx context.Context, after schema.EventID) (EventStream, error) {
		mu.Lock()
		opens++
		n := opens
		mu.Unlock()
		if n == 1 {
			ch := make(chan schema.PushEvent, 1)
			ch <- pushed("evt-7", "foo", schema.EventServerCreated, "")
			close(ch)
			return &fakeStream{ch: ch, err: errors.New("connection reset")}, nil
		}
		ch := make(chan schema.PushEvent)
		go func() {
			<-ctx.Done()
			close(ch)
		}()
		return &fakeStream{ch: ch}, nil
	}
	r, err := NewReconciler(ReconcilerConfig{Source: src, Sink: sink})
	if err != nil {
		t.Fatalf("NewReconciler: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx)
		close(done)
	}()
	waitFor(t, sink.seen)
	deadline := time.Now().Add(5 * time.Second)
	for {
		afters := src.seenAfters()
		if len(afters) >= 2 {
			if afters[1] != "evt-7" {
				t.Fatalf("reconnect resumed after %q, want evt-7", afters[1])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for reconnect")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
	seq := sink.stateSeq()
	var sawReconnecting bool
	for _, s := range seq {
		if s == schema.ConnReconnecting {
			sawReconnecting = true
		}
	}
	if !sawReconnecting {
		t.Fatalf("state sequence %v missing reconnecting", seq)
	}
}
