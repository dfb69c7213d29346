package core

import (
	"testing"
	"time"

	"pkt.systems/mcpdeck/schema"
)

func TestReduceServerLifecycle(t *testing.T) {
	state := NewAggregateState()
	state = ReduceAggregate(state, schema.PushEvent{Type: schema.EventServerCreated, Server: "foo"})
	agg, ok := state.Server("foo")
	if !ok {
		t.Fatalf("expected server entry")
	}
	if agg.Status != schema.ServerStatusUnknown {
		t.Fatalf("new server should be unknown, got %q", agg.Status)
	}

	state = ReduceAggregate(state, schema.PushEvent{Type: schema.EventServerDeleted, Server: "foo"})
	if _, ok := state.Server("foo"); ok {
		t.Fatalf("expected server removed")
	}
}

func TestReduceStartedIsIdempotent(t *testing.T) {
	event := schema.PushEvent{
		Type:       schema.EventInstanceStarted,
		Server:     "foo",
		InstanceID: "abc-1",
		Timestamp:  time.Date(2026, time.August, 29, 10, 0, 0, 0, time.UTC),
	}
	state := ReduceAggregate(NewAggregateState(), event)
	again := ReduceAggregate(state, event)

	agg, ok := again.Server("foo")
	if !ok {
		t.Fatalf("expected server entry")
	}
	if agg.InstanceCount() != 1 {
		t.Fatalf("duplicate Started must not double-count: got %d", agg.InstanceCount())
	}
	if agg.Status != schema.ServerStatusVerified {
		t.Fatalf("unexpected status %q", agg.Status)
	}
	if !agg.LastVerified.Equal(event.Timestamp) {
		t.Fatalf("unexpected last verified %s", agg.LastVerified)
	}
}

func TestReduceStoppedClampsAtZero(t *testing.T) {
	// A stop for an instance we never saw must be a no-op, never a
	// negative count.
	state := ReduceAggregate(NewAggregateState(), schema.PushEvent{Type: schema.EventServerCreated, Server: "foo"})
	state = ReduceAggregate(state, schema.PushEvent{Type: schema.EventInstanceStopped, Server: "foo", InstanceID: "ghost"})
	agg, _ := state.Server("foo")
	if agg.InstanceCount() != 0 {
		t.Fatalf("unexpected count %d", agg.InstanceCount())
	}

	state = ReduceAggregate(state, schema.PushEvent{Type: schema.EventInstanceStarted, Server: "foo", InstanceID: "abc-1"})
	stop := schema.PushEvent{Type: schema.EventInstanceStopped, Server: "foo", InstanceID: "abc-1"}
	state = ReduceAggregate(state, stop)
	state = ReduceAggregate(state, stop)
	agg, _ = state.Server("foo")
	if agg.InstanceCount() != 0 {
		t.Fatalf("expected zero instances after duplicate stop, got %d", agg.InstanceCount())
	}
}

func TestReduceStartFailedMarksServer(t *testing.T) {
	state := ReduceAggregate(NewAggregateState(), schema.PushEvent{Type: schema.EventStartFailed, Server: "foo"})
	agg, ok := state.Server("foo")
	if !ok || agg.Status != schema.ServerStatusFailed {
		t.Fatalf("expected failed server, got %+v", agg)
	}
}

func TestReduceMetadataRetrieved(t *testing.T) {
	ts := time.Date(2026, time.August, 29, 12, 0, 0, 0, time.UTC)
	state := ReduceAggregate(NewAggregateState(), schema.PushEvent{Type: schema.EventMetadataRetrieved, Server: "foo", Timestamp: ts})
	agg, _ := state.Server("foo")
	if !agg.LastMetadata.Equal(ts) {
		t.Fatalf("unexpected metadata timestamp %s", agg.LastMetadata)
	}
}

func TestReduceOpaqueKindLeavesStateUntouched(t *testing.T) {
	state := ReduceAggregate(NewAggregateState(), schema.PushEvent{Type: schema.EventInstanceStarted, Server: "foo", InstanceID: "abc-1"})
	next := ReduceAggregate(state, schema.PushEvent{Type: "SomethingCustom", Server: "foo"})
	agg, _ := next.Server("foo")
	if agg.InstanceCount() != 1 {
		t.Fatalf("opaque kinds must not change the aggregate")
	}
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	state := ReduceAggregate(NewAggregateState(), schema.PushEvent{Type: schema.EventInstanceStarted, Server: "foo", InstanceID: "abc-1"})
	_ = ReduceAggregate(state, schema.PushEvent{Type: schema.EventInstanceStarted, Server: "foo", InstanceID: "abc-2"})
	agg, _ := state.Server("foo")
	if agg.InstanceCount() != 1 {
		t.Fatalf("input state was mutated: %+v", agg)
	}
}

func TestReduceCountNeverNegative(t *testing.T) {
	events := []schema.PushEvent{
		{Type: schema.EventInstanceStopped, Server: "foo", InstanceID: "a"},
		{Type: schema.EventInstanceStarted, Server: "foo", InstanceID: "a"},
		{Type: schema.EventInstanceStopped, Server: "foo", InstanceID: "a"},
		{Type: schema.EventInstanceStopped, Server: "foo", InstanceID: "a"},
		{Type: schema.EventInstanceStopped, Server: "foo", InstanceID: "b"},
	}
	state := NewAggregateState()
	for i, event := range events {
		state = ReduceAggregate(state, event)
		if agg, ok := state.Server("foo"); ok && agg.InstanceCount() < 0 {
			t.Fatalf("negative count after event %d", i)
		}
	}
}

func TestSeedAggregate(t *testing.T) {
	state := SeedAggregate(
		[]schema.ServerInfo{
			{Name: "foo", Status: schema.ServerStatusVerified},
			{Name: "bar"},
		},
		[]schema.Instance{
			{ID: "abc-1", Server: "foo"},
			{ID: "abc-2", Server: "foo"},
		},
	)
	foo, _ := state.Server("foo")
	if foo.InstanceCount() != 2 {
		t.Fatalf("unexpected count %d", foo.InstanceCount())
	}
	bar, _ := state.Server("bar")
	if bar.Status != schema.ServerStatusUnknown {
		t.Fatalf("missing status should default to unknown, got %q", bar.Status)
	}
}
