package core

import (
	"time"

	"pkt.systems/mcpdeck/schema"
)

// ServerAggregate is the locally reconstructed view of one server.
// Instance membership is tracked by id so the same lifecycle event can
// be applied any number of times without changing the count.
type ServerAggregate struct {
	Name         schema.ServerName
	Status       schema.ServerStatus
	Instances    []schema.InstanceID
	LastVerified time.Time
	LastMetadata time.Time
}

// InstanceCount returns the number of running instances. By
// construction it can never be negative.
func (a ServerAggregate) InstanceCount() int {
	return len(a.Instances)
}

// HasInstance reports whether the given instance id is present.
func (a ServerAggregate) HasInstance(id schema.InstanceID) bool {
	for _, existing := range a.Instances {
		if existing == id {
			return true
		}
	}
	return false
}

// AggregateState is the folded view of all servers and instances. It is
// a value: reducers return a new state and never mutate their input.
type AggregateState struct {
	Servers map[schema.ServerName]ServerAggregate
}

// NewAggregateState returns an empty aggregate.
func NewAggregateState() AggregateState {
	return AggregateState{Servers: make(map[schema.ServerName]ServerAggregate)}
}

// Server returns the aggregate entry for name, if present.
func (s AggregateState) Server(name schema.ServerName) (ServerAggregate, bool) {
	agg, ok := s.Servers[name]
	return agg, ok
}

// SeedAggregate builds a state from a full reload of server definitions
// and their running instances.
func SeedAggregate(servers []schema.ServerInfo, instances []schema.Instance) AggregateState {
	state := NewAggregateState()
	for _, info := range servers {
		status := info.Status
		if status == "" {
			status = schema.ServerStatusUnknown
		}
		state.Servers[info.Name] = ServerAggregate{
			Name:         info.Name,
			Status:       status,
			LastVerified: info.LastVerified,
			LastMetadata: info.LastMetadata,
		}
	}
	for _, inst := range instances {
		agg, ok := state.Servers[inst.Server]
		if !ok {
			agg = ServerAggregate{Name: inst.Server, Status: schema.ServerStatusUnknown}
		}
		if !agg.HasInstance(inst.ID) {
			agg.Instances = append(agg.Instances, inst.ID)
		}
		state.Servers[inst.Server] = agg
	}
	return state
}

// ReduceAggregate folds one push event into the aggregate. The fold is
// pure and idempotent: applying the same event twice yields the same
// state as applying it once. A stop for an unknown instance is a no-op
// rather than an error; it only signals a missed event upstream.
func ReduceAggregate(state AggregateState, event schema.PushEvent) AggregateState {
	switch event.Type {
	case schema.EventServerCreated, schema.EventServerDeleted,
		schema.EventInstanceStarted, schema.EventInstanceStopped,
		schema.EventStartFailed, schema.EventMetadataRetrieved:
	default:
		// Opaque kinds do not touch aggregate state.
		return state
	}
	if event.Server == "" {
		return state
	}

	next := AggregateState{Servers: make(map[schema.ServerName]ServerAggregate, len(state.Servers)+1)}
	for name, agg := range state.Servers {
		next.Servers[name] = agg
	}

	switch event.Type {
	case schema.EventServerCreated:
		if _, ok := next.Servers[event.Server]; !ok {
			next.Servers[event.Server] = ServerAggregate{Name: event.Server, Status: schema.ServerStatusUnknown}
		}
	case schema.EventServerDeleted:
		delete(next.Servers, event.Server)
	case schema.EventInstanceStarted:
		agg := entryFor(next, event.Server)
		agg.Status = schema.ServerStatusVerified
		if !event.Timestamp.IsZero() {
			agg.LastVerified = event.Timestamp
		}
		if event.InstanceID != "" && !agg.HasInstance(event.InstanceID) {
			agg.Instances = append(append([]schema.InstanceID(nil), agg.Instances...), event.InstanceID)
		}
		next.Servers[event.Server] = agg
	case schema.EventInstanceStopped:
		agg, ok := next.Servers[event.Server]
		if !ok || event.InstanceID == "" {
			return state
		}
		if !agg.HasInstance(event.InstanceID) {
			return state
		}
		kept := make([]schema.InstanceID, 0, len(agg.Instances))
		for _, id := range agg.Instances {
			if id != event.InstanceID {
				kept = append(kept, id)
			}
		}
		agg.Instances = kept
		next.Servers[event.Server] = agg
	case schema.EventStartFailed:
		agg := entryFor(next, event.Server)
		agg.Status = schema.ServerStatusFailed
		next.Servers[event.Server] = agg
	case schema.EventMetadataRetrieved:
		agg := entryFor(next, event.Server)
		if !event.Timestamp.IsZero() {
			agg.LastMetadata = event.Timestamp
		}
		next.Servers[event.Server] = agg
	}
	return next
}

func entryFor(state AggregateState, name schema.ServerName) ServerAggregate {
	if agg, ok := state.Servers[name]; ok {
		return agg
	}
	return ServerAggregate{Name: name, Status: schema.ServerStatusUnknown}
}
