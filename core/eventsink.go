package core

import "pkt.systems/mcpdeck/schema"

// EventSink receives push events and connection state changes from the
// reconciler. Sinks must be idempotent: the reconciler delivers at
// least once, and an event may also describe a change a sink already
// applied optimistically.
type EventSink interface {
	OnPushEvent(event schema.PushEvent)
	OnConnStateChange(state schema.ConnState, err error)
}
