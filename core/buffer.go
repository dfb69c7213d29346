package core

import "pkt.systems/mcpdeck/schema"

// eventBuffer retains the most recent push events for display and for
// replay into freshly opened observers. Oldest events are evicted once
// the bound is exceeded.
type eventBuffer struct {
	events []schema.PushEvent
	max    int
}

func newEventBuffer(max int) *eventBuffer {
	if max <= 0 {
		max = schema.DefaultEventBufferSize
	}
	return &eventBuffer{max: max}
}

func (b *eventBuffer) Append(event schema.PushEvent) {
	if b == nil {
		return
	}
	b.events = append(b.events, event)
	if len(b.events) > b.max {
		b.events = b.events[len(b.events)-b.max:]
	}
}

// Seen reports whether an event with the given id is still buffered.
func (b *eventBuffer) Seen(id schema.EventID) bool {
	if b == nil || id == "" {
		return false
	}
	for _, event := range b.events {
		if event.ID == id {
			return true
		}
	}
	return false
}

// Recent returns a copy of the buffered events, oldest first.
func (b *eventBuffer) Recent() []schema.PushEvent {
	if b == nil {
		return nil
	}
	return append([]schema.PushEvent(nil), b.events...)
}

// Since returns the buffered events delivered after the given id. An
// unknown or empty id yields the whole buffer.
func (b *eventBuffer) Since(after schema.EventID) []schema.PushEvent {
	if b == nil {
		return nil
	}
	if after == "" {
		return b.Recent()
	}
	for i, event := range b.events {
		if event.ID == after {
			return append([]schema.PushEvent(nil), b.events[i+1:]...)
		}
	}
	return b.Recent()
}
