package mcpdeck

import (
	"pkt.systems/mcpdeck/core"
	"pkt.systems/mcpdeck/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnPushEvent(event schema.PushEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnPushEvent(event)
	}
}

func (f eventFanout) OnConnStateChange(state schema.ConnState, err error) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnConnStateChange(state, err)
	}
}
