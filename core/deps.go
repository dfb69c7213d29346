package core

import (
	"context"

	"pkt.systems/mcpdeck/schema"
	"pkt.systems/pslog"
)

// Executor submits a command and tracks it to a terminal status.
type Executor interface {
	Execute(ctx context.Context, sub schema.SubmitRequest) (schema.Request, error)
}

// EventStream is one open push-feed connection.
type EventStream interface {
	Events() <-chan schema.PushEvent
	Err() error
}

// EventSource opens push-feed connections, resuming after an event id.
type EventSource interface {
	OpenEvents(ctx context.Context, after schema.EventID) (EventStream, error)
}

// DiagnosticSink receives failures from best-effort cleanup work.
// Cleanup failures are observable here but never surface to the caller:
// the instance may already be gone, and instance leakage is reported,
// not raised.
type DiagnosticSink interface {
	OnCleanupFailure(server schema.ServerName, instance schema.InstanceID, err error)
}

// DialogDeps captures dependencies for a dialog session.
type DialogDeps struct {
	Executor    Executor
	Diagnostics DiagnosticSink
	// ClearSelection drops a stale selected-instance preference. Optional.
	ClearSelection func(schema.ServerName) error
	Logger         pslog.Logger
}

type logDiagnostics struct {
	log pslog.Logger
}

func (d logDiagnostics) OnCleanupFailure(server schema.ServerName, instance schema.InstanceID, err error) {
	d.log.Warn("instance cleanup failed", "server", server, "instance", instance, "err", err)
}
