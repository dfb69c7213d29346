package logx

import (
	"context"

	"pkt.systems/mcpdeck/schema"
	"pkt.systems/pslog"
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithInstance annotates the logger with an instance id when available.
func WithInstance(log pslog.Logger, instance schema.InstanceID) pslog.Logger {
	if instance != "" {
		log = log.With("instance", instance)
	}
	return log
}

// WithRequest annotates the logger with a request id when available.
func WithRequest(log pslog.Logger, requestID schema.RequestID) pslog.Logger {
	if requestID != "" {
		log = log.With("request", requestID)
	}
	return log
}
