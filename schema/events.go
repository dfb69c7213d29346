package schema

import (
	"encoding/json"
	"time"
)

// PushEventType is the event kind carried on the push feed.
type PushEventType string

const (
	// EventServerCreated indicates a server definition was created.
	EventServerCreated PushEventType = "ServerCreated"
	// EventServerDeleted indicates a server definition was deleted.
	EventServerDeleted PushEventType = "ServerDeleted"
	// EventInstanceStarted indicates an instance started.
	EventInstanceStarted PushEventType = "Started"
	// EventInstanceStopped indicates an instance stopped.
	EventInstanceStopped PushEventType = "Stopped"
	// EventStartFailed indicates a start attempt failed.
	EventStartFailed PushEventType = "StartFailed"
	// EventMetadataRetrieved indicates tool/prompt/resource metadata was refreshed.
	EventMetadataRetrieved PushEventType = "MetadataRetrieved"
)

// PushEvent is one message delivered on the push feed. Kinds other than
// the constants above are opaque and only retained for display.
type PushEvent struct {
	ID            EventID         `json:"-"`
	Server        ServerName      `json:"serverName"`
	Type          PushEventType   `json:"eventType"`
	Timestamp     time.Time       `json:"timestamp"`
	InstanceID    InstanceID      `json:"instanceId,omitempty"`
	RequestID     RequestID       `json:"requestId,omitempty"`
	Errors        []RequestError  `json:"errors,omitempty"`
	Configuration json.RawMessage `json:"configuration,omitempty"`
}

// ConnState is the state of the push-feed subscription.
type ConnState string

const (
	// ConnDisconnected means no subscription is active.
	ConnDisconnected ConnState = "disconnected"
	// ConnConnecting means the first connection attempt is in progress.
	ConnConnecting ConnState = "connecting"
	// ConnConnected means events are being delivered.
	ConnConnected ConnState = "connected"
	// ConnReconnecting means a dropped subscription is being re-established.
	ConnReconnecting ConnState = "reconnecting"
	// ConnError means the subscription failed and is not being retried.
	ConnError ConnState = "error"
)
