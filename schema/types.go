package schema

import "time"

// ServerName identifies a server definition on the orchestrator.
type ServerName string

// InstanceID identifies a running remote worker instance.
type InstanceID string

// RequestID identifies an asynchronous command request.
type RequestID string

// CommandName names a command submitted to the orchestrator.
type CommandName string

const (
	// CommandStartServer starts a fresh instance of a server.
	CommandStartServer CommandName = "mcp-server.start"
	// CommandStopServer stops one running instance.
	CommandStopServer CommandName = "mcp-server.stop"
)

// EventID identifies a delivered push event. IDs are opaque but ordered
// by the server; a stored id can be handed back on reconnect to resume
// delivery after that point.
type EventID string

// Instance describes a running remote worker process.
type Instance struct {
	ID        InstanceID `json:"instanceId"`
	Server    ServerName `json:"serverName"`
	StartedAt time.Time  `json:"startedAt"`
}

// ServerStatus is the verification status of a server definition.
type ServerStatus string

const (
	// ServerStatusUnknown means the server has not been verified yet.
	ServerStatusUnknown ServerStatus = "unknown"
	// ServerStatusVerified means the server started at least once.
	ServerStatusVerified ServerStatus = "verified"
	// ServerStatusFailed means the most recent start attempt failed.
	ServerStatusFailed ServerStatus = "failed"
)

// ServerInfo describes a server definition as reported by the orchestrator.
type ServerInfo struct {
	Name          ServerName   `json:"name"`
	Status        ServerStatus `json:"status,omitempty"`
	LastVerified  time.Time    `json:"lastVerified,omitzero"`
	LastMetadata  time.Time    `json:"lastMetadataUpdate,omitzero"`
	InstanceCount int          `json:"instanceCount,omitempty"`
}

// Target identifies what a command operates on: a server, optionally
// narrowed to one of its running instances.
type Target struct {
	Server   ServerName
	Instance InstanceID
}

// String renders the target in the orchestrator's reference form.
func (t Target) String() string {
	if t.Instance != "" {
		return "mcp-servers/" + string(t.Server) + "/instances/" + string(t.Instance)
	}
	return "mcp-servers/" + string(t.Server)
}

// ServerTarget returns a target referencing a server definition.
func ServerTarget(server ServerName) Target {
	return Target{Server: server}
}

// InstanceTarget returns a target referencing one running instance.
func InstanceTarget(server ServerName, instance InstanceID) Target {
	return Target{Server: server, Instance: instance}
}

// LogLine is one line from a per-instance log stream.
type LogLine struct {
	LineNumber int       `json:"lineNumber"`
	Timestamp  time.Time `json:"timestamp"`
	Text       string    `json:"text"`
}
