package schema

import "encoding/json"

// RequestStatus is the lifecycle status of an asynchronous request.
type RequestStatus string

const (
	// RequestPending means the request is queued but not yet running.
	RequestPending RequestStatus = "pending"
	// RequestRunning means the request is executing.
	RequestRunning RequestStatus = "running"
	// RequestCompleted means the request finished successfully.
	RequestCompleted RequestStatus = "completed"
	// RequestFailed means the request finished with an error.
	RequestFailed RequestStatus = "failed"
)

// Terminal reports whether the status is completed or failed.
func (s RequestStatus) Terminal() bool {
	return s == RequestCompleted || s == RequestFailed
}

// RequestError is one (code, message) error entry on a failed request.
type RequestError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Request is one asynchronous command tracked to a terminal status.
// It is created on submission and mutated only by the server; the
// output payload is opaque and interpreted by the caller.
type Request struct {
	ID         RequestID       `json:"id"`
	Command    CommandName     `json:"command,omitempty"`
	Target     string          `json:"target,omitempty"`
	Status     RequestStatus   `json:"status"`
	Output     json.RawMessage `json:"output,omitempty"`
	Errors     []RequestError  `json:"errors,omitempty"`
	Parameters map[string]any  `json:"parameters,omitempty"`
}

// FailureMessage returns the first reported error message, or a generic
// reason when the server reported a failure without any error entry.
func (r Request) FailureMessage() string {
	for _, e := range r.Errors {
		if e.Message != "" {
			return e.Message
		}
	}
	return "request failed"
}

// SubmitRequest describes a command submission.
type SubmitRequest struct {
	Command    CommandName    `json:"command"`
	Target     string         `json:"target"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ListedItem is one tool, prompt, or resource reported by a server,
// passed through without interpretation.
type ListedItem struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Detail      json.RawMessage `json:"detail,omitempty"`
	Errors      []RequestError  `json:"errors,omitempty"`
}

// ItemListing is a tool/prompt/resource listing plus its retrieval time.
type ItemListing struct {
	Items       []ListedItem `json:"items"`
	RetrievedAt string       `json:"retrievedAt,omitempty"`
}
