package schema

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidServer indicates an invalid server name.
	ErrInvalidServer = errors.New("invalid server name")
	// ErrInvalidCommand indicates an invalid command name.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrInvalidLifecycleMode indicates an unrecognized lifecycle mode.
	ErrInvalidLifecycleMode = errors.New("invalid lifecycle mode")
	// ErrCancelled indicates a request was cancelled before completion.
	ErrCancelled = errors.New("request cancelled")
	// ErrDialogClosed indicates an operation on a closed dialog session.
	ErrDialogClosed = errors.New("dialog closed")
	// ErrNoBaseURL indicates the orchestrator URL is not configured.
	ErrNoBaseURL = errors.New("server url not configured")
)

// TransportError indicates a submission or connection could not be
// established. It is never retried automatically: a retried submission
// could duplicate server-side effects.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return e.Op + ": transport failure"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError indicates polling exceeded the wait budget. The remote
// request may still be running; the caller must not assume cancellation.
type TimeoutError struct {
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s; it may still be running", e.Elapsed.Round(time.Second))
}

// RemoteError indicates the server reported a terminal failed status.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return "request failed"
	}
	return e.Message
}

// ParseError indicates a payload did not match its expected shape. It is
// presented like a remote failure with a generic message.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "unexpected " + e.What + " payload"
	}
	return "unexpected " + e.What + " payload: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsTimeout reports whether err is a poll-budget timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsRemote reports whether err is a server-reported failure. Parse
// failures count as remote: the caller sees one uniform error slot.
func IsRemote(err error) bool {
	var re *RemoteError
	var pe *ParseError
	return errors.As(err, &re) || errors.As(err, &pe)
}
