package apiclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"pkt.systems/mcpdeck/schema"
	"pkt.systems/pslog"
)

// EventStream is one open push-feed subscription. The events channel is
// closed when the connection ends; Err reports why, if the ending was
// not a clean shutdown.
type EventStream struct {
	events chan schema.PushEvent
	errMu  sync.Mutex
	err    error
	log    pslog.Logger
}

// OpenEvents opens one subscription to the push feed. When after is
// non-empty the server resumes delivery after that event id instead of
// starting from now. The stream lives until ctx is cancelled or the
// connection drops; resuming is the caller's job.
func (c *Client) OpenEvents(ctx context.Context, after schema.EventID) (*EventStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/events"), nil)
	if err != nil {
		return nil, &schema.TransportError{Op: "open events", Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	if after != "" {
		req.Header.Set("Last-Event-ID", string(after))
	}

	resp, err := c.streamCli.Do(req)
	if err != nil {
		return nil, &schema.TransportError{Op: "open events", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &schema.TransportError{Op: "open events", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	stream := &EventStream{
		events: make(chan schema.PushEvent, 256),
		log:    c.log,
	}
	go stream.read(ctx, resp.Body)
	return stream, nil
}

// Events returns the delivery channel. It is closed when the stream ends.
func (s *EventStream) Events() <-chan schema.PushEvent {
	return s.events
}

// Err returns the terminal stream error, if any.
func (s *EventStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *EventStream) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *EventStream) read(ctx context.Context, body io.ReadCloser) {
	defer close(s.events)
	defer func() { _ = body.Close() }()
	err := readSSE(ctx, body, func(id, eventField string, data []byte) {
		var event schema.PushEvent
		if err := json.Unmarshal(data, &event); err != nil {
			if s.log != nil {
				s.log.Warn("push event decode failed", "preview", preview(string(data), 200), "err", err)
			}
			return
		}
		event.ID = schema.EventID(id)
		if event.Type == "" && eventField != "" {
			event.Type = schema.PushEventType(eventField)
		}
		select {
		case s.events <- event:
		case <-ctx.Done():
		}
	})
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		if s.log != nil {
			s.log.Warn("push stream read failed", "err", err)
		}
		s.setErr(err)
	}
}

// LogStream is one open per-instance log subscription.
type LogStream struct {
	lines chan schema.LogLine
	errMu sync.Mutex
	err   error
	log   pslog.Logger
}

// OpenLogs opens a log subscription for one instance, catching up from
// the given line number and then tailing live output.
func (c *Client) OpenLogs(ctx context.Context, server schema.ServerName, instance schema.InstanceID, afterLine int) (*LogStream, error) {
	path := "/servers/" + string(server) + "/instances/" + string(instance) + "/logs"
	if afterLine > 0 {
		path += "?after=" + strconv.Itoa(afterLine)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return nil, &schema.TransportError{Op: "open logs", Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamCli.Do(req)
	if err != nil {
		return nil, &schema.TransportError{Op: "open logs", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &schema.TransportError{Op: "open logs", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	stream := &LogStream{
		lines: make(chan schema.LogLine, 256),
		log:   c.log,
	}
	go stream.read(ctx, resp.Body)
	return stream, nil
}

// Lines returns the delivery channel. It is closed when the stream ends.
func (s *LogStream) Lines() <-chan schema.LogLine {
	return s.lines
}

// Err returns the terminal stream error, if any.
func (s *LogStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *LogStream) read(ctx context.Context, body io.ReadCloser) {
	defer close(s.lines)
	defer func() { _ = body.Close() }()
	err := readSSE(ctx, body, func(_, _ string, data []byte) {
		var line schema.LogLine
		if err := json.Unmarshal(data, &line); err != nil {
			if s.log != nil {
				s.log.Warn("log line decode failed", "preview", preview(string(data), 200), "err", err)
			}
			return
		}
		select {
		case s.lines <- line:
		case <-ctx.Done():
		}
	})
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		s.errMu.Lock()
		if s.err == nil {
			s.err = err
		}
		s.errMu.Unlock()
	}
}

// readSSE parses a server-sent-event body, invoking handle once per
// dispatched event with the accumulated id, event name, and data.
func readSSE(ctx context.Context, r io.Reader, handle func(id, event string, data []byte)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var id, event string
	var data []string
	dispatch := func() {
		if len(data) > 0 {
			handle(id, event, []byte(strings.Join(data, "\n")))
		}
		event = ""
		data = nil
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		if line == "" {
			dispatch()
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, found := strings.Cut(line, ":")
		if !found {
			field, value = line, ""
		}
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			id = value
		case "event":
			event = value
		case "data":
			data = append(data, value)
		}
	}
	dispatch()
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

func preview(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}
