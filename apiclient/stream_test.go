package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pkt.systems/mcpdeck/schema"
)

func collectEvents(t *testing.T, stream *EventStream, want int) []schema.PushEvent {
	t.Helper()
	var events []schema.PushEvent
	deadline := time.After(2 * time.Second)
	for len(events) < want {
		select {
		case event, ok := <-stream.Events():
			if !ok {
				return events
			}
			events = append(events, event)
		case <-deadline:
			t.Fatalf("timed out after %d of %d events", len(events), want)
		}
	}
	return events
}

func TestOpenEventsParsesFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("missing accept header")
		}
		if got := r.Header.Get("Last-Event-ID"); got != "" {
			t.Errorf("expected no resume header on first connect, got %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("id: evt-1\ndata: {\"serverName\":\"foo\",\"eventType\":\"Started\",\"instanceId\":\"abc-1\"}\n\n"))
		_, _ = w.Write([]byte(": keepalive\n\n"))
		_, _ = w.Write([]byte("id: evt-2\ndata: {\"serverName\":\"foo\",\"eventType\":\"SomethingCustom\"}\n\n"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, time.Second)
	stream, err := client.OpenEvents(context.Background(), "")
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	events := collectEvents(t, stream, 2)
	if events[0].ID != "evt-1" || events[0].Type != schema.EventInstanceStarted || events[0].InstanceID != "abc-1" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].ID != "evt-2" || events[1].Type != "SomethingCustom" {
		t.Fatalf("opaque event kinds must pass through: %+v", events[1])
	}
	if _, ok := <-stream.Events(); ok {
		t.Fatalf("expected channel closed after server hangup")
	}
	if stream.Err() != nil {
		t.Fatalf("clean hangup should not be an error: %v", stream.Err())
	}
}

func TestOpenEventsSendsResumeCursor(t *testing.T) {
	gotResume := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotResume <- r.Header.Get("Last-Event-ID")
		w.Header().Set("Content-Type", "text/event-stream")
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, time.Second)
	stream, err := client.OpenEvents(context.Background(), "evt-42")
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	select {
	case got := <-gotResume:
		if got != "evt-42" {
			t.Fatalf("expected resume after evt-42, got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("server never saw the subscription")
	}
	for range stream.Events() {
	}
}

func TestOpenEventsRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, time.Second)
	if _, err := client.OpenEvents(context.Background(), ""); !schema.IsTransport(err) {
		t.Fatalf("expected transport failure, got %v", err)
	}
}

func TestOpenEventsEventIDPersistsAcrossFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("id: evt-7\ndata: {\"serverName\":\"a\",\"eventType\":\"Started\",\"instanceId\":\"i1\"}\n\n"))
		// Per the SSE format the id field persists until replaced.
		_, _ = w.Write([]byte("data: {\"serverName\":\"b\",\"eventType\":\"Started\",\"instanceId\":\"i2\"}\n\n"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, time.Second)
	stream, err := client.OpenEvents(context.Background(), "")
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	events := collectEvents(t, stream, 2)
	if events[1].ID != "evt-7" {
		t.Fatalf("expected sticky event id, got %q", events[1].ID)
	}
}

func TestOpenLogsCatchUpParameter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/servers/foo/instances/abc-1/logs" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("after"); got != "17" {
			t.Errorf("expected after=17, got %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"lineNumber\":18,\"text\":\"hello\"}\n\n"))
		_, _ = w.Write([]byte("data: {\"lineNumber\":19,\"text\":\"world\"}\n\n"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, time.Second)
	stream, err := client.OpenLogs(context.Background(), "foo", "abc-1", 17)
	if err != nil {
		t.Fatalf("open logs: %v", err)
	}
	var lines []schema.LogLine
	for line := range stream.Lines() {
		lines = append(lines, line)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].LineNumber != 18 || lines[0].Text != "hello" {
		t.Fatalf("unexpected first line: %+v", lines[0])
	}
	if stream.Err() != nil {
		t.Fatalf("clean hangup should not be an error: %v", stream.Err())
	}
}
