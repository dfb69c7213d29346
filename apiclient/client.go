// Package apiclient talks to the orchestration server's REST surface
// and push feeds. Command submission is asynchronous: a submitted
// request is polled on a fixed cadence until it reaches a terminal
// status. Push feeds are long-lived subscriptions resumable by event id.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pkt.systems/mcpdeck/schema"
	"pkt.systems/pslog"
)

// Client is an HTTP client for one orchestration server.
type Client struct {
	baseURL   string
	cfg       schema.ClientConfig
	client    *http.Client
	streamCli *http.Client
	log       pslog.Logger
}

// New constructs a client for the configured orchestrator.
func New(cfg schema.ClientConfig, logger pslog.Logger) (*Client, error) {
	normalized, err := schema.NormalizeClientConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, schema.ErrNoBaseURL
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Client{
		baseURL: cfg.BaseURL,
		cfg:     cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		// Stream connections stay open indefinitely.
		streamCli: &http.Client{
			Timeout: 0,
		},
		log: logger,
	}, nil
}

// BaseURL returns the configured orchestrator endpoint.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) url(path string) string {
	return c.baseURL + path
}

// doJSON performs one request and decodes a JSON response into out.
// Connection-level failures come back as TransportError; non-2xx
// responses as RemoteError carrying the server's message when present.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return &schema.TransportError{Op: method + " " + path, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &schema.TransportError{Op: method + " " + path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &schema.TransportError{Op: method + " " + path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return remoteFromResponse(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &schema.ParseError{What: method + " " + path, Err: err}
	}
	return nil
}

func remoteFromResponse(status int, body []byte) error {
	var payload struct {
		Errors  []schema.RequestError `json:"errors"`
		Message string                `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if len(payload.Errors) > 0 && payload.Errors[0].Message != "" {
			return &schema.RemoteError{Code: payload.Errors[0].Code, Message: payload.Errors[0].Message}
		}
		if payload.Message != "" {
			return &schema.RemoteError{Code: fmt.Sprintf("%d", status), Message: payload.Message}
		}
	}
	return &schema.RemoteError{
		Code:    fmt.Sprintf("%d", status),
		Message: fmt.Sprintf("server returned status %d", status),
	}
}
