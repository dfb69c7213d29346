package apiclient

import (
	"context"
	"net/http"
	"time"

	"pkt.systems/mcpdeck/internal/logx"
	"pkt.systems/mcpdeck/schema"
)

// SubmitRequest submits one command for asynchronous execution. A
// failure here means the command may or may not have been accepted;
// the caller must not retry blindly, since a duplicate submission can
// duplicate server-side effects.
func (c *Client) SubmitRequest(ctx context.Context, sub schema.SubmitRequest) (schema.Request, error) {
	var req schema.Request
	err := c.doJSON(ctx, http.MethodPost, "/requests", sub, &req)
	if err != nil {
		if schema.IsTransport(err) {
			return schema.Request{}, err
		}
		// The submission call itself failing is a transport-level
		// outcome regardless of how the server phrased it.
		return schema.Request{}, &schema.TransportError{Op: "submit " + string(sub.Command), Err: err}
	}
	if req.ID == "" {
		return schema.Request{}, &schema.TransportError{Op: "submit " + string(sub.Command), Err: &schema.ParseError{What: "request id"}}
	}
	c.log.Debug("request submitted", "request", req.ID, "command", sub.Command, "target", sub.Target)
	return req, nil
}

// GetRequest fetches the current state of a submitted request.
func (c *Client) GetRequest(ctx context.Context, id schema.RequestID) (schema.Request, error) {
	var req schema.Request
	if err := c.doJSON(ctx, http.MethodGet, "/requests/"+string(id), nil, &req); err != nil {
		return schema.Request{}, err
	}
	if req.ID == "" {
		req.ID = id
	}
	return req, nil
}

// Execute submits a command and polls it to a terminal status. The poll
// cadence and wall-clock budget come from the client config. A context
// cancellation is honored before every poll tick and wins over a poll
// that is due. On timeout the remote request may still be running.
func (c *Client) Execute(ctx context.Context, sub schema.SubmitRequest) (schema.Request, error) {
	req, err := c.SubmitRequest(ctx, sub)
	if err != nil {
		return schema.Request{}, err
	}
	return c.PollToCompletion(ctx, req)
}

// PollToCompletion polls an already-submitted request until it reaches
// completed or failed, the poll budget elapses, or ctx is cancelled.
func (c *Client) PollToCompletion(ctx context.Context, req schema.Request) (schema.Request, error) {
	log := logx.WithRequest(logx.Ctx(ctx), req.ID)
	if req.Status.Terminal() {
		return c.finish(req)
	}

	started := time.Now()
	budget := time.NewTimer(c.cfg.RequestTimeout)
	defer budget.Stop()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// Cancellation wins over a poll that is already due; no final
		// poll is made on behalf of a cancelled caller.
		select {
		case <-ctx.Done():
			log.Debug("request poll cancelled")
			return schema.Request{}, schema.ErrCancelled
		default:
		}

		select {
		case <-ctx.Done():
			log.Debug("request poll cancelled")
			return schema.Request{}, schema.ErrCancelled
		case <-budget.C:
			elapsed := time.Since(started)
			log.Warn("request poll budget exceeded", "elapsed", elapsed.Round(time.Second))
			return schema.Request{}, &schema.TimeoutError{Elapsed: elapsed}
		case <-ticker.C:
		}

		current, err := c.GetRequest(ctx, req.ID)
		if err != nil {
			// The command is already in flight server-side; a flaky
			// poll must not abandon it. The budget still bounds us.
			log.Warn("request poll failed", "err", err)
			continue
		}
		if current.Status.Terminal() {
			return c.finish(current)
		}
		log.Trace("request still in flight", "status", current.Status)
	}
}

func (c *Client) finish(req schema.Request) (schema.Request, error) {
	if req.Status == schema.RequestFailed {
		code := ""
		if len(req.Errors) > 0 {
			code = req.Errors[0].Code
		}
		return req, &schema.RemoteError{Code: code, Message: req.FailureMessage()}
	}
	return req, nil
}
