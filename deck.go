package mcpdeck

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/mcpdeck/apiclient"
	"pkt.systems/mcpdeck/core"
	"pkt.systems/mcpdeck/internal/eventbus"
	"pkt.systems/mcpdeck/internal/histstore"
	"pkt.systems/mcpdeck/internal/persist"
	"pkt.systems/mcpdeck/internal/serverprefs"
	"pkt.systems/mcpdeck/schema"
	"pkt.systems/pslog"
)

// Deck composes the API client, the event reconciler, and the local
// stores into one console-side coordination layer.
type Deck struct {
	cfg     schema.ClientConfig
	client  *apiclient.Client
	kv      *persist.Store
	history *histstore.Store
	prefs   *serverprefs.Store
	bus     *eventbus.Bus
	rec     *core.Reconciler
	log     pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	done    chan struct{}
	started bool
}

// DeckDeps captures optional dependencies for a Deck.
type DeckDeps struct {
	Logger pslog.Logger
	// EventSink receives reconciler events in addition to the deck's
	// own subscriber bus. Optional.
	EventSink core.EventSink
}

// New assembles a Deck from client configuration. The state directory
// is created on first write; the push-feed subscription is not opened
// until Start.
func New(cfg schema.ClientConfig, deps DeckDeps) (*Deck, error) {
	normalized, err := schema.NormalizeClientConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized

	log := deps.Logger
	if log == nil {
		log = pslog.Ctx(context.Background())
	}

	kv, err := persist.NewStoreWithLogger(cfg.StateDir, log)
	if err != nil {
		return nil, err
	}
	client, err := apiclient.New(cfg, log)
	if err != nil {
		return nil, err
	}
	bus := eventbus.New(log)

	sinks := []core.EventSink{busSink{bus: bus}}
	if deps.EventSink != nil {
		sinks = append(sinks, deps.EventSink)
	}
	var sink core.EventSink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else {
		sink = eventFanout{sinks: sinks}
	}

	rec, err := core.NewReconciler(core.ReconcilerConfig{
		Source:     eventSource{client: client},
		KV:         kv,
		Sink:       sink,
		BufferSize: cfg.EventBufferSize,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	prefs := serverprefs.NewStore(kv, log)
	if err := prefs.SetLastServerURL(cfg.BaseURL); err != nil {
		log.Warn("recording server url failed", "err", err)
	}

	return &Deck{
		cfg:     cfg,
		client:  client,
		kv:      kv,
		history: histstore.NewStore(kv, cfg.HistoryMax, log),
		prefs:   prefs,
		bus:     bus,
		rec:     rec,
		log:     log,
	}, nil
}

// Start seeds the aggregate from a full reload and opens the push-feed
// subscription. It returns immediately; use Wait to block until the
// deck stops.
func (d *Deck) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return errors.New("deck already started")
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.errCh = make(chan error, 1)
	d.done = make(chan struct{})
	d.started = true
	d.mu.Unlock()

	d.log.Info("deck start", "server_url", d.cfg.BaseURL, "state_dir", d.cfg.StateDir)
	go func() {
		defer close(d.done)
		if err := d.Refresh(d.ctx); err != nil && d.ctx.Err() == nil {
			d.log.Warn("initial server reload failed", "err", err)
		}
		d.errCh <- d.rec.Run(d.ctx)
	}()
	return nil
}

// Wait blocks until the deck stops. A shutdown via Stop or context
// cancellation is not an error.
func (d *Deck) Wait() error {
	d.mu.Lock()
	errCh := d.errCh
	started := d.started
	d.mu.Unlock()
	if !started {
		return errors.New("deck not started")
	}
	err := <-errCh
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// Stop tears down the push-feed subscription. The provided context
// bounds how long to wait for the subscription loop to exit.
func (d *Deck) Stop(ctx context.Context) error {
	d.mu.Lock()
	cancel := d.cancel
	done := d.done
	started := d.started
	d.mu.Unlock()
	if !started {
		return nil
	}
	d.log.Info("deck stop requested")
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		d.log.Warn("deck stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-done:
		d.log.Info("deck stopped")
		return nil
	}
}

// Refresh seeds the aggregate from a full server and instance reload.
// Push events folded afterwards land on top of the reloaded state.
func (d *Deck) Refresh(ctx context.Context) error {
	servers, err := d.client.ListServers(ctx)
	if err != nil {
		return err
	}
	var instances []schema.Instance
	for _, srv := range servers {
		list, err := d.client.ListInstances(ctx, srv.Name)
		if err != nil {
			d.log.Warn("instance reload failed", "server", srv.Name, "err", err)
			continue
		}
		instances = append(instances, list...)
	}
	d.rec.Seed(servers, instances)
	d.log.Debug("aggregate seeded", "servers", len(servers), "instances", len(instances))
	return nil
}

// OpenDialog opens an invocation dialog against a server using the
// stored lifecycle preferences. The returned bool reports that a stale
// existing-instance selection was downgraded to per-dialog.
func (d *Deck) OpenDialog(ctx context.Context, server schema.ServerName) (*core.DialogSession, bool, error) {
	name, err := schema.NormalizeServerName(string(server))
	if err != nil {
		return nil, false, err
	}
	prefs := d.prefs.Get(name)
	var running []schema.Instance
	if prefs.Mode == schema.ModeExistingInstance && prefs.SelectedInstance != "" {
		running, err = d.client.ListInstances(ctx, name)
		if err != nil {
			// Cannot verify the selection; treat it as stale rather
			// than failing the open.
			d.log.Warn("instance list failed, dropping selection", "server", name, "err", err)
			running = nil
		}
	}
	return core.NewDialogSession(core.DialogConfig{
		Server:           name,
		Mode:             prefs.Mode,
		SelectedInstance: prefs.SelectedInstance,
	}, running, core.DialogDeps{
		Executor:       d.client,
		ClearSelection: d.prefs.ClearSelection,
		Logger:         d.log,
	})
}

// Invoke runs one command through a dialog session and, on success,
// commits the inputs and output to the invocation history and clears
// any saved draft for the (server, command) key.
func (d *Deck) Invoke(ctx context.Context, session *core.DialogSession, command schema.CommandName, params map[string]any) (schema.Request, error) {
	name, err := schema.NormalizeCommandName(string(command))
	if err != nil {
		return schema.Request{}, err
	}
	req, err := session.Invoke(ctx, name, params)
	if err != nil {
		return req, err
	}
	key := histstore.Key{Server: session.Server(), Command: name}
	if herr := d.history.AddEntry(key, params, req.Output); herr != nil {
		d.log.Warn("history append failed", "server", key.Server, "command", key.Command, "err", herr)
	} else if herr := d.history.ClearDraft(key); herr != nil {
		d.log.Warn("draft clear failed", "server", key.Server, "command", key.Command, "err", herr)
	}
	return req, nil
}

// SetLifecycleMode stores the lifecycle mode preference for a server,
// keeping any instance selection intact.
func (d *Deck) SetLifecycleMode(server schema.ServerName, mode schema.LifecycleMode) error {
	normalized, err := schema.NormalizeLifecycleMode(string(mode))
	if err != nil {
		return err
	}
	prefs := d.prefs.Get(server)
	prefs.Mode = normalized
	return d.prefs.Set(server, prefs)
}

// SelectInstance remembers an instance for a server and switches the
// server to existing-instance mode.
func (d *Deck) SelectInstance(server schema.ServerName, instance schema.InstanceID) error {
	return d.prefs.Set(server, serverprefs.Prefs{
		Mode:             schema.ModeExistingInstance,
		SelectedInstance: instance,
	})
}

// Client exposes the underlying API client.
func (d *Deck) Client() *apiclient.Client { return d.client }

// History exposes the invocation history store.
func (d *Deck) History() *histstore.Store { return d.history }

// Prefs exposes the per-server preference store.
func (d *Deck) Prefs() *serverprefs.Store { return d.prefs }

// Subscribe registers an event observer on the deck's bus.
func (d *Deck) Subscribe() (<-chan eventbus.Event, eventbus.Handle) {
	return d.bus.Subscribe()
}

// Unsubscribe removes a bus observer.
func (d *Deck) Unsubscribe(handle eventbus.Handle) {
	d.bus.Unsubscribe(handle)
}

// Snapshot returns the current server aggregate state.
func (d *Deck) Snapshot() core.AggregateState { return d.rec.Snapshot() }

// ConnState returns the push-feed connection state.
func (d *Deck) ConnState() schema.ConnState { return d.rec.ConnState() }

// RecentEvents returns the buffered push events, oldest first.
func (d *Deck) RecentEvents() []schema.PushEvent { return d.rec.RecentEvents() }

// ReplaySince returns buffered push events delivered after an event id.
func (d *Deck) ReplaySince(after schema.EventID) []schema.PushEvent {
	return d.rec.ReplaySince(after)
}

// eventSource adapts the API client's concrete stream type to the
// reconciler's interface.
type eventSource struct {
	client *apiclient.Client
}

func (s eventSource) OpenEvents(ctx context.Context, after schema.EventID) (core.EventStream, error) {
	stream, err := s.client.OpenEvents(ctx, after)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// busSink bridges reconciler events onto the subscriber bus.
type busSink struct {
	bus *eventbus.Bus
}

func (s busSink) OnPushEvent(event schema.PushEvent) {
	s.bus.PublishPush(event)
}

func (s busSink) OnConnStateChange(state schema.ConnState, err error) {
	text := ""
	if err != nil {
		text = err.Error()
	}
	s.bus.PublishConnState(state, text)
}
