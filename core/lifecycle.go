package core

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/mcpdeck/internal/logx"
	"pkt.systems/mcpdeck/schema"
	"pkt.systems/pslog"
)

// DialogConfig describes one invocation dialog against a server.
type DialogConfig struct {
	Server schema.ServerName
	// Mode governs instance lifetime. Empty means the default mode.
	Mode schema.LifecycleMode
	// SelectedInstance is the remembered instance for existing-instance
	// mode. Ignored for other modes.
	SelectedInstance schema.InstanceID
}

// DialogSession coordinates instance lifetime for one dialog: which
// instance invocations target, and whether this session is responsible
// for stopping it. A session is not safe to use after Close.
type DialogSession struct {
	id     string
	server schema.ServerName
	mode   schema.LifecycleMode
	deps   DialogDeps
	log    pslog.Logger

	mu       sync.Mutex
	instance schema.InstanceID
	owns     bool
	closed   bool
	bg       sync.WaitGroup
}

// NewDialogSession opens a dialog session. running is the current
// running-instances list for the server and is only consulted in
// existing-instance mode: a remembered selection that is no longer
// running silently downgrades the session to per-dialog and clears the
// stale selection. The returned bool reports that downgrade.
func NewDialogSession(cfg DialogConfig, running []schema.Instance, deps DialogDeps) (*DialogSession, bool, error) {
	if cfg.Server == "" {
		return nil, false, schema.ErrInvalidServer
	}
	if deps.Executor == nil {
		return nil, false, errors.New("core: dialog session needs an executor")
	}
	log := deps.Logger
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	s := &DialogSession{
		id:     newID(),
		server: cfg.Server,
		mode:   cfg.Mode,
		deps:   deps,
	}
	if s.mode == "" {
		s.mode = schema.DefaultLifecycleMode
	}
	if s.deps.Diagnostics == nil {
		s.deps.Diagnostics = logDiagnostics{log: log}
	}
	s.log = log.With("server", s.server, "dialog", s.id)
	var downgraded bool
	if s.mode == schema.ModeExistingInstance {
		if instanceRunning(running, cfg.SelectedInstance) {
			s.instance = cfg.SelectedInstance
		} else {
			s.mode = schema.ModePerDialog
			downgraded = true
			s.log.Debug("stale instance selection, downgrading to per-dialog",
				"selected", cfg.SelectedInstance)
			s.clearSelection()
		}
	}
	return s, downgraded, nil
}

func instanceRunning(running []schema.Instance, id schema.InstanceID) bool {
	if id == "" {
		return false
	}
	for _, inst := range running {
		if inst.ID == id {
			return true
		}
	}
	return false
}

// ID returns the session's identifier, used for log correlation.
func (s *DialogSession) ID() string { return s.id }

// Server returns the server this dialog targets.
func (s *DialogSession) Server() schema.ServerName { return s.server }

// Mode returns the effective lifecycle mode, after any downgrade.
func (s *DialogSession) Mode() schema.LifecycleMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Instance returns the instance the session currently targets, if any.
func (s *DialogSession) Instance() schema.InstanceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instance
}

// Invoke runs one command against the instance the lifecycle mode
// prescribes, starting and stopping instances as needed. Invocations on
// the same session are serialized.
func (s *DialogSession) Invoke(ctx context.Context, command schema.CommandName, params map[string]any) (schema.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return schema.Request{}, schema.ErrDialogClosed
	}
	switch s.mode {
	case schema.ModePerInvocation:
		return s.invokeEphemeral(ctx, command, params)
	case schema.ModeExistingInstance:
		return s.invokeSelected(ctx, command, params)
	default:
		return s.invokeShared(ctx, command, params)
	}
}

// invokeEphemeral starts a fresh instance, invokes, and always stops
// the instance afterward, whatever the invocation's outcome.
func (s *DialogSession) invokeEphemeral(ctx context.Context, command schema.CommandName, params map[string]any) (schema.Request, error) {
	instance, err := s.start(ctx)
	if err != nil {
		return schema.Request{}, err
	}
	req, err := s.invoke(ctx, instance, command, params)
	s.stopBestEffort(context.WithoutCancel(ctx), instance)
	return req, err
}

// invokeShared lazily starts the dialog's instance on first use and
// reuses it afterward. Covers per-dialog and persistent modes.
func (s *DialogSession) invokeShared(ctx context.Context, command schema.CommandName, params map[string]any) (schema.Request, error) {
	if s.instance == "" {
		instance, err := s.start(ctx)
		if err != nil {
			return schema.Request{}, err
		}
		s.instance = instance
		s.owns = true
	}
	return s.invoke(ctx, s.instance, command, params)
}

// invokeSelected targets the remembered instance. A failed invocation
// against it means the instance is dead: the selection is cleared, a
// fresh instance is started and owned by the session, and the
// invocation is retried exactly once. The retry's failure, not the
// original one, is what the caller sees.
func (s *DialogSession) invokeSelected(ctx context.Context, command schema.CommandName, params map[string]any) (schema.Request, error) {
	req, err := s.invoke(ctx, s.instance, command, params)
	if err == nil || s.owns {
		return req, err
	}
	if errors.Is(err, schema.ErrCancelled) || ctx.Err() != nil {
		return req, err
	}
	s.log.Warn("selected instance unresponsive, starting a fresh one",
		"instance", s.instance, "err", err)
	s.clearSelection()
	instance, startErr := s.start(ctx)
	if startErr != nil {
		return schema.Request{}, startErr
	}
	s.instance = instance
	s.owns = true
	return s.invoke(ctx, instance, command, params)
}

func (s *DialogSession) invoke(ctx context.Context, instance schema.InstanceID, command schema.CommandName, params map[string]any) (schema.Request, error) {
	return s.deps.Executor.Execute(ctx, schema.SubmitRequest{
		Command:    command,
		Target:     schema.InstanceTarget(s.server, instance).String(),
		Parameters: params,
	})
}

func (s *DialogSession) start(ctx context.Context) (schema.InstanceID, error) {
	req, err := s.deps.Executor.Execute(ctx, schema.SubmitRequest{
		Command: schema.CommandStartServer,
		Target:  schema.ServerTarget(s.server).String(),
	})
	if err != nil {
		return "", err
	}
	instance, err := schema.InstanceIDFromOutput(req.Output)
	if err != nil {
		return "", err
	}
	logx.WithInstance(s.log, instance).Debug("instance started")
	return instance, nil
}

// stopBestEffort stops an instance without surfacing failures: the
// instance may already be gone, and cleanup trouble is reported to the
// diagnostic sink rather than to the user.
func (s *DialogSession) stopBestEffort(ctx context.Context, instance schema.InstanceID) {
	_, err := s.deps.Executor.Execute(ctx, schema.SubmitRequest{
		Command: schema.CommandStopServer,
		Target:  schema.InstanceTarget(s.server, instance).String(),
	})
	if err != nil {
		s.deps.Diagnostics.OnCleanupFailure(s.server, instance, err)
		return
	}
	logx.WithInstance(s.log, instance).Debug("instance stopped")
}

func (s *DialogSession) clearSelection() {
	if s.deps.ClearSelection == nil {
		return
	}
	if err := s.deps.ClearSelection(s.server); err != nil {
		s.log.Warn("clearing instance selection failed", "err", err)
	}
}

// Close ends the dialog. An instance this session started is stopped in
// the background on a detached context, so an in-flight stop survives
// the caller's cancellation. Persistent-mode instances are left running.
func (s *DialogSession) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	instance := s.instance
	s.instance = ""
	if instance == "" || !s.owns || s.mode == schema.ModePersistent {
		return
	}
	stopCtx := context.WithoutCancel(ctx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.stopBestEffort(stopCtx, instance)
	}()
}

// Wait blocks until background cleanup launched by Close has finished.
func (s *DialogSession) Wait() {
	s.bg.Wait()
}
