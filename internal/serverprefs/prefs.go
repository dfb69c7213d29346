package serverprefs

import (
	"encoding/json"

	"pkt.systems/mcpdeck/internal/persist"
	"pkt.systems/mcpdeck/schema"
	"pkt.systems/pslog"
)

const (
	prefsKeyPrefix = "prefs/"
	lastURLKey     = "last-server-url"
)

// Prefs captures per-server invocation preferences.
type Prefs struct {
	Mode             schema.LifecycleMode `json:"mode"`
	SelectedInstance schema.InstanceID    `json:"selected_instance,omitempty"`
}

// Store persists per-server preferences and the last-used server URL.
type Store struct {
	kv  persist.KV
	log pslog.Logger
}

// NewStore constructs a preference store on top of the persistence port.
func NewStore(kv persist.KV, logger pslog.Logger) *Store {
	return &Store{kv: kv, log: logger}
}

// Get returns the stored preferences for server, with defaults applied
// when nothing is stored or the stored value is unreadable.
func (s *Store) Get(server schema.ServerName) Prefs {
	fallback := Prefs{Mode: schema.DefaultLifecycleMode}
	data, ok, err := s.kv.Get(prefsKeyPrefix + string(server))
	if err != nil || !ok {
		return fallback
	}
	var prefs Prefs
	if err := json.Unmarshal(data, &prefs); err != nil {
		if s.log != nil {
			s.log.Warn("prefs load failed", "server", server, "err", err)
		}
		return fallback
	}
	if _, err := schema.NormalizeLifecycleMode(string(prefs.Mode)); err != nil {
		prefs.Mode = schema.DefaultLifecycleMode
	}
	return prefs
}

// Set stores the preferences for server.
func (s *Store) Set(server schema.ServerName, prefs Prefs) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	if err := s.kv.Set(prefsKeyPrefix+string(server), data); err != nil {
		if s.log != nil {
			s.log.Warn("prefs save failed", "server", server, "err", err)
		}
		return err
	}
	return nil
}

// ClearSelection drops a stale selected-instance reference while
// keeping the stored mode.
func (s *Store) ClearSelection(server schema.ServerName) error {
	prefs := s.Get(server)
	if prefs.SelectedInstance == "" {
		return nil
	}
	prefs.SelectedInstance = ""
	return s.Set(server, prefs)
}

// LastServerURL returns the most recently used orchestrator URL.
func (s *Store) LastServerURL() string {
	data, ok, err := s.kv.Get(lastURLKey)
	if err != nil || !ok {
		return ""
	}
	var url string
	if err := json.Unmarshal(data, &url); err != nil {
		return ""
	}
	return url
}

// SetLastServerURL records the most recently used orchestrator URL.
func (s *Store) SetLastServerURL(url string) error {
	data, err := json.Marshal(url)
	if err != nil {
		return err
	}
	return s.kv.Set(lastURLKey, data)
}
