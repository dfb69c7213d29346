package histstore

import (
	"encoding/json"
	"time"

	"pkt.systems/mcpdeck/internal/persist"
	"pkt.systems/mcpdeck/schema"
	"pkt.systems/pslog"
)

// Key addresses one invocation history: a (server, command) pair.
type Key struct {
	Server  schema.ServerName
	Command schema.CommandName
}

func (k Key) storageKey() string {
	return "history/" + string(k.Server) + "/" + string(k.Command)
}

// Entry is one prior invocation: the inputs used, the output produced,
// and when it ran. Output is nil when the entry was never invoked.
type Entry struct {
	Inputs    map[string]any  `json:"inputs"`
	Output    json.RawMessage `json:"output,omitempty"`
	InvokedAt time.Time       `json:"invoked_at"`
}

type record struct {
	Entries  []Entry        `json:"entries,omitempty"`
	Draft    map[string]any `json:"draft,omitempty"`
	HasDraft bool           `json:"has_draft,omitempty"`
}

// Store keeps a bounded invocation history and at most one unsent draft
// per key. It holds no navigation state: callers track their own
// position into [draft, oldest..newest].
type Store struct {
	kv  persist.KV
	max int
	log pslog.Logger
}

// NewStore constructs a history store bounded to max entries per key.
func NewStore(kv persist.KV, max int, logger pslog.Logger) *Store {
	if max <= 0 {
		max = schema.DefaultHistoryMax
	}
	return &Store{kv: kv, max: max, log: logger}
}

// GetHistory returns the stored entries for key, oldest first.
func (s *Store) GetHistory(key Key) ([]Entry, error) {
	rec, err := s.load(key)
	if err != nil {
		return nil, err
	}
	return append([]Entry(nil), rec.Entries...), nil
}

// AddEntry appends an invocation to the history, evicting the oldest
// entry beyond the bound. The draft is left untouched: callers clear it
// explicitly after a successful commit, so an aborted invocation keeps
// the user's edits.
func (s *Store) AddEntry(key Key, inputs map[string]any, output json.RawMessage) error {
	rec, err := s.load(key)
	if err != nil {
		return err
	}
	rec.Entries = append(rec.Entries, Entry{
		Inputs:    cloneInputs(inputs),
		Output:    append(json.RawMessage(nil), output...),
		InvokedAt: time.Now().UTC(),
	})
	if len(rec.Entries) > s.max {
		rec.Entries = rec.Entries[len(rec.Entries)-s.max:]
	}
	return s.save(key, rec)
}

// GetDraft returns the unsent draft for key, if one exists.
func (s *Store) GetDraft(key Key) (map[string]any, bool, error) {
	rec, err := s.load(key)
	if err != nil {
		return nil, false, err
	}
	if !rec.HasDraft {
		return nil, false, nil
	}
	return cloneInputs(rec.Draft), true, nil
}

// SaveDraft stores the draft for key, replacing any previous draft.
func (s *Store) SaveDraft(key Key, inputs map[string]any) error {
	rec, err := s.load(key)
	if err != nil {
		return err
	}
	rec.Draft = cloneInputs(inputs)
	rec.HasDraft = true
	return s.save(key, rec)
}

// ClearDraft removes the draft for key, if any.
func (s *Store) ClearDraft(key Key) error {
	rec, err := s.load(key)
	if err != nil {
		return err
	}
	if !rec.HasDraft {
		return nil
	}
	rec.Draft = nil
	rec.HasDraft = false
	return s.save(key, rec)
}

// ClearHistory removes all entries and the draft for key.
func (s *Store) ClearHistory(key Key) error {
	if err := s.kv.Remove(key.storageKey()); err != nil {
		if s.log != nil {
			s.log.Warn("history clear failed", "server", key.Server, "command", key.Command, "err", err)
		}
		return err
	}
	return nil
}

func (s *Store) load(key Key) (record, error) {
	data, ok, err := s.kv.Get(key.storageKey())
	if err != nil {
		return record{}, err
	}
	if !ok {
		return record{}, nil
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		if s.log != nil {
			s.log.Warn("history load failed", "server", key.Server, "command", key.Command, "err", err)
		}
		// A corrupt record is unrecoverable; start over rather than
		// wedging every later invocation.
		return record{}, nil
	}
	return rec, nil
}

func (s *Store) save(key Key, rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.kv.Set(key.storageKey(), data); err != nil {
		if s.log != nil {
			s.log.Warn("history save failed", "server", key.Server, "command", key.Command, "err", err)
		}
		return err
	}
	return nil
}

func cloneInputs(inputs map[string]any) map[string]any {
	if inputs == nil {
		return nil
	}
	out := make(map[string]any, len(inputs))
	for k, v := range inputs {
		out[k] = v
	}
	return out
}
