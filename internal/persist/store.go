package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"pkt.systems/pslog"
)

// KV is the persistence port: an opaque key/value store used by every
// stateful component to survive restarts.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Remove(key string) error
}

// Store persists values as one file per key under a state directory.
type Store struct {
	dir string
	log pslog.Logger
}

var _ KV = (*Store)(nil)

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Get reads the value stored under key. The second return is false when
// no value exists.
func (s *Store) Get(key string) ([]byte, bool, error) {
	path := s.pathForKey(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("state get miss", "key", key)
			}
			return nil, false, nil
		}
		if s.log != nil {
			s.log.Warn("state get failed", "key", key, "err", err)
		}
		return nil, false, err
	}
	if s.log != nil {
		s.log.Trace("state get ok", "key", key, "bytes", len(data))
	}
	return data, true, nil
}

// Set writes value under key. The write goes through a temp file and a
// rename so readers never observe a partial value.
func (s *Store) Set(key string, value []byte) error {
	path := s.pathForKey(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return s.failSet(key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "state-*.json")
	if err != nil {
		return s.failSet(key, err)
	}
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return s.failSet(key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return s.failSet(key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return s.failSet(key, err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return s.failSet(key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return s.failSet(key, err)
	}
	if s.log != nil {
		s.log.Trace("state set ok", "key", key, "bytes", len(value))
	}
	return nil
}

// Remove deletes the value stored under key. Removing a missing key is
// not an error.
func (s *Store) Remove(key string) error {
	path := s.pathForKey(key)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		if s.log != nil {
			s.log.Warn("state remove failed", "key", key, "err", err)
		}
		return err
	}
	return nil
}

func (s *Store) failSet(key string, err error) error {
	if s.log != nil {
		s.log.Warn("state set failed", "key", key, "err", err)
	}
	return err
}

// pathForKey maps a key to a file path. Slash-separated key segments
// become directories, so composite keys like "history/<server>/<command>"
// keep their structure on disk instead of being flattened into one name.
func (s *Store) pathForKey(key string) string {
	parts := strings.Split(key, "/")
	elems := make([]string, 0, len(parts)+1)
	elems = append(elems, s.dir)
	for _, part := range parts {
		elems = append(elems, sanitizeSegment(part))
	}
	n := len(elems) - 1
	elems[n] += ".json"
	return filepath.Join(elems...)
}

// sanitizeSegment encodes one key segment as a file name. The encoding
// is injective: '_' is doubled and every other disallowed rune becomes
// its hex code between underscores, so two distinct keys can never land
// on the same file.
func sanitizeSegment(value string) string {
	if value == "" {
		return "_"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r), r == '-', r == '.':
			b.WriteRune(r)
		case r == '_':
			b.WriteString("__")
		default:
			fmt.Fprintf(&b, "_%x_", r)
		}
	}
	name := b.String()
	// "." and ".." are path elements, never file names.
	if name == "." || name == ".." {
		return strings.ReplaceAll(name, ".", "_2e_")
	}
	return name
}
