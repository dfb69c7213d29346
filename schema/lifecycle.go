package schema

import "strings"

// LifecycleMode governs who starts and stops an instance around an
// invocation dialog's lifetime.
type LifecycleMode string

const (
	// ModePerInvocation starts a fresh instance before every invocation
	// and stops it afterward, regardless of the invocation's outcome.
	ModePerInvocation LifecycleMode = "per-invocation"
	// ModePerDialog starts lazily on first invocation, reuses the
	// instance for the dialog's lifetime, and stops it on close.
	ModePerDialog LifecycleMode = "per-dialog"
	// ModePersistent starts lazily and never stops automatically.
	ModePersistent LifecycleMode = "persistent"
	// ModeExistingInstance never starts; it reuses a selected running
	// instance, falling back to a fresh start if that instance is dead.
	ModeExistingInstance LifecycleMode = "existing-instance"
)

// DefaultLifecycleMode is applied when no preference is stored.
const DefaultLifecycleMode = ModePerDialog

// NormalizeLifecycleMode validates and normalizes a lifecycle mode value.
func NormalizeLifecycleMode(value string) (LifecycleMode, error) {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	switch LifecycleMode(trimmed) {
	case ModePerInvocation, ModePerDialog, ModePersistent, ModeExistingInstance:
		return LifecycleMode(trimmed), nil
	default:
		return "", ErrInvalidLifecycleMode
	}
}
