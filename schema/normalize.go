package schema

import (
	"strings"
	"unicode"
)

// NormalizeServerName validates and normalizes a server name.
// Allowed characters: A-Z, a-z, 0-9, '.', '_', '-'.
func NormalizeServerName(name string) (ServerName, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrInvalidServer
	}
	for _, r := range trimmed {
		if r == '.' || r == '_' || r == '-' {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return "", ErrInvalidServer
	}
	return ServerName(trimmed), nil
}

// NormalizeCommandName validates a command name. Commands use the same
// character set as server names plus '/' and ':' for namespacing.
func NormalizeCommandName(name string) (CommandName, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrInvalidCommand
	}
	for _, r := range trimmed {
		if r == '.' || r == '_' || r == '-' || r == '/' || r == ':' {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return "", ErrInvalidCommand
	}
	return CommandName(trimmed), nil
}
