package schema

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ClientConfig defines defaults and limits for the coordination layer.
type ClientConfig struct {
	// BaseURL is the orchestrator's HTTP endpoint.
	BaseURL string
	// StateDir holds persisted local state (cursor, prefs, history).
	StateDir string
	// PollInterval is the request-poll cadence.
	PollInterval time.Duration
	// RequestTimeout is the wall-clock poll budget per request.
	RequestTimeout time.Duration
	// HistoryMax bounds invocation history per (server, command) key.
	HistoryMax int
	// EventBufferSize bounds the rolling push-event display buffer.
	EventBufferSize int
}

const (
	// DefaultPollInterval is the fixed request-poll cadence.
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultRequestTimeout is the wall-clock poll budget.
	DefaultRequestTimeout = 5 * time.Minute
	// DefaultHistoryMax bounds per-key invocation history.
	DefaultHistoryMax = 20
	// DefaultEventBufferSize bounds the rolling event buffer.
	DefaultEventBufferSize = 1000
)

// NormalizeClientConfig applies defaults and validates the config.
func NormalizeClientConfig(cfg ClientConfig) (ClientConfig, error) {
	if strings.TrimSpace(cfg.BaseURL) != "" {
		parsed, err := url.Parse(cfg.BaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return ClientConfig{}, ErrNoBaseURL
		}
		cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ClientConfig{}, err
		}
		cfg.StateDir = filepath.Join(home, ".mcpdeck", "state")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.HistoryMax <= 0 {
		cfg.HistoryMax = DefaultHistoryMax
	}
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = DefaultEventBufferSize
	}
	return cfg, nil
}
