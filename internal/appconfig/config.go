package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/mcpdeck/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	ServerURL     string        `mapstructure:"server_url" yaml:"server_url"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	Request       RequestConfig `mapstructure:"request" yaml:"request"`
	History       HistoryConfig `mapstructure:"history" yaml:"history"`
	Events        EventsConfig  `mapstructure:"events" yaml:"events"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// RequestConfig controls request submission and polling.
type RequestConfig struct {
	PollIntervalMillis int `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	TimeoutSeconds     int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// HistoryConfig controls the bounded invocation history.
type HistoryConfig struct {
	MaxEntries int `mapstructure:"max_entries" yaml:"max_entries"`
}

// EventsConfig controls the rolling push-event buffer.
type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		ServerURL:     "",
		StateDir:      filepath.Join(home, ".mcpdeck", "state"),
		Request: RequestConfig{
			PollIntervalMillis: int(schema.DefaultPollInterval.Milliseconds()),
			TimeoutSeconds:     int(schema.DefaultRequestTimeout.Seconds()),
		},
		History: HistoryConfig{
			MaxEntries: schema.DefaultHistoryMax,
		},
		Events: EventsConfig{
			BufferSize: schema.DefaultEventBufferSize,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mcpdeck", "config.yaml"), nil
}
