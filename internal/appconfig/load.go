package appconfig

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/mcpdeck/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("server_url", cfg.ServerURL)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("request.poll_interval_ms", cfg.Request.PollIntervalMillis)
	v.SetDefault("request.timeout_seconds", cfg.Request.TimeoutSeconds)
	v.SetDefault("history.max_entries", cfg.History.MaxEntries)
	v.SetDefault("events.buffer_size", cfg.Events.BufferSize)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.ServerURL = expandEnv(cfg.ServerURL)
	cfg.StateDir = expandEnv(cfg.StateDir)
	if err := validateServerURL(cfg.ServerURL); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ClientConfig converts the file config into the normalized runtime config.
func (c Config) ClientConfig() (schema.ClientConfig, error) {
	return schema.NormalizeClientConfig(schema.ClientConfig{
		BaseURL:         c.ServerURL,
		StateDir:        c.StateDir,
		PollInterval:    time.Duration(c.Request.PollIntervalMillis) * time.Millisecond,
		RequestTimeout:  time.Duration(c.Request.TimeoutSeconds) * time.Second,
		HistoryMax:      c.History.MaxEntries,
		EventBufferSize: c.Events.BufferSize,
	})
}

func validateServerURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("server_url must include scheme and host (e.g. http://localhost:8080)")
	}
	return nil
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
