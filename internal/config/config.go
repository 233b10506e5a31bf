// Package config provides configuration types and defaults for wikictl.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/wikictl/internal/flags"
	"github.com/zjrosen/wikictl/internal/log"
	"github.com/zjrosen/wikictl/internal/tracing"
)

// Output formats accepted by the output setting.
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// DefaultProfile is used when neither the config nor --profile names one.
const DefaultProfile = "default"

// Config holds all configuration options for wikictl.
type Config struct {
	// Profile selects the saved session (endpoint plus login cookies).
	Profile string `mapstructure:"profile"`

	// Endpoint overrides the profile's api.php URL.
	Endpoint string `mapstructure:"endpoint"`

	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`

	// StatePath is the SQLite database holding sessions and history.
	StatePath string `mapstructure:"state_path"`

	Cache   CacheConfig    `mapstructure:"cache"`
	Watch   WatchConfig    `mapstructure:"watch"`
	Output  string         `mapstructure:"output"`
	Tracing tracing.Config `mapstructure:"tracing"`

	// Flags toggles optional behaviour; see package flags.
	Flags map[string]bool `mapstructure:"flags"`
}

// CacheConfig controls the per-process token and site-info caches.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// WatchConfig tunes `page publish --watch`.
type WatchConfig struct {
	// Debounce is how long the file must be quiet before it is published.
	Debounce time.Duration `mapstructure:"debounce"`
}

// DefaultConfigDir returns ~/.config/wikictl, or "" if home is unavailable.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "wikictl")
}

// DefaultStatePath returns the default SQLite state file.
// Returns ~/.config/wikictl/state.db or "state.db" if home dir unavailable.
func DefaultStatePath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return "state.db"
	}
	return filepath.Join(dir, "state.db")
}

// DefaultTracesFilePath returns the default path for trace file export.
func DefaultTracesFilePath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	tr := tracing.DefaultConfig()
	tr.FilePath = DefaultTracesFilePath()
	return Config{
		Profile:   DefaultProfile,
		UserAgent: "",
		Timeout:   time.Minute,
		StatePath: DefaultStatePath(),
		Cache: CacheConfig{
			Enabled: true,
			TTL:     10 * time.Minute,
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		Output:  OutputText,
		Tracing: tr,
		Flags:   flags.Defaults(),
	}
}

// Validate checks every section and returns the first problem found.
func (c Config) Validate() error {
	if c.Profile == "" {
		return fmt.Errorf("profile must not be empty")
	}
	if c.Endpoint != "" {
		if err := ValidateEndpoint(c.Endpoint); err != nil {
			return err
		}
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if c.StatePath == "" {
		return fmt.Errorf("state_path must not be empty")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got %s", c.Cache.TTL)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", c.Watch.Debounce)
	}
	if err := ValidateOutput(c.Output); err != nil {
		return err
	}
	return ValidateTracing(c.Tracing)
}

// ValidateEndpoint checks that endpoint is an absolute http(s) URL.
func ValidateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("endpoint is not a valid URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint must be an absolute http(s) URL, got %q", endpoint)
	}
	return nil
}

// ValidateOutput checks the output format.
func ValidateOutput(output string) error {
	switch output {
	case "", OutputText, OutputJSON, OutputYAML:
		return nil
	default:
		return fmt.Errorf("output must be %q, %q, or %q, got %q", OutputText, OutputJSON, OutputYAML, output)
	}
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tr tracing.Config) error {
	if tr.SampleRate < 0.0 || tr.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tr.SampleRate)
	}

	if tr.Exporter != "" {
		switch tr.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tr.Exporter)
		}
	}

	if tr.Enabled {
		if tr.Exporter == "file" && tr.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tr.Exporter == "otlp" && tr.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# wikictl configuration

# Saved session to use. Sessions hold the wiki endpoint and login cookies;
# manage them with 'wikictl profile'.
profile: default

# api.php URL. Overrides the endpoint stored in the profile's session.
# endpoint: https://en.wikipedia.org/w/api.php

# HTTP settings
# user_agent: "mybot/1.0 (https://example.org/mybot)"
timeout: 1m

# SQLite database holding saved sessions and command history
# state_path: ~/.config/wikictl/state.db

# Per-process caches for tokens and site info
cache:
  enabled: true
  ttl: 10m

# page publish --watch
watch:
  debounce: 500ms   # Wait for the file to be quiet before publishing

# Output format: text (default), json, or yaml
output: text

# Feature flags
# flags:
#   journal: true           # Record processed records for 'wikictl history'
#   restore-session: true   # Reuse the profile's saved login cookies

# Distributed tracing
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/wikictl/traces/traces.jsonl
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
