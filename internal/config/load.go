package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/zjrosen/wikictl/internal/log"
)

// LocalConfigPath is checked before the user config.
const LocalConfigPath = ".wikictl/config.yaml"

// SetDefaults registers every default with v so env vars and flags can
// override keys that the config file omits.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("profile", d.Profile)
	v.SetDefault("endpoint", d.Endpoint)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("state_path", d.StatePath)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("output", d.Output)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	for name, enabled := range d.Flags {
		v.SetDefault("flags."+name, enabled)
	}
}

// Load reads the config into cfg.
//
// Lookup order:
//  1. cfgFile, when non-empty (it must exist)
//  2. .wikictl/config.yaml (current directory)
//  3. ~/.config/wikictl/config.yaml, written from the template when missing
//
// WIKICTL_* environment variables override file values. The returned path is
// the file that was read, or where a new one should be saved.
func Load(v *viper.Viper, cfgFile string) (Config, string, error) {
	SetDefaults(v)
	v.SetEnvPrefix("WIKICTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := cfgFile
	switch {
	case path != "":
	case fileExists(LocalConfigPath):
		path = LocalConfigPath
	default:
		dir := DefaultConfigDir()
		if dir == "" {
			path = LocalConfigPath
		} else {
			path = filepath.Join(dir, "config.yaml")
		}
		if !fileExists(path) {
			if err := WriteDefaultConfig(path); err != nil {
				// Continue with defaults if the file cannot be created.
				log.Warn(log.CatConfig, "Running without a config file", "path", path, "error", err)
			}
		}
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if cfgFile != "" || fileExists(path) {
			return Config{}, path, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, path, fmt.Errorf("decoding config: %w", err)
	}
	log.Debug(log.CatConfig, "Loaded config", "path", path, "profile", cfg.Profile)
	return cfg, path, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
