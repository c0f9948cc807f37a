package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// DefaultPath is where hotspotd looks for its config file when --config
// is not given.
const DefaultPath = "/etc/fieldkit/hotspotd.yaml"

// Config holds all configuration for hotspotd.
type Config struct {
	SSID        string `koanf:"ssid"`
	Password    string `koanf:"password"`
	Channel     int    `koanf:"channel"`
	APInterface string `koanf:"ap_interface"`
	Persist     bool   `koanf:"persist"`

	Journal JournalConfig     `koanf:"journal"`
	Logging LoggingConfig     `koanf:"logging"`
	Watch   WatchConfig       `koanf:"watch"`
	Probes  map[string]string `koanf:"probes"`
}

// JournalConfig holds SQLite reconcile-journal settings.
type JournalConfig struct {
	Path      string `koanf:"path"`
	Retention string `koanf:"retention"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// WatchConfig holds watch-mode settings.
type WatchConfig struct {
	Interval string `koanf:"interval"`
}

// Load reads configuration with priority: flags > env > yaml file > defaults.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults.
	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	// 2. Load YAML config file (if exists).
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	// 3. Load environment variables (HOTSPOT_ prefix). Config keys contain
	// underscores (ap_interface), so nesting uses a double underscore:
	// HOTSPOT_AP_INTERFACE → ap_interface, HOTSPOT_JOURNAL__PATH → journal.path.
	if err := k.Load(env.Provider("HOTSPOT_", ".", func(s string) string {
		return strings.Replace(
			strings.ToLower(strings.TrimPrefix(s, "HOTSPOT_")),
			"__", ".", -1,
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	// 4. Load CLI flags (highest priority).
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"ssid":              "JetsonFieldKit",
		"password":          "fieldkit123",
		"channel":           1,
		"ap_interface":      "",
		"persist":           false,
		"journal.path":      "/var/lib/fieldkit/hotspotd.db",
		"journal.retention": "720h",
		"logging.level":     "info",
		"logging.format":    "json",
		"watch.interval":    "30s",
		"probes": map[string]string{
			"kiwix":    "127.0.0.1:8080",
			"mediamtx": "127.0.0.1:8554",
		},
	}

	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}
