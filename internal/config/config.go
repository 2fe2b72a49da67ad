// Package config handles configuration loading for squadron.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Bus backend names accepted in configuration.
const (
	BusBackendMemory    = "memory"
	BusBackendJetStream = "jetstream"
)

// Config holds all configuration for squadron.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Bus       BusConfig       `mapstructure:"bus"`
	Store     StoreConfig     `mapstructure:"store"`
	Roster    RosterConfig    `mapstructure:"roster"`
	Observer  ObserverConfig  `mapstructure:"observer"`
	TUI       TUIConfig       `mapstructure:"tui"`
}

// AnthropicConfig holds reasoner API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// UseAWSBedrock routes reasoner calls through AWS Bedrock.
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// BusConfig selects and configures the message bus backend.
type BusConfig struct {
	// Backend is "memory" or "jetstream".
	Backend string `mapstructure:"backend"`
	// QueueCap bounds per-recipient queues on the memory backend.
	QueueCap int `mapstructure:"queue_cap"`
	// URL is the NATS server address for the jetstream backend.
	URL string `mapstructure:"url"`
	// Stream is the JetStream stream name.
	Stream string `mapstructure:"stream"`
	// SubjectPrefix roots the bus subject hierarchy.
	SubjectPrefix string `mapstructure:"subject_prefix"`
	// ConsumerGroup namespaces durable consumer names.
	ConsumerGroup string `mapstructure:"consumer_group"`
	// MaxMsgs bounds stream retention by count (0 = unlimited).
	MaxMsgs int64 `mapstructure:"max_msgs"`
	// MaxAge bounds stream retention by age (0 = unlimited).
	MaxAge time.Duration `mapstructure:"max_age"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Path is the SQLite database file.
	Path string `mapstructure:"path"`
}

// RosterConfig holds squad membership settings.
type RosterConfig struct {
	// Path is the YAML roster file.
	Path string `mapstructure:"path"`
	// Watch enables hot reload on roster file changes.
	Watch bool `mapstructure:"watch"`
}

// ObserverConfig holds the observer side channel settings.
type ObserverConfig struct {
	// Enabled turns on the NATS observer publisher. Without it, observer
	// events are discarded.
	Enabled bool `mapstructure:"enabled"`
	// SubjectPrefix roots observer event subjects.
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// TUIConfig holds monitor display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, SQUADRON_NATS_URL)
// 2. Project config (.squadron.yaml in current directory or parent)
// 3. User config (~/.config/squadron/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("bus.url", "SQUADRON_NATS_URL")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Roster.Path = expandHome(cfg.Roster.Path)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// Validate checks settings that would otherwise fail deep inside startup.
func (c *Config) Validate() error {
	switch c.Bus.Backend {
	case BusBackendMemory:
	case BusBackendJetStream:
		if c.Bus.URL == "" {
			return fmt.Errorf("bus.url is required for the jetstream backend")
		}
	default:
		return fmt.Errorf("unknown bus backend %q (want %q or %q)", c.Bus.Backend, BusBackendMemory, BusBackendJetStream)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	return nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("bus.backend", BusBackendMemory)
	v.SetDefault("bus.queue_cap", 1000)
	v.SetDefault("bus.url", "")
	v.SetDefault("bus.stream", "SQUADRON")
	v.SetDefault("bus.subject_prefix", "squadron")
	v.SetDefault("bus.consumer_group", "squadron")
	v.SetDefault("bus.max_msgs", 100000)
	v.SetDefault("bus.max_age", "168h")

	v.SetDefault("store.path", filepath.Join(defaultDataDir(), "squadron.db"))

	v.SetDefault("roster.path", "")
	v.SetDefault("roster.watch", true)

	v.SetDefault("observer.enabled", false)
	v.SetDefault("observer.subject_prefix", "squadron.events")

	v.SetDefault("tui.refresh_rate", "250ms")
}

// getUserConfigDir returns the XDG config directory for squadron.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "squadron")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "squadron")
	}
	return filepath.Join(home, ".config", "squadron")
}

// defaultDataDir returns the XDG data directory for squadron.
func defaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "squadron")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "share", "squadron")
	}
	return filepath.Join(home, ".local", "share", "squadron")
}

// findProjectConfig searches for .squadron.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".squadron.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandHome expands a leading ~ in a path.
func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
