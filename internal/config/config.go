// Package config provides configuration management for calmirror.
// It supports YAML (or TOML) configuration files, environment variables,
// and sensible defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/klauern/calmirror/internal/util"
)

// Auth types an account may declare.
const (
	AuthOAuth2 = "oauth2"
	AuthICS    = "ics"
)

// DefaultIdentifier namespaces provenance keys when none is configured.
const DefaultIdentifier = "calmirror"

// ErrNotFound is returned by Load when the config file does not exist.
var ErrNotFound = errors.New("config file not found")

// Config represents the complete calmirror configuration.
type Config struct {
	// Accounts lists the calendar accounts and the calendars they expose
	Accounts []Account `yaml:"accounts" toml:"accounts"`

	// SyncRules maps one source calendar onto one or more destinations
	SyncRules []SyncRule `yaml:"sync_rules" toml:"sync_rules"`

	// DefaultIdentifier prefixes every provenance flag written by this instance
	DefaultIdentifier string `yaml:"default_identifier" toml:"default_identifier"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `yaml:"log_level" toml:"log_level"`

	// LogFile, when set, receives log output in addition to stderr
	LogFile string `yaml:"log_file,omitempty" toml:"log_file,omitempty"`

	// Sync configures the fetch window
	Sync SyncConfig `yaml:"sync" toml:"sync"`

	// Schedule is the cron expression used by `serve`
	Schedule string `yaml:"schedule,omitempty" toml:"schedule,omitempty"`

	// Metrics configures the Prometheus endpoint used by `serve`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`

	// Output configures display preferences
	Output OutputConfig `yaml:"output" toml:"output"`
}

// Account is one authenticated calendar account.
type Account struct {
	Name            string     `yaml:"name" toml:"name"`
	Email           string     `yaml:"email,omitempty" toml:"email,omitempty"`
	AuthType        string     `yaml:"auth_type,omitempty" toml:"auth_type,omitempty"`
	CredentialsFile string     `yaml:"credentials_file,omitempty" toml:"credentials_file,omitempty"`
	Calendars       []Calendar `yaml:"calendars" toml:"calendars"`
}

// IsICS reports whether the account reads ICS subscriptions.
func (a Account) IsICS() bool {
	return strings.EqualFold(a.AuthType, AuthICS)
}

// Calendar is a calendar within an account, addressed as "account.label".
type Calendar struct {
	Label       string `yaml:"label" toml:"label"`
	CalendarID  string `yaml:"calendar_id" toml:"calendar_id"`
	Name        string `yaml:"name" toml:"name"`
	Description string `yaml:"description,omitempty" toml:"description,omitempty"`
}

// DisplayName returns Name, falling back to Label.
func (c Calendar) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Label
}

// SyncRule mirrors one source calendar into its destinations.
type SyncRule struct {
	ID             string       `yaml:"id" toml:"id"`
	SourceCalendar string       `yaml:"source_calendar" toml:"source_calendar"`
	Destination    []SyncTarget `yaml:"destination" toml:"destination"`
}

// EnabledTargets returns the destinations that are not disabled, in order.
func (r SyncRule) EnabledTargets() []SyncTarget {
	var out []SyncTarget
	for _, t := range r.Destination {
		if t.IsEnabled() {
			out = append(out, t)
		}
	}
	return out
}

// SyncTarget is one destination of a rule and its privacy settings.
type SyncTarget struct {
	Calendar     string `yaml:"calendar" toml:"calendar"`
	PrivacyMode  string `yaml:"privacy_mode,omitempty" toml:"privacy_mode,omitempty"`
	PrivacyLabel string `yaml:"privacy_label,omitempty" toml:"privacy_label,omitempty"`
	ShowTime     bool   `yaml:"show_time,omitempty" toml:"show_time,omitempty"`
	TitlePrefix  string `yaml:"title_prefix,omitempty" toml:"title_prefix,omitempty"`
	TitleSuffix  string `yaml:"title_suffix,omitempty" toml:"title_suffix,omitempty"`
	EventColor   string `yaml:"event_color,omitempty" toml:"event_color,omitempty"`
	Enabled      *bool  `yaml:"enabled,omitempty" toml:"enabled,omitempty"`
}

// IsEnabled defaults to true when enabled is unset.
func (t SyncTarget) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// SyncConfig holds fetch window settings.
type SyncConfig struct {
	// WindowPastDays is how far back source events are fetched
	WindowPastDays int `yaml:"window_past_days" toml:"window_past_days"`
	// WindowFutureDays is how far ahead source events are fetched
	WindowFutureDays int `yaml:"window_future_days" toml:"window_future_days"`
}

// MetricsConfig holds the metrics listener address.
type MetricsConfig struct {
	Listen string `yaml:"listen" toml:"listen"`
}

// OutputConfig holds display preferences.
type OutputConfig struct {
	// Format is the default output format (table, json, yaml)
	Format string `yaml:"format" toml:"format"`
	// Color controls color output (auto, always, never)
	Color string `yaml:"color" toml:"color"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DefaultIdentifier: DefaultIdentifier,
		LogLevel:          "info",
		Sync: SyncConfig{
			WindowPastDays:   30,
			WindowFutureDays: 30,
		},
		Schedule: "*/15 * * * *",
		Metrics: MetricsConfig{
			Listen: ":9464",
		},
		Output: OutputConfig{
			Format: "table",
			Color:  "auto",
		},
	}
}

// configFileName is the name of the config file.
const configFileName = "config.yaml"

// FilePath returns the default path to the config file.
func FilePath() string {
	return filepath.Join(util.ConfigDir(), configFileName)
}

// ResolvePath picks the config path: an explicit flag wins, then
// CALMIRROR_CONFIG, then the default location.
func ResolvePath(flag string) string {
	if flag != "" {
		return util.ExpandPath(flag)
	}
	if v := os.Getenv("CALMIRROR_CONFIG"); v != "" {
		return util.ExpandPath(v)
	}
	return FilePath()
}

// Load loads the configuration from path, merging it over defaults and
// applying environment overrides.
func Load(path string) (*Config, error) {
	// #nosec G304 - path is provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data, isTOML(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes config bytes over defaults and applies environment overrides.
func Parse(data []byte, asTOML bool) (*Config, error) {
	cfg := Default()
	if asTOML {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnvironment()
	return cfg, nil
}

// SaveToPath writes the configuration atomically with owner-only permissions.
func (c *Config) SaveToPath(path string) error {
	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		data = buf.Bytes()
	} else {
		out, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		data = out
	}
	return util.WriteFileAtomic(path, data, 0o600)
}

// Exists returns true if a config file exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// applyEnvironment applies environment variable overrides.
// Environment variables follow the pattern CALMIRROR_<KEY>.
func (c *Config) applyEnvironment() {
	if v := os.Getenv("CALMIRROR_IDENTIFIER"); v != "" {
		c.DefaultIdentifier = v
	}
	if v := os.Getenv("CALMIRROR_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CALMIRROR_SCHEDULE"); v != "" {
		c.Schedule = v
	}
	if v := os.Getenv("CALMIRROR_METRICS_LISTEN"); v != "" {
		c.Metrics.Listen = v
	}
	if v := os.Getenv("CALMIRROR_WINDOW_PAST_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Sync.WindowPastDays = n
		}
	}
	if v := os.Getenv("CALMIRROR_WINDOW_FUTURE_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Sync.WindowFutureDays = n
		}
	}
	if v := os.Getenv("CALMIRROR_OUTPUT_FORMAT"); v != "" {
		c.Output.Format = v
	}
	if v := os.Getenv("CALMIRROR_OUTPUT_COLOR"); v != "" {
		c.Output.Color = v
	}
}
