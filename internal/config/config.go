// Package config loads the agentotel configuration.
//
// Sources, lowest to highest precedence: built-in defaults, the config file
// (TOML, or YAML by extension, with ${VAR:-default} expansion), then
// environment variables. A .env file in the working directory may seed the
// environment; it never overrides variables already set.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/agentotel/internal/logging"
	"github.com/steveyegge/agentotel/internal/profile"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Exporter names.
const (
	ExporterOTLP    = "otlp"
	ExporterConsole = "console"
	ExporterNone    = "none"
)

// Temporality names.
const (
	TemporalityCumulative = "cumulative"
	TemporalityDelta      = "delta"
)

// DefaultListen is the default ingest address.
const DefaultListen = "127.0.0.1:4319"

// Config is the resolved configuration. Treat it as immutable after Load.
type Config struct {
	Enabled          bool   `toml:"enabled" yaml:"enabled"`
	Profile          string `toml:"profile" yaml:"profile"`
	IncludeSessionID bool   `toml:"include_session_id" yaml:"include_session_id"`
	IncludeVersion   bool   `toml:"include_version" yaml:"include_version"`
	LogUserPrompts   bool   `toml:"log_user_prompts" yaml:"log_user_prompts"`
	LogToolDetails   bool   `toml:"log_tool_details" yaml:"log_tool_details"`
	AppVersion       string `toml:"app_version" yaml:"app_version"`

	Exporter        string            `toml:"exporter" yaml:"exporter"`
	Endpoint        string            `toml:"endpoint" yaml:"endpoint"`
	MetricsEndpoint string            `toml:"metrics_endpoint" yaml:"metrics_endpoint"`
	LogsEndpoint    string            `toml:"logs_endpoint" yaml:"logs_endpoint"`
	Headers         map[string]string `toml:"headers" yaml:"headers"`
	MetricInterval  time.Duration     `toml:"metric_interval" yaml:"metric_interval"`
	LogInterval     time.Duration     `toml:"log_interval" yaml:"log_interval"`
	Temporality     string            `toml:"temporality" yaml:"temporality"`

	Log      logging.Config `toml:"log" yaml:"log"`
	Listen   string         `toml:"listen" yaml:"listen"`
	StateDir string         `toml:"state_dir" yaml:"state_dir"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Enabled:          true,
		Profile:          profile.Native.String(),
		IncludeSessionID: true,
		Exporter:         ExporterOTLP,
		MetricInterval:   60 * time.Second,
		LogInterval:      5 * time.Second,
		Temporality:      TemporalityCumulative,
		Log:              logging.Config{Level: "info", Format: "console", Output: "stderr"},
		Listen:           DefaultListen,
	}
}

// DefaultPath is $XDG_CONFIG_HOME/agentotel/config.toml.
func DefaultPath() string { return defaultPath(os.Getenv) }

func defaultPath(getenv func(string) string) string {
	dir := getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "agentotel", "config.toml")
}

// LoadDotEnv loads .env from the working directory if present.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// Load resolves configuration from path and the environment. An empty path
// means DefaultPath, which may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = defaultPath(getenv)
	}
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: user-supplied config path
		switch {
		case err == nil:
			if err := decode(&cfg, data, formatOf(path), getenv); err != nil {
				return nil, fmt.Errorf("parsing config file %q: %w", path, err)
			}
		case explicit || !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if cfg.StateDir == "" {
		cfg.StateDir = defaultStateDir(getenv)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromBytes decodes data over the defaults and validates. Environment
// overrides are not applied.
func LoadFromBytes(data []byte, format string) (*Config, error) {
	cfg := Default()
	if err := decode(&cfg, data, format, os.Getenv); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "toml"
	}
}

func decode(cfg *Config, data []byte, format string, getenv func(string) string) error {
	expanded := expandEnvWithDefaults(string(data), getenv)
	if format == "yaml" {
		return yaml.Unmarshal([]byte(expanded), cfg)
	}
	_, err := toml.Decode(expanded, cfg)
	return err
}

var envRef = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvWithDefaults replaces ${VAR} and ${VAR:-default}. Unset or empty
// variables take the default, or the empty string.
func expandEnvWithDefaults(s string, getenv func(string) string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		parts := envRef.FindStringSubmatch(match)
		if v := getenv(parts[1]); v != "" {
			return v
		}
		return parts[2]
	})
}

func defaultStateDir(getenv func(string) string) string {
	if dir := getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "agentotel")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "agentotel")
	}
	return filepath.Join(home, ".local", "state", "agentotel")
}

// applyEnv layers environment overrides. Compatibility aliases are applied
// first so the AGENTOTEL_* names win when both are set.
func (c *Config) applyEnv(getenv func(string) string) error {
	bools := []struct {
		key string
		dst *bool
	}{
		{"CLAUDE_CODE_ENABLE_TELEMETRY", &c.Enabled},
		{"OTEL_LOG_USER_PROMPTS", &c.LogUserPrompts},
		{"OTEL_LOG_TOOL_DETAILS", &c.LogToolDetails},
		{"OTEL_METRICS_INCLUDE_SESSION_ID", &c.IncludeSessionID},
		{"OTEL_METRICS_INCLUDE_VERSION", &c.IncludeVersion},
		{"AGENTOTEL_ENABLED", &c.Enabled},
		{"AGENTOTEL_INCLUDE_SESSION_ID", &c.IncludeSessionID},
		{"AGENTOTEL_INCLUDE_VERSION", &c.IncludeVersion},
		{"AGENTOTEL_LOG_USER_PROMPTS", &c.LogUserPrompts},
		{"AGENTOTEL_LOG_TOOL_DETAILS", &c.LogToolDetails},
	}
	for _, b := range bools {
		v := strings.TrimSpace(getenv(b.key))
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, b.key, v)
		}
		*b.dst = parsed
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"AGENTOTEL_PROFILE", &c.Profile},
		{"AGENTOTEL_APP_VERSION", &c.AppVersion},
		{"AGENTOTEL_EXPORTER", &c.Exporter},
		{"OTEL_EXPORTER_OTLP_ENDPOINT", &c.Endpoint},
		{"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", &c.MetricsEndpoint},
		{"OTEL_EXPORTER_OTLP_LOGS_ENDPOINT", &c.LogsEndpoint},
		{"OTEL_EXPORTER_OTLP_METRICS_TEMPORALITY_PREFERENCE", &c.Temporality},
		{"AGENTOTEL_LOG_LEVEL", &c.Log.Level},
		{"AGENTOTEL_LISTEN", &c.Listen},
		{"AGENTOTEL_STATE_DIR", &c.StateDir},
	}
	for _, s := range strs {
		if v := strings.TrimSpace(getenv(s.key)); v != "" {
			*s.dst = v
		}
	}

	if v := getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		c.Headers = parseHeaders(v)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"OTEL_METRIC_EXPORT_INTERVAL", &c.MetricInterval},
		{"OTEL_LOGS_EXPORT_INTERVAL", &c.LogInterval},
	}
	for _, d := range durations {
		v := strings.TrimSpace(getenv(d.key))
		if v == "" {
			continue
		}
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not milliseconds", ErrInvalid, d.key, v)
		}
		*d.dst = time.Duration(ms) * time.Millisecond
	}
	return nil
}

// parseHeaders reads the OTLP "k=v,k2=v2" header list.
func parseHeaders(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if _, err := profile.Parse(c.Profile); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch c.Exporter {
	case ExporterOTLP, ExporterConsole, ExporterNone:
	default:
		return fmt.Errorf("%w: unknown exporter %q", ErrInvalid, c.Exporter)
	}
	switch strings.ToLower(c.Temporality) {
	case "", TemporalityCumulative, TemporalityDelta:
	default:
		return fmt.Errorf("%w: unknown temporality %q", ErrInvalid, c.Temporality)
	}
	if c.MetricInterval <= 0 {
		return fmt.Errorf("%w: metric_interval must be positive", ErrInvalid)
	}
	if c.LogInterval <= 0 {
		return fmt.Errorf("%w: log_interval must be positive", ErrInvalid)
	}
	return nil
}

// ProfileName returns the parsed profile. Call after Validate.
func (c *Config) ProfileName() profile.Name {
	n, _ := profile.Parse(c.Profile)
	return n
}

// Delta reports whether delta temporality was requested.
func (c *Config) Delta() bool {
	return strings.EqualFold(c.Temporality, TemporalityDelta)
}

// Redacted returns a copy safe to print: header values are masked.
func (c Config) Redacted() Config {
	if len(c.Headers) > 0 {
		masked := make(map[string]string, len(c.Headers))
		for k := range c.Headers {
			masked[k] = "<redacted>"
		}
		c.Headers = masked
	}
	return c
}
