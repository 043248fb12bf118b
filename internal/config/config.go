// Package config provides configuration loading and structs for parasearch.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the config file is looked up when none is given.
const DefaultPath = "/usr/local/etc/parasearch/config.yaml"

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Backend   BackendConfig   `yaml:"backend"`
	Search    SearchConfig    `yaml:"search"`
	Server    ServerConfig    `yaml:"server"`
	Output    OutputConfig    `yaml:"output"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// BackendConfig holds the knowledge-search backend connection settings.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
	// Timeout bounds a single backend call; 0 means no client-side limit.
	Timeout            time.Duration `yaml:"timeout"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
}

// SearchConfig holds the parameters sent with every search.
type SearchConfig struct {
	NumResults  int      `yaml:"num_results"`
	Temperature *float64 `yaml:"temperature"`
	Examples    []string `yaml:"examples"`
}

// TemperatureOrDefault returns the configured temperature; defaults to 0.3 when unset.
func (s *SearchConfig) TemperatureOrDefault() float64 {
	if s.Temperature != nil {
		return *s.Temperature
	}
	return defaultTemperature
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// OutputConfig holds terminal rendering settings.
type OutputConfig struct {
	Format       string `yaml:"format"`
	Color        *bool  `yaml:"color"`
	// SnippetWidth truncates snippets to this many runes; 0 shows them in full.
	SnippetWidth int `yaml:"snippet_width"`
}

// ColorOrDefault returns whether to color output; defaults to true when unset.
func (o *OutputConfig) ColorOrDefault() bool {
	if o.Color != nil {
		return *o.Color
	}
	return true
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool     `yaml:"enabled"`
	ServiceName string   `yaml:"service_name"`
	Endpoint    string   `yaml:"endpoint"`
	SampleRatio *float64 `yaml:"sample_ratio"`
}

// SampleRatioOrDefault returns the trace sampling ratio; defaults to 1 when unset.
func (t *TelemetryConfig) SampleRatioOrDefault() float64 {
	if t.SampleRatio != nil {
		return *t.SampleRatio
	}
	return defaultSampleRatio
}

// Load reads and parses the config file at path, overlays PARASEARCH_* environment
// variables, applies defaults, and validates the result.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return finish(&cfg)
}

// LoadOrDefault is Load, except that a missing file yields the default configuration.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return finish(&Config{})
	}
	return cfg, err
}

func finish(cfg *Config) (*Config, error) {
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks the values the backend contract constrains.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.base_url %q must be an absolute http(s) URL", c.Backend.BaseURL)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must not be negative")
	}
	if c.Backend.RateLimitPerMinute < 0 {
		return fmt.Errorf("backend.rate_limit_per_minute must not be negative")
	}
	if c.Search.NumResults < 1 {
		return fmt.Errorf("search.num_results must be at least 1, got %d", c.Search.NumResults)
	}
	if t := c.Search.TemperatureOrDefault(); t < 0 || t > 1 {
		return fmt.Errorf("search.temperature must be within [0, 1], got %g", t)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Output.Format {
	case "text", "compact", "json", "xlsx":
	default:
		return fmt.Errorf("output.format %q must be text, compact, json, or xlsx", c.Output.Format)
	}
	if r := c.Telemetry.SampleRatioOrDefault(); r < 0 || r > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	return nil
}
