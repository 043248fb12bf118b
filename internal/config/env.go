package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	env "github.com/netflix/go-env"
)

// envOverlay mirrors the settings that may be overridden from the environment.
type envOverlay struct {
	Debug              bool          `env:"PARASEARCH_DEBUG"`
	BackendURL         string        `env:"PARASEARCH_BACKEND_URL"`
	BackendTimeout     time.Duration `env:"PARASEARCH_BACKEND_TIMEOUT"`
	RateLimitPerMinute int           `env:"PARASEARCH_RATE_LIMIT"`
	NumResults         int           `env:"PARASEARCH_DEFAULT_RESULTS"`
	Temperature        float64       `env:"PARASEARCH_DEFAULT_TEMP"`
	Host               string        `env:"PARASEARCH_HOST"`
	Port               int           `env:"PARASEARCH_PORT"`
	CORSOrigins        string        `env:"PARASEARCH_CORS_ORIGINS"`
	OutputFormat       string        `env:"PARASEARCH_OUTPUT"`
	OTelEnabled        bool          `env:"PARASEARCH_OTEL_ENABLED"`
	OTelServiceName    string        `env:"PARASEARCH_OTEL_SERVICE_NAME"`
	OTelEndpoint       string        `env:"PARASEARCH_OTEL_ENDPOINT"`
	OTelSampleRatio    float64       `env:"PARASEARCH_OTEL_SAMPLE_RATIO"`
}

// ApplyEnv overrides cfg with every PARASEARCH_* variable present in the environment.
// Variables that are absent leave the file value in place.
func ApplyEnv(cfg *Config) error {
	var o envOverlay
	es, err := env.UnmarshalFromEnviron(&o)
	if err != nil {
		return fmt.Errorf("failed to parse environment variables: %w", err)
	}
	set := func(name string) bool {
		_, ok := es[name]
		return ok
	}

	if set("PARASEARCH_DEBUG") {
		cfg.Debug = o.Debug
	}
	if set("PARASEARCH_BACKEND_URL") {
		cfg.Backend.BaseURL = o.BackendURL
	}
	if set("PARASEARCH_BACKEND_TIMEOUT") {
		cfg.Backend.Timeout = o.BackendTimeout
	}
	if set("PARASEARCH_RATE_LIMIT") {
		cfg.Backend.RateLimitPerMinute = o.RateLimitPerMinute
	}
	if set("PARASEARCH_DEFAULT_RESULTS") {
		cfg.Search.NumResults = o.NumResults
	}
	if set("PARASEARCH_DEFAULT_TEMP") {
		t := o.Temperature
		cfg.Search.Temperature = &t
	}
	if set("PARASEARCH_HOST") {
		cfg.Server.Host = o.Host
	}
	if set("PARASEARCH_PORT") {
		cfg.Server.Port = o.Port
	}
	if set("PARASEARCH_CORS_ORIGINS") {
		cfg.Server.CORSOrigins = splitList(o.CORSOrigins)
	}
	if set("PARASEARCH_OUTPUT") {
		cfg.Output.Format = o.OutputFormat
	}
	if set("PARASEARCH_OTEL_ENABLED") {
		cfg.Telemetry.Enabled = o.OTelEnabled
	}
	if set("PARASEARCH_OTEL_SERVICE_NAME") {
		cfg.Telemetry.ServiceName = o.OTelServiceName
	}
	if set("PARASEARCH_OTEL_ENDPOINT") {
		cfg.Telemetry.Endpoint = o.OTelEndpoint
	}
	if set("PARASEARCH_OTEL_SAMPLE_RATIO") {
		r := o.OTelSampleRatio
		cfg.Telemetry.SampleRatio = &r
	}
	return nil
}

// LoadDotEnv loads variables from the .env file at path into the process environment.
// Variables already set are kept. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
