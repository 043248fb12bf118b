package config

const (
	defaultTemperature = 0.3
	defaultSampleRatio = 1.0
)

// DefaultExamples are the example query shortcuts offered when none are configured.
var DefaultExamples = []string{
	"What is quantum mechanics?",
	"Who was Leonardo da Vinci?",
	"Explain photosynthesis",
	"History of ancient Rome",
}

// ApplyDefaults sets default values for any zero values in cfg.
// Backend.Timeout and Output.SnippetWidth default to 0, which means no limit.
func ApplyDefaults(cfg *Config) {
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://localhost:8000"
	}
	if cfg.Search.NumResults == 0 {
		cfg.Search.NumResults = 5
	}
	if cfg.Search.Temperature == nil {
		t := defaultTemperature
		cfg.Search.Temperature = &t
	}
	if cfg.Search.Examples == nil {
		cfg.Search.Examples = append([]string(nil), DefaultExamples...)
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Output.Format == "" {
		cfg.Output.Format = "text"
	}
	if cfg.Output.Color == nil {
		c := true
		cfg.Output.Color = &c
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "parasearch"
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "http://localhost:4318"
	}
	if cfg.Telemetry.SampleRatio == nil {
		r := defaultSampleRatio
		cfg.Telemetry.SampleRatio = &r
	}
}
