package telemetry

import "time"

type Config struct {
	// Enabled installs the OTLP exporters. When false the otel no-op
	// providers stay in place.
	Enabled bool `yaml:"enabled"`

	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`

	// MetricEndpoint is the host:port of the OTLP/HTTP metric collector,
	// empty means the exporter default or OTEL_EXPORTER_OTLP_* variables.
	MetricEndpoint string `yaml:"metric_endpoint"`
	// TraceEndpoint is the host:port of the OTLP/gRPC trace collector.
	TraceEndpoint string `yaml:"trace_endpoint"`

	Insecure bool `yaml:"insecure"`

	MetricInterval   time.Duration `yaml:"metric_interval"`
	TraceSampleRatio float64       `yaml:"trace_sample_ratio"`
}

func NewDefaultConfig() *Config {
	return &Config{
		Enabled: false,

		ServiceName:    "acmedash",
		ServiceVersion: "0.1.0",

		Insecure: true,

		MetricInterval:   time.Second,
		TraceSampleRatio: 0.05,
	}
}
