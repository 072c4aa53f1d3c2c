package telemetry

import (
	"fmt"
	"time"
)

// Config contains the telemetry configuration for hu.
type Config struct {
	// ServiceName is the name reported in traces.
	ServiceName string `yaml:"-"`

	// ServiceVersion is the build version.
	ServiceVersion string `yaml:"-"`

	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing contains tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Metrics contains metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	Level string `yaml:"level"`

	// Format is console or json.
	Format string `yaml:"format"`

	// Output is stderr, stdout or a file path.
	Output string `yaml:"output"`

	// EnableCaller adds file:line caller information.
	EnableCaller bool `yaml:"caller"`

	// TimeFormat is unix, unixms or rfc3339.
	TimeFormat string `yaml:"time_format"`
}

// TracingConfig configures tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter is otlp, stdout or none.
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP collector address.
	Endpoint string `yaml:"endpoint"`

	// SamplingRate is between 0 and 1.
	SamplingRate float64 `yaml:"sampling_rate"`

	MaxExportBatchSize int           `yaml:"max_export_batch_size"`
	ExportTimeout      time.Duration `yaml:"export_timeout"`

	// Headers are sent with every OTLP export.
	Headers map[string]string `yaml:"headers"`

	// Insecure disables TLS for the exporter connection.
	Insecure bool `yaml:"insecure"`
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// ListenAddress serves /metrics while a session runs. Empty disables
	// the server.
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path for metrics.
	Path string `yaml:"path"`

	// TextfilePath receives a node-exporter textfile when the session ends.
	TextfilePath string `yaml:"textfile_path"`

	// Namespace prefixes every metric.
	Namespace string `yaml:"namespace"`

	DefaultHistogramBuckets []float64 `yaml:"buckets"`
}

// DefaultConfig returns the configuration used when ~/.hu.yaml is silent:
// console logs on stderr, tracing and metrics off.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "hu",
		ServiceVersion: "dev",
		Logging: LoggingConfig{
			Level:      "warn",
			Format:     "console",
			Output:     "stderr",
			TimeFormat: "rfc3339",
		},
		Tracing: TracingConfig{
			Enabled:            false,
			Exporter:           "none",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      10 * time.Second,
			Headers:            make(map[string]string),
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Path:      "/metrics",
			Namespace: "hu",
			DefaultHistogramBuckets: []float64{
				0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
			},
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	validExporters := map[string]bool{"otlp": true, "stdout": true, "none": true}
	if c.Tracing.Enabled && !validExporters[c.Tracing.Exporter] {
		return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
	}
	if c.Tracing.Enabled && c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
		return fmt.Errorf("otlp exporter requires an endpoint")
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" && c.Metrics.TextfilePath == "" {
		return fmt.Errorf("metrics need a listen address or a textfile path")
	}

	return nil
}
