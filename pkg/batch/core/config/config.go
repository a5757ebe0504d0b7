// Package config provides structures and utilities for managing application configuration.
package config

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
// This is used when loading configuration from an embedded source (e.g., a compiled binary).
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelTrace  LogLevel = "TRACE"
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelFatal  LogLevel = "FATAL"
	LogLevelSilent LogLevel = "SILENT"
)

// Fault policy names accepted by BatchConfig.FaultPolicy.
const (
	FaultPolicyAllOrNothing = "all_or_nothing"
	FaultPolicySkipLimited  = "skip_limited"
)

// ItemRetryConfig holds item-level retry configuration for transformers.
type ItemRetryConfig struct {
	MaxAttempts         int      `yaml:"max_attempts"`         // MaxAttempts is the number of retries after the first failed attempt. 0 disables retries.
	InitialInterval     int      `yaml:"initial_interval"`     // InitialInterval is the backoff interval in milliseconds.
	RetryableExceptions []string `yaml:"retryable_exceptions"` // RetryableExceptions is a list of retryable exception names.
}

// ItemSkipConfig holds item-level skip configuration.
type ItemSkipConfig struct {
	SkipLimit           int      `yaml:"skip_limit"`           // SkipLimit is the maximum number of items to skip. -1 means unbounded.
	SkippableExceptions []string `yaml:"skippable_exceptions"` // SkippableExceptions is a list of skippable exception names. Empty means every transform error.
}

// BatchConfig holds configuration specific to the chunk engine.
type BatchConfig struct {
	// JobName is the default job name if not specified elsewhere.
	JobName string `yaml:"job_name"`
	// ChunkSize is the default chunk size. -1 puts every item in one chunk.
	ChunkSize int `yaml:"chunk_size"`
	// FaultPolicy is "all_or_nothing" or "skip_limited".
	FaultPolicy string `yaml:"fault_policy"`
	// ItemRetry is the item-level retry configuration.
	ItemRetry ItemRetryConfig `yaml:"item_retry"`
	// ItemSkip is the item-level skip configuration.
	ItemSkip ItemSkipConfig `yaml:"item_skip"`
	// MetricsAsyncBufferSize is the buffer size for asynchronous metric recording.
	MetricsAsyncBufferSize int `yaml:"metrics_async_buffer_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG", "TRACE").
	Level string `yaml:"level"`
	// Format is "console" or "json".
	Format string `yaml:"format"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "Asia/Tokyo").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// InfrastructureConfig holds logical dependency settings for infrastructure components.
type InfrastructureConfig struct {
	// JobRepositoryType is "inmemory" or "sql".
	JobRepositoryType string `yaml:"job_repository_type"`
	// JobRepositoryDBRef is the name of the DBConnection used by the execution repository.
	JobRepositoryDBRef string `yaml:"job_repository_db_ref"`
	// AuditSinkType is "inmemory" or "gorm".
	AuditSinkType string `yaml:"audit_sink_type"`
	// AuditDBRef is the name of the DBConnection the audit sink appends to.
	AuditDBRef string `yaml:"audit_db_ref"`
}

// PrometheusConfig configures the Prometheus recorder.
type PrometheusConfig struct {
	Enabled bool `yaml:"enabled"`
	// PushgatewayURL, when set, receives the registry after every job.
	PushgatewayURL string `yaml:"pushgateway_url"`
	// PushJobName is the Pushgateway grouping job label.
	PushJobName string `yaml:"push_job_name"`
}

// OTelConfig configures the OpenTelemetry tracer and meter.
type OTelConfig struct {
	Enabled bool `yaml:"enabled"`
	// Protocol is "grpc" or "http".
	Protocol string `yaml:"protocol"`
	// Endpoint is the collector address (host:port).
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	// ServiceName is reported as the service.name resource attribute.
	ServiceName string `yaml:"service_name"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `yaml:"prometheus"`
	OTel       OTelConfig       `yaml:"otel"`
}

// ChunkBatchConfig holds all configuration under the "chunkbatch" top-level key.
type ChunkBatchConfig struct {
	// Batch contains chunk engine configuration.
	Batch BatchConfig `yaml:"batch"`
	// System contains system-wide configurations.
	System SystemConfig `yaml:"system"`
	// Infrastructure contains infrastructure-related configurations.
	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	// Metrics contains observability configurations.
	Metrics MetricsConfig `yaml:"metrics"`
	// AdapterConfigs holds raw adapter sections keyed by adapter kind ("database", "storage"),
	// each a map of connection name to settings. They are decoded lazily by the adapters.
	AdapterConfigs map[string]interface{} `yaml:"adapter"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	// ChunkBatch contains the top-level configuration.
	ChunkBatch ChunkBatchConfig `yaml:"chunkbatch"`
	// EmbeddedConfig holds configuration loaded from an embedded source, not from YAML.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// AdapterSection returns the named connection settings of one adapter kind.
//
// Parameters:
//
//	kind: The adapter kind, "database" or "storage".
//	name: The connection name, e.g. "metadata".
//
// Returns:
//
//	The raw settings and whether they were found.
func (c *Config) AdapterSection(kind, name string) (interface{}, bool) {
	if c == nil || c.ChunkBatch.AdapterConfigs == nil {
		return nil, false
	}
	section, ok := c.ChunkBatch.AdapterConfigs[kind].(map[string]interface{})
	if !ok {
		return nil, false
	}
	raw, ok := section[name]
	return raw, ok
}

// NewConfig returns a new instance of Config with default values.
//
// Returns:
//
//	A pointer to a new Config instance initialized with default settings.
func NewConfig() *Config {
	return &Config{
		ChunkBatch: ChunkBatchConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO", Format: "console"},
			},
			Batch: BatchConfig{
				ChunkSize:              10,
				FaultPolicy:            FaultPolicyAllOrNothing,
				MetricsAsyncBufferSize: 100,
				ItemRetry: ItemRetryConfig{
					MaxAttempts:     0,
					InitialInterval: 1000,
					RetryableExceptions: []string{
						"context.DeadlineExceeded",
					},
				},
				ItemSkip: ItemSkipConfig{
					SkipLimit: 0,
				},
			},
			Infrastructure: InfrastructureConfig{
				JobRepositoryType:  "inmemory",
				JobRepositoryDBRef: "metadata",
				AuditSinkType:      "inmemory",
				AuditDBRef:         "metadata",
			},
			Metrics: MetricsConfig{
				Prometheus: PrometheusConfig{PushJobName: "chunkbatch"},
				OTel:       OTelConfig{Protocol: "grpc", Endpoint: "localhost:4317", Insecure: true, ServiceName: "chunkbatch"},
			},
			AdapterConfigs: map[string]interface{}{},
		},
	}
}
