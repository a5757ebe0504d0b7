package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig // EmbeddedConfig contains the raw bytes of the configuration file.
	EnvFilePath    string         `name:"envFilePath" optional:"true"` // EnvFilePath is the path to the .env file, if any.
	Expander       EnvironmentExpander `optional:"true"`
}

// loadConfig loads configuration in this order: .env file, ${VAR} expansion of the
// embedded YAML, YAML over defaults, then environment variable overrides.
func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(); err != nil {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
	}

	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}
	expanded, err := expander.Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to expand environment variables in config", err, false, false)
	}

	cfg := NewConfig()

	var yamlConfig Config
	if err := yaml.Unmarshal(expanded, &yamlConfig); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err, false, false)
	}
	mergeConfig(cfg, &yamlConfig)

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, false, false)
	}
	cfg.EmbeddedConfig = embeddedConfig
	return cfg, nil
}

// NewConfigProvider is an Fx provider that loads, validates and provides *Config.
// It also applies the configured log level and format to the global logger.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig, params.Expander)
	if err != nil {
		return nil, err
	}

	logger.SetFormat(cfg.ChunkBatch.System.Logging.Format)
	logger.SetLogLevel(cfg.ChunkBatch.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.ChunkBatch.System.Logging.Level)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig loads configuration from an embedded YAML document, a .env file and
// environment variables, then validates it.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	cfg, err := loadConfig(envFilePath, embeddedConfig, nil)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks engine settings and that configured exception names are registered.
func Validate(cfg *Config) error {
	b := cfg.ChunkBatch.Batch
	if b.ChunkSize == 0 || b.ChunkSize < -1 {
		return exception.NewBatchErrorf(moduleName, "chunk_size must be positive or -1 (unbounded), got %d", b.ChunkSize)
	}
	if b.ItemSkip.SkipLimit < -1 {
		return exception.NewBatchErrorf(moduleName, "item_skip.skip_limit must be non-negative or -1 (unbounded), got %d", b.ItemSkip.SkipLimit)
	}
	switch b.FaultPolicy {
	case FaultPolicyAllOrNothing, FaultPolicySkipLimited:
	default:
		return exception.NewBatchErrorf(moduleName, "unknown fault_policy '%s'", b.FaultPolicy)
	}
	if b.ItemRetry.MaxAttempts < 0 {
		return exception.NewBatchErrorf(moduleName, "item_retry.max_attempts must not be negative, got %d", b.ItemRetry.MaxAttempts)
	}
	if err := checkExceptionClasses(b.ItemRetry.RetryableExceptions, "ItemRetry"); err != nil {
		return exception.NewBatchError(moduleName, "failed to validate configured exception classes", err, false, false)
	}
	if err := checkExceptionClasses(b.ItemSkip.SkippableExceptions, "ItemSkip"); err != nil {
		return exception.NewBatchError(moduleName, "failed to validate configured exception classes", err, false, false)
	}
	return nil
}

// mergeConfig performs a deep merge from source into dest.
// Values in source overwrite dest when they are not zero values for their type.
func mergeConfig(dest, source *Config) {
	d, s := &dest.ChunkBatch, &source.ChunkBatch

	if s.Batch.JobName != "" {
		d.Batch.JobName = s.Batch.JobName
	}
	if s.Batch.ChunkSize != 0 {
		d.Batch.ChunkSize = s.Batch.ChunkSize
	}
	if s.Batch.FaultPolicy != "" {
		d.Batch.FaultPolicy = s.Batch.FaultPolicy
	}
	if s.Batch.MetricsAsyncBufferSize != 0 {
		d.Batch.MetricsAsyncBufferSize = s.Batch.MetricsAsyncBufferSize
	}
	mergeItemRetryConfig(&d.Batch.ItemRetry, &s.Batch.ItemRetry)
	mergeItemSkipConfig(&d.Batch.ItemSkip, &s.Batch.ItemSkip)

	if s.System.Timezone != "" {
		d.System.Timezone = s.System.Timezone
	}
	if s.System.Logging.Level != "" {
		d.System.Logging.Level = s.System.Logging.Level
	}
	if s.System.Logging.Format != "" {
		d.System.Logging.Format = s.System.Logging.Format
	}

	mergeInfrastructureConfig(&d.Infrastructure, &s.Infrastructure)
	mergeMetricsConfig(&d.Metrics, &s.Metrics)

	for key, value := range s.AdapterConfigs {
		if d.AdapterConfigs == nil {
			d.AdapterConfigs = make(map[string]interface{})
		}
		d.AdapterConfigs[key] = value
	}
}

func mergeItemRetryConfig(dest, source *ItemRetryConfig) {
	if source.MaxAttempts != 0 {
		dest.MaxAttempts = source.MaxAttempts
	}
	if source.InitialInterval != 0 {
		dest.InitialInterval = source.InitialInterval
	}
	if source.RetryableExceptions != nil {
		dest.RetryableExceptions = source.RetryableExceptions
	}
}

func mergeItemSkipConfig(dest, source *ItemSkipConfig) {
	if source.SkipLimit != 0 {
		dest.SkipLimit = source.SkipLimit
	}
	if source.SkippableExceptions != nil {
		dest.SkippableExceptions = source.SkippableExceptions
	}
}

func mergeInfrastructureConfig(dest, source *InfrastructureConfig) {
	if source.JobRepositoryType != "" {
		dest.JobRepositoryType = source.JobRepositoryType
	}
	if source.JobRepositoryDBRef != "" {
		dest.JobRepositoryDBRef = source.JobRepositoryDBRef
	}
	if source.AuditSinkType != "" {
		dest.AuditSinkType = source.AuditSinkType
	}
	if source.AuditDBRef != "" {
		dest.AuditDBRef = source.AuditDBRef
	}
}

// mergeMetricsConfig merges source into dest. Booleans only switch features on.
func mergeMetricsConfig(dest, source *MetricsConfig) {
	if source.Prometheus.Enabled {
		dest.Prometheus.Enabled = true
	}
	if source.Prometheus.PushgatewayURL != "" {
		dest.Prometheus.PushgatewayURL = source.Prometheus.PushgatewayURL
	}
	if source.Prometheus.PushJobName != "" {
		dest.Prometheus.PushJobName = source.Prometheus.PushJobName
	}
	if source.OTel.Enabled {
		dest.OTel.Enabled = true
	}
	if source.OTel.Protocol != "" {
		dest.OTel.Protocol = source.OTel.Protocol
	}
	if source.OTel.Endpoint != "" {
		dest.OTel.Endpoint = source.OTel.Endpoint
	}
	if source.OTel.Insecure {
		dest.OTel.Insecure = true
	}
	if source.OTel.ServiceName != "" {
		dest.OTel.ServiceName = source.OTel.ServiceName
	}
}

// checkExceptionClasses validates that all exception class names in the provided list
// are registered in the exception registry.
func checkExceptionClasses(classNames []string, configType string) error {
	for _, name := range classNames {
		if !exception.IsErrorTypeRegistered(name) {
			return fmt.Errorf("%s configuration references unknown exception class: '%s'. Ensure it is registered", configType, name)
		}
	}
	return nil
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// The variable name is built from the "yaml" tags, e.g. CHUNKBATCH_BATCH_CHUNK_SIZE.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField sets the value of a reflect.Value field based on its kind.
// Slices of strings are read as comma-separated lists.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		var items []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		field.Set(reflect.ValueOf(items))
	}
	return nil
}
