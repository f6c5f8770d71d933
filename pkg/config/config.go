package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/pdalplugins/pkg/observability"
)

// Loader names accepted by PDAL_PLUGINS_LOADER.
const (
	LoaderNative = "native"
	LoaderGo     = "go"
)

// Config holds all plugin host configuration
type Config struct {
	// Plugin discovery and loading
	Plugins PluginsConfig `yaml:"plugins"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// PluginsConfig holds plugin discovery settings
type PluginsConfig struct {
	// DriverPath is the raw PDAL_DRIVER_PATH value; empty selects the defaults.
	DriverPath string `yaml:"driver_path"`
	Loader     string `yaml:"loader"`
	Index      bool   `yaml:"index"`
	IndexSize  int    `yaml:"index_size"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Metrics; empty disables the introspection listener
	MetricsAddr string `yaml:"metrics_addr"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"` // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Plugins:       loadPluginsConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile loads configuration from environment variables and overlays the
// YAML file at path. Keys absent from the file keep their environment values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{
		Plugins:       loadPluginsConfig(),
		Observability: loadObservabilityConfig(),
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadPluginsConfig loads plugin configuration from environment
func loadPluginsConfig() PluginsConfig {
	return PluginsConfig{
		DriverPath: os.Getenv("PDAL_DRIVER_PATH"),
		Loader:     getEnv("PDAL_PLUGINS_LOADER", LoaderNative),
		Index:      getEnvBool("PDAL_PLUGINS_INDEX", false),
		IndexSize:  getEnvInt("PDAL_PLUGINS_INDEX_SIZE", 64),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           getEnv("PDAL_PLUGINS_LOG_LEVEL", "info"),
		LogFormat:          getEnv("PDAL_PLUGINS_LOG_FORMAT", observability.FormatText),
		MetricsAddr:        getEnv("PDAL_PLUGINS_METRICS_ADDR", ""),
		OTelEnabled:        getEnvBool("PDAL_PLUGINS_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("PDAL_PLUGINS_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("PDAL_PLUGINS_OTEL_SERVICE_NAME", "pdal-plugins"),
		OTelServiceVersion: getEnv("PDAL_PLUGINS_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("PDAL_PLUGINS_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Plugins.Loader {
	case LoaderNative, LoaderGo:
	default:
		return fmt.Errorf("invalid plugin loader: %s (must be native or go)", c.Plugins.Loader)
	}
	if c.Plugins.Index && c.Plugins.IndexSize <= 0 {
		return fmt.Errorf("index size must be positive when the guess index is enabled")
	}

	switch c.Observability.LogFormat {
	case observability.FormatText, observability.FormatJSON:
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Observability.LogFormat)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// SearchPaths splits DriverPath on ':' dropping empty entries. It returns nil
// when no directory is configured.
func (p PluginsConfig) SearchPaths() []string {
	var paths []string
	for _, dir := range strings.Split(p.DriverPath, ":") {
		if dir != "" {
			paths = append(paths, dir)
		}
	}
	return paths
}

// OTel returns the tracing settings.
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
