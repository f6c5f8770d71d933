// Package config loads plugin host configuration from environment variables,
// optionally overlaid with a YAML file.
//
// Plugin settings:
//
//	PDAL_DRIVER_PATH="/opt/pdal/plugins:/usr/lib/pdal"
//	PDAL_PLUGINS_LOADER="native"      # native or go
//	PDAL_PLUGINS_INDEX="false"
//	PDAL_PLUGINS_INDEX_SIZE="64"
//
// Observability settings:
//
//	PDAL_PLUGINS_LOG_LEVEL="info"
//	PDAL_PLUGINS_LOG_FORMAT="text"    # text or json
//	PDAL_PLUGINS_METRICS_ADDR=":9090"
//	PDAL_PLUGINS_OTEL_ENABLED="false"
//	PDAL_PLUGINS_OTEL_ENDPOINT="localhost:4317"
//	PDAL_PLUGINS_OTEL_INSECURE="true"
//
// A YAML file uses the same settings grouped under plugins and observability:
//
//	plugins:
//	  loader: go
//	  index: true
//	observability:
//	  log_level: debug
package config
