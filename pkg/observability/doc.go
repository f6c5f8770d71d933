// Package observability provides logrus logging, Prometheus and OpenTelemetry
// metrics, tracing and graceful shutdown for the plugin host.
//
// # Structured Logging
//
//	logger := observability.NewLogger("debug", observability.FormatJSON, os.Stderr)
//	logger.WithField("path", path).Warn("Failed to load plugin")
//
// # Prometheus Metrics
//
//	metrics := observability.NewPluginMetrics(prometheus.DefaultRegisterer)
//	m := plugins.NewManager(plugins.WithMetrics(metrics))
//
// Every event can also be mirrored to OpenTelemetry instruments:
//
//	otelMetrics, err := observability.NewOTelMetrics(nil)
//	metrics.WithOTel(otelMetrics)
//
// # OpenTelemetry
//
//	tp, err := observability.InitTracing(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "pdal-plugins",
//	}, logger)
//	defer observability.ShutdownTracing(ctx, tp, logger)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/plugins: Instrumented plugin manager
package observability
