package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation name of the plugin meter.
const MeterName = "github.com/platinummonkey/pdalplugins/pkg/plugins"

// OTelMetrics mirrors PluginMetrics as OpenTelemetry instruments
type OTelMetrics struct {
	libraryLoads      metric.Int64Counter
	initializations   metric.Int64Counter
	registrations     metric.Int64Counter
	creates           metric.Int64Counter
	discoveryDuration metric.Float64Histogram
	shutdowns         metric.Int64Counter
}

// NewOTelMetrics creates the plugin instruments on provider. A nil provider
// selects the global one.
func NewOTelMetrics(provider metric.MeterProvider) (*OTelMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(MeterName)

	m := &OTelMetrics{}
	var err error

	m.libraryLoads, err = meter.Int64Counter(
		"pdal.plugins.library.loads",
		metric.WithDescription("Plugin library load attempts"),
		metric.WithUnit("{load}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create library loads counter: %w", err)
	}

	m.initializations, err = meter.Int64Counter(
		"pdal.plugins.initializations",
		metric.WithDescription("Plugin entry point invocations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create initializations counter: %w", err)
	}

	m.registrations, err = meter.Int64Counter(
		"pdal.plugins.registrations",
		metric.WithDescription("Stage registrations"),
		metric.WithUnit("{registration}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create registrations counter: %w", err)
	}

	m.creates, err = meter.Int64Counter(
		"pdal.plugins.creates",
		metric.WithDescription("Stage creation requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create creates counter: %w", err)
	}

	m.discoveryDuration, err = meter.Float64Histogram(
		"pdal.plugins.discovery.duration",
		metric.WithDescription("Plugin discovery scan duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery duration histogram: %w", err)
	}

	m.shutdowns, err = meter.Int64Counter(
		"pdal.plugins.shutdowns",
		metric.WithDescription("Plugin manager shutdowns"),
		metric.WithUnit("{shutdown}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create shutdowns counter: %w", err)
	}

	return m, nil
}

func (m *OTelMetrics) recordLoad(pluginType, result string) {
	if m == nil {
		return
	}
	m.libraryLoads.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("type", pluginType),
		attribute.String("result", result),
	))
}

// count adds one to the counter chosen by pick. Nil m is a no-op.
func (m *OTelMetrics) count(pick func(*OTelMetrics) metric.Int64Counter, result string) {
	if m == nil {
		return
	}
	pick(m).Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *OTelMetrics) observeDiscovery(strategy string, d time.Duration) {
	if m == nil {
		return
	}
	m.discoveryDuration.Record(context.Background(), d.Seconds(),
		metric.WithAttributes(attribute.String("strategy", strategy)))
}

func initializations(m *OTelMetrics) metric.Int64Counter { return m.initializations }
func registrations(m *OTelMetrics) metric.Int64Counter   { return m.registrations }
func creates(m *OTelMetrics) metric.Int64Counter         { return m.creates }
func shutdowns(m *OTelMetrics) metric.Int64Counter       { return m.shutdowns }
