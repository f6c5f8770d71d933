package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Label values used by PluginMetrics.
const (
	ResultLoaded   = "loaded"
	ResultSkipped  = "skipped"
	ResultFailed   = "failed"
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultCreated  = "created"
	ResultNotFound = "not_found"

	StrategyLoadAll = "load_all"
	StrategyGuess   = "guess"
)

// PluginMetrics holds the Prometheus metrics of the plugin subsystem.
// A nil *PluginMetrics is valid and records nothing.
type PluginMetrics struct {
	LibraryLoadsTotal    *prometheus.CounterVec
	InitializationsTotal *prometheus.CounterVec
	RegistrationsTotal   *prometheus.CounterVec
	CreateTotal          *prometheus.CounterVec
	DiscoveryScansTotal  *prometheus.CounterVec
	DiscoveryDuration    *prometheus.HistogramVec
	ShutdownsTotal       *prometheus.CounterVec
	LibrariesLoaded      prometheus.Gauge
	StagesRegistered     prometheus.Gauge

	otel *OTelMetrics
}

// NewPluginMetrics creates and registers the plugin metrics on registry.
func NewPluginMetrics(registry prometheus.Registerer) *PluginMetrics {
	m := &PluginMetrics{
		LibraryLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdal_plugins_library_loads_total",
				Help: "Total number of plugin library load attempts",
			},
			[]string{"type", "result"},
		),
		InitializationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdal_plugins_initializations_total",
				Help: "Total number of plugin entry point invocations",
			},
			[]string{"result"},
		),
		RegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdal_plugins_registrations_total",
				Help: "Total number of stage registrations",
			},
			[]string{"result"},
		),
		CreateTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdal_plugins_create_total",
				Help: "Total number of stage creation requests",
			},
			[]string{"result"},
		),
		DiscoveryScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdal_plugins_discovery_scans_total",
				Help: "Total number of plugin discovery scans",
			},
			[]string{"strategy"},
		),
		DiscoveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pdal_plugins_discovery_duration_seconds",
				Help:    "Plugin discovery scan duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"strategy"},
		),
		ShutdownsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdal_plugins_shutdowns_total",
				Help: "Total number of plugin manager shutdowns",
			},
			[]string{"result"},
		),
		LibrariesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pdal_plugins_libraries_loaded",
				Help: "Number of plugin libraries currently loaded",
			},
		),
		StagesRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pdal_plugins_stages_registered",
				Help: "Number of stage types currently registered",
			},
		),
	}

	registry.MustRegister(
		m.LibraryLoadsTotal,
		m.InitializationsTotal,
		m.RegistrationsTotal,
		m.CreateTotal,
		m.DiscoveryScansTotal,
		m.DiscoveryDuration,
		m.ShutdownsTotal,
		m.LibrariesLoaded,
		m.StagesRegistered,
	)

	return m
}

// WithOTel additionally records every event on o.
func (m *PluginMetrics) WithOTel(o *OTelMetrics) *PluginMetrics {
	m.otel = o
	return m
}

// RecordLoad counts a library load attempt for a plugin type.
func (m *PluginMetrics) RecordLoad(pluginType, result string) {
	if m == nil {
		return
	}
	m.LibraryLoadsTotal.WithLabelValues(pluginType, result).Inc()
	m.otel.recordLoad(pluginType, result)
}

// RecordInit counts an entry point invocation.
func (m *PluginMetrics) RecordInit(ok bool) {
	if m == nil {
		return
	}
	result := outcome(ok, ResultSuccess, ResultFailure)
	m.InitializationsTotal.WithLabelValues(result).Inc()
	m.otel.count(initializations, result)
}

// RecordRegistration counts a stage registration.
func (m *PluginMetrics) RecordRegistration(ok bool) {
	if m == nil {
		return
	}
	result := outcome(ok, ResultAccepted, ResultRejected)
	m.RegistrationsTotal.WithLabelValues(result).Inc()
	m.otel.count(registrations, result)
}

// RecordCreate counts a stage creation request.
func (m *PluginMetrics) RecordCreate(found bool) {
	if m == nil {
		return
	}
	result := outcome(found, ResultCreated, ResultNotFound)
	m.CreateTotal.WithLabelValues(result).Inc()
	m.otel.count(creates, result)
}

// ObserveDiscovery records a completed discovery scan.
func (m *PluginMetrics) ObserveDiscovery(strategy string, d time.Duration) {
	if m == nil {
		return
	}
	m.DiscoveryScansTotal.WithLabelValues(strategy).Inc()
	m.DiscoveryDuration.WithLabelValues(strategy).Observe(d.Seconds())
	m.otel.observeDiscovery(strategy, d)
}

// RecordShutdown counts a shutdown and its aggregate result.
func (m *PluginMetrics) RecordShutdown(ok bool) {
	if m == nil {
		return
	}
	result := outcome(ok, ResultSuccess, ResultFailure)
	m.ShutdownsTotal.WithLabelValues(result).Inc()
	m.otel.count(shutdowns, result)
}

// SetInventory updates the loaded-library and registered-stage gauges.
func (m *PluginMetrics) SetInventory(libraries, stages int) {
	if m == nil {
		return
	}
	m.LibrariesLoaded.Set(float64(libraries))
	m.StagesRegistered.Set(float64(stages))
}

func outcome(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
