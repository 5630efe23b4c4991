package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/hoteladmin"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Refresh metrics
	RefreshTotal     metric.Int64Counter
	RefreshDuration  metric.Float64Histogram
	RefreshDiscarded metric.Int64Counter

	// Session metrics
	TransitionsTotal metric.Int64Counter

	// Profile metrics
	ProfileLoadsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments. Instruments are
// bound to the global meter provider, which is a no-op until InitTelemetry
// installs the OTLP exporter.
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.RefreshTotal, _ = meter.Int64Counter(
		"hoteladmin.session.refresh.total",
		metric.WithDescription("Total number of credential refresh attempts by trigger and result"),
		metric.WithUnit("{refresh}"),
	)

	m.RefreshDuration, _ = meter.Float64Histogram(
		"hoteladmin.session.refresh.duration",
		metric.WithDescription("Duration of credential refresh calls"),
		metric.WithUnit("ms"),
	)

	m.RefreshDiscarded, _ = meter.Int64Counter(
		"hoteladmin.session.refresh.discarded.total",
		metric.WithDescription("Refresh results discarded because the session changed while they were in flight"),
		metric.WithUnit("{refresh}"),
	)

	m.TransitionsTotal, _ = meter.Int64Counter(
		"hoteladmin.session.transitions.total",
		metric.WithDescription("Total number of session state transitions by target state"),
		metric.WithUnit("{transition}"),
	)

	m.ProfileLoadsTotal, _ = meter.Int64Counter(
		"hoteladmin.session.profile.loads.total",
		metric.WithDescription("Total number of profile loads by result"),
		metric.WithUnit("{load}"),
	)

	return m
}
