package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/studysync/studysync"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// API gateway metrics
	APIRequestsTotal metric.Int64Counter
	APIErrorsTotal   metric.Int64Counter
	APIRetriesTotal  metric.Int64Counter
	APIDuration      metric.Float64Histogram

	// Purchase flow metrics
	PurchasesInitiatedTotal metric.Int64Counter
	FreeGrantsTotal         metric.Int64Counter

	// Payment metrics
	PaymentOutcomesTotal  metric.Int64Counter
	PaymentsVerifiedTotal metric.Int64Counter
	CheckoutDuration      metric.Float64Histogram
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

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// API gateway metrics
	m.APIRequestsTotal, _ = meter.Int64Counter(
		"studysync.api.requests.total",
		metric.WithDescription("Total number of API requests issued"),
		metric.WithUnit("{request}"),
	)

	m.APIErrorsTotal, _ = meter.Int64Counter(
		"studysync.api.errors.total",
		metric.WithDescription("Total number of API requests that failed after retries"),
		metric.WithUnit("{error}"),
	)

	m.APIRetriesTotal, _ = meter.Int64Counter(
		"studysync.api.retries.total",
		metric.WithDescription("Total number of API request retry attempts"),
		metric.WithUnit("{retry}"),
	)

	m.APIDuration, _ = meter.Float64Histogram(
		"studysync.api.duration",
		metric.WithDescription("Duration of API requests including retries"),
		metric.WithUnit("ms"),
	)

	// Purchase flow metrics
	m.PurchasesInitiatedTotal, _ = meter.Int64Counter(
		"studysync.purchases.initiated.total",
		metric.WithDescription("Total number of purchase requests posted"),
		metric.WithUnit("{purchase}"),
	)

	m.FreeGrantsTotal, _ = meter.Int64Counter(
		"studysync.purchases.free_granted.total",
		metric.WithDescription("Total number of free items granted without a payment session"),
		metric.WithUnit("{grant}"),
	)

	// Payment metrics
	m.PaymentOutcomesTotal, _ = meter.Int64Counter(
		"studysync.payments.outcomes.total",
		metric.WithDescription("Total number of payment session terminal outcomes"),
		metric.WithUnit("{outcome}"),
	)

	m.PaymentsVerifiedTotal, _ = meter.Int64Counter(
		"studysync.payments.verified.total",
		metric.WithDescription("Total number of payments verified by the backend"),
		metric.WithUnit("{payment}"),
	)

	m.CheckoutDuration, _ = meter.Float64Histogram(
		"studysync.payments.checkout.duration",
		metric.WithDescription("Duration of checkout sessions from open to terminal outcome"),
		metric.WithUnit("s"),
	)

	return m
}
