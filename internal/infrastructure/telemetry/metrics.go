package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrNoMeter is returned when instruments are requested without a meter.
var ErrNoMeter = errors.New("telemetry: meter is required")

// Metric attribute keys.
var (
	AttrOperation = attribute.Key("ledger.operation")
	AttrOutcome   = attribute.Key("ledger.outcome")
	AttrAction    = attribute.Key("audit.action")

	AttrHTTPMethod     = attribute.Key("http.method")
	AttrHTTPRoute      = attribute.Key("http.route")
	AttrHTTPStatusCode = attribute.Key("http.status_code")
)

// Bucket boundaries in seconds.
var (
	HTTPDurationBuckets   = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	LedgerDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
)

// Counter counts events.
type Counter struct {
	c metric.Int64Counter
}

// NewCounter registers a monotonic counter on meter.
func NewCounter(meter metric.Meter, name, description, unit string) (Counter, error) {
	c, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		return Counter{}, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return Counter{c: c}, nil
}

// Inc adds one.
func (c Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// DurationHistogram records latencies in seconds.
type DurationHistogram struct {
	h metric.Float64Histogram
}

// NewDurationHistogram registers a histogram in seconds. With no buckets
// the SDK defaults apply.
func NewDurationHistogram(meter metric.Meter, name, description string, buckets []float64) (DurationHistogram, error) {
	opts := []metric.Float64HistogramOption{metric.WithDescription(description), metric.WithUnit("s")}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := meter.Float64Histogram(name, opts...)
	if err != nil {
		return DurationHistogram{}, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	return DurationHistogram{h: h}, nil
}

// Observe records d.
func (h DurationHistogram) Observe(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	h.h.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}
