package middleware

import (
	"strconv"
	"time"

	"github.com/casaviva/backoffice/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

type httpMetrics struct {
	requests telemetry.Counter
	latency  telemetry.DurationHistogram
	inFlight metric.Int64UpDownCounter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	var (
		m   httpMetrics
		err error
	)
	if m.requests, err = telemetry.NewCounter(meter, "http_server_request_total",
		"HTTP requests by route and status", "{request}"); err != nil {
		return nil, err
	}
	if m.latency, err = telemetry.NewDurationHistogram(meter, "http_server_request_duration_seconds",
		"HTTP request latency", telemetry.HTTPDurationBuckets); err != nil {
		return nil, err
	}
	if m.inFlight, err = meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("HTTP requests being served"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// HTTPMetrics records per route:
//
//   - http_server_request_total: method, route, status_code, status_class
//   - http_server_request_duration_seconds: method, route
//   - http_server_active_requests
//
// A nil meter, or one that refuses the instruments, turns it into a pass-through.
func HTTPMetrics(meter metric.Meter, log *zap.Logger) gin.HandlerFunc {
	passThrough := func(c *gin.Context) { c.Next() }
	if meter == nil {
		return passThrough
	}
	m, err := newHTTPMetrics(meter)
	if err != nil {
		if log != nil {
			log.Warn("HTTP metrics disabled", zap.Error(err))
		}
		return passThrough
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		m.inFlight.Add(ctx, 1)
		defer m.inFlight.Add(ctx, -1)

		c.Next()

		method := telemetry.AttrHTTPMethod.String(c.Request.Method)
		route := telemetry.AttrHTTPRoute.String(routeOf(c))
		status := c.Writer.Status()
		m.requests.Inc(ctx, method, route,
			telemetry.AttrHTTPStatusCode.Int(status),
			attribute.String("http.status_class", StatusClass(status)),
		)
		m.latency.Observe(ctx, time.Since(start), method, route)
	}
}

// routeOf returns the matched pattern ("/api/v1/clients/:id") so paths with
// IDs do not explode cardinality. Unmatched requests share "unknown".
func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unknown"
}

// StatusClass groups status codes into 2xx/3xx/4xx/5xx.
func StatusClass(statusCode int) string {
	if statusCode < 200 || statusCode > 599 {
		return "other"
	}
	return strconv.Itoa(statusCode/100) + "xx"
}
