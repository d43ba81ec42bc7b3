package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// unmatchedRoute labels requests that matched no route, keeping label
// cardinality bounded.
const unmatchedRoute = "unmatched"

type httpInstruments struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

func newHTTPInstruments(meterProvider metric.MeterProvider, namespace string) (*httpInstruments, error) {
	meter := meterProvider.Meter(namespace)
	h := &httpInstruments{}

	var err error
	if h.requests, err = meter.Int64Counter(
		namespace+"_http_requests_total",
		metric.WithDescription("HTTP requests by method, route and status code"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if h.duration, err = meter.Float64Histogram(
		namespace+"_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if h.inFlight, err = meter.Int64UpDownCounter(
		namespace+"_http_requests_in_flight",
		metric.WithDescription("HTTP requests being served"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	return h, nil
}

// HTTPMetricsMiddleware counts and times requests by method, route pattern
// (e.g. /v1/certificates/:id) and status code. It degrades to a pass-through
// when the instruments cannot be created.
func HTTPMetricsMiddleware(meterProvider metric.MeterProvider, namespace string) gin.HandlerFunc {
	h, err := newHTTPInstruments(meterProvider, namespace)
	if err != nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		h.inFlight.Add(ctx, 1)

		c.Next()

		h.inFlight.Add(ctx, -1)
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("path", routeLabel(c.FullPath())),
			attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
		)
		h.requests.Add(ctx, 1, attrs)
		h.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}

func routeLabel(fullPath string) string {
	if fullPath == "" {
		return unmatchedRoute
	}
	return fullPath
}
