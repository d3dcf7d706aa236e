package httpmiddleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// TelemetryProvider supplies the OpenTelemetry providers of the process.
type TelemetryProvider interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Instrument traces and measures requests with otelhttp. Spans are named by
// method and route, and metrics carry the route as http.route.
func Instrument(serviceName string, find RouteFinder, m TelemetryProvider) Middleware {
	return func(next http.Handler) http.Handler {
		labeled := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if route := find(r); route != "" {
				labeler, _ := otelhttp.LabelerFromContext(r.Context())
				labeler.Add(attribute.String("http.route", route))
				trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("http.route", route))
			}
			next.ServeHTTP(w, r)
		})

		return otelhttp.NewHandler(labeled, serviceName,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if route := find(r); route != "" {
					return r.Method + " " + route
				}
				return r.Method
			}),
		)
	}
}
