package http

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	context_ "github.com/mkrupp/nutrifit-client/internal/infra/context"
)

const tracerName = "nutrifit.transport.http"

// TracingRoundTripper sets the X-Request-ID header from the request context,
// generating a UUIDv7 when the context carries none.
func TracingRoundTripper(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if r.Header.Get(TraceIDHeader) != "" {
			return next.RoundTrip(r)
		}

		ctx, traceID := context_.EnsureTraceID(r.Context())

		r = r.Clone(ctx)
		r.Header.Set(TraceIDHeader, traceID)

		return next.RoundTrip(r)
	})
}

// SpanRoundTripper wraps each request in an OpenTelemetry client span
// using the globally registered tracer provider and propagates it with the
// global text map propagator.
func SpanRoundTripper(next http.RoundTripper) http.RoundTripper {
	tracer := otel.Tracer(tracerName)

	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
				attribute.String("server.address", r.URL.Host),
			),
		)
		defer span.End()

		if traceID, ok := context_.TraceIDFromContext(ctx); ok {
			span.SetAttributes(attribute.String("http.request.id", traceID))
		}

		r = r.Clone(ctx)
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(r.Header))

		resp, err := next.RoundTrip(r)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())

			return resp, err
		}

		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

		if resp.StatusCode >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		}

		return resp, nil
	})
}
