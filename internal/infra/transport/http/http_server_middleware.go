package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	context_ "github.com/mkrupp/nutrifit-client/internal/infra/context"
	"github.com/mkrupp/nutrifit-client/internal/infra/logging"
)

// TraceIDHeader carries the request id between client and server.
const TraceIDHeader = "X-Request-ID"

// Middleware decorates a handler.
type Middleware func(http.Handler) http.Handler

// WithMiddleware wraps handler with the server middleware, outermost first:
// request id, server span, access log and panic recovery.
func WithMiddleware(handler http.Handler, log logging.Logger) http.Handler {
	chain := []Middleware{
		RequestIDMiddleware,
		ServerSpanMiddleware,
		func(next http.Handler) http.Handler { return AccessLogMiddleware(next, log) },
		func(next http.Handler) http.Handler { return RecoverMiddleware(next, log) },
	}

	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}

	return handler
}

// statusRecorder remembers the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter

	status int
	size   int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}

	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}

	n, err := w.ResponseWriter.Write(b)
	w.size += n

	//nolint:wrapcheck
	return n, err
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusRecorder) code() int {
	if w.status == 0 {
		return http.StatusOK
	}

	return w.status
}

func record(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}

	return &statusRecorder{ResponseWriter: w}
}

// RequestIDMiddleware takes the request id from X-Request-ID or creates one,
// stores it in the request context and echoes it in the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceIDHeader)
		if traceID == "" {
			traceID = context_.NewTraceID()
		}

		w.Header().Set(TraceIDHeader, traceID)

		next.ServeHTTP(w, r.WithContext(context_.WithTraceID(r.Context(), traceID)))
	})
}

// ServerSpanMiddleware continues the caller's W3C trace, if any, in a server span.
func ServerSpanMiddleware(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			),
		)
		defer span.End()

		if traceID, ok := context_.TraceIDFromContext(ctx); ok {
			span.SetAttributes(attribute.String("http.request.id", traceID))
		}

		rec := record(w)
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.response.status_code", rec.code()))

		if rec.code() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.code()))
		}
	})
}

// AccessLogMiddleware logs one line per request. 5xx responses are logged
// as errors, 4xx as warnings and the rest at info level.
func AccessLogMiddleware(next http.Handler, log logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := record(w)

		next.ServeHTTP(rec, r)

		level := logging.LevelInfo
		if rec.code() >= http.StatusInternalServerError {
			level = logging.LevelError
		} else if rec.code() >= http.StatusBadRequest {
			level = logging.LevelWarn
		}

		log.Log(r.Context(), level, r.Method+" "+r.URL.Path, slog.Group("http",
			"status", rec.code(),
			"bytes", rec.size,
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
		))
	})
}

// RecoverMiddleware turns a panicking handler into a 500 response with the
// JSON error body the API uses.
func RecoverMiddleware(next http.Handler, log logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}

			trace.SpanFromContext(r.Context()).SetStatus(codes.Error, "panic")
			log.ErrorContext(r.Context(), "handler panicked", "panic", p, "stack", string(debug.Stack()))
			WriteError(w, http.StatusInternalServerError, "Erro interno do servidor.")
		}()

		next.ServeHTTP(w, r)
	})
}

// WriteError writes {"error": message} with the given status.
func WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
