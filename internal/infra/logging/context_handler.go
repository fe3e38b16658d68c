package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	context_ "github.com/mkrupp/nutrifit-client/internal/infra/context"
)

// ContextHandler copies request scoped values from the context into every
// record: the request trace ID, the OpenTelemetry span and the signed-in user.
type ContextHandler struct {
	next Handler
}

var _ slog.Handler = (*ContextHandler)(nil)

func NewContextHandler(next Handler) *ContextHandler {
	return &ContextHandler{next: next}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		r.AddAttrs(contextAttrs(ctx)...)
	}

	//nolint:wrapcheck
	return h.next.Handle(ctx, r)
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs, traceAttrs []slog.Attr

	if traceID, ok := context_.TraceIDFromContext(ctx); ok {
		traceAttrs = append(traceAttrs, slog.String("id", traceID))
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		traceAttrs = append(traceAttrs, slog.String("otel", sc.TraceID().String()), slog.String("span", sc.SpanID().String()))
	}

	if len(traceAttrs) > 0 {
		attrs = append(attrs, slog.Attr{Key: "trace", Value: slog.GroupValue(traceAttrs...)})
	}

	if userID, ok := context_.UserIDFromContext(ctx); ok {
		attrs = append(attrs, slog.Group("session", slog.String("user", userID)))
	}

	return attrs
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) Handler {
	return NewContextHandler(h.next.WithAttrs(attrs))
}

func (h *ContextHandler) WithGroup(name string) Handler {
	return NewContextHandler(h.next.WithGroup(name))
}
