package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	context_ "github.com/mkrupp/nutrifit-client/internal/infra/context"
	"github.com/mkrupp/nutrifit-client/internal/infra/logging"
)

func TestLevelFilter_Lookup(t *testing.T) {
	t.Parallel()

	filter := logging.ParseLevelFilter("svc:warn, svc.apiclient:debug,broken,repo.credential:nonsense,:error")

	tests := []struct {
		name   string
		want   logging.Level
		wantOK bool
	}{
		{"svc.feedsvc", logging.LevelWarn, true},
		{"svc.apiclient", logging.LevelDebug, true},
		{"svc.apiclient.gateway", logging.LevelDebug, true},
		{"svcx", 0, false},
		{"repo.credential.sqlite", logging.LevelDebug, true},
		{"infra.logging", 0, false},
		{"broken", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := filter.Lookup(tt.name)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Lookup(%q) = %v, %v, want %v, %v", tt.name, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFilterHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	handler := logging.NewFilterHandler(
		&logging.ConsoleHandler{Output: &buf, NoColor: true},
		logging.LevelInfo,
		logging.ParseLevelFilter("svc.feedsvc:warn,svc.apiclient:debug"),
	)

	quiet := slog.New(handler).With("logger", "svc.feedsvc.feed_service")
	loud := slog.New(handler).With("logger", "svc.apiclient")
	plain := slog.New(handler).With("logger", "svc.sessionsvc")

	quiet.Info("filtered info")
	quiet.Warn("kept warning")
	loud.Debug("kept debug")
	plain.Debug("filtered debug")
	plain.Info("kept info")

	out := buf.String()

	for _, unwanted := range []string{"filtered info", "filtered debug"} {
		if strings.Contains(out, unwanted) {
			t.Errorf("output contains %q:\n%s", unwanted, out)
		}
	}

	for _, want := range []string{"kept warning", "kept debug", "kept info"} {
		if !strings.Contains(out, want) {
			t.Errorf("output misses %q:\n%s", want, out)
		}
	}
}

func TestConsoleHandler_Format(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	log := slog.New(&logging.ConsoleHandler{Output: &buf, NoColor: true}).
		With("app", "nutrifit.fitclient", "logger", "svc.feedsvc.feed_service").
		WithGroup("post")

	log.Warn("like rolled back", "id", "42", "reason", "server error", slog.Group("count", "before", 3, "after", 2))

	line := buf.String()

	for _, want := range []string{
		" WRN feedsvc.feed_service like rolled back |",
		" post.id=42",
		` post.reason="server error"`,
		" post.count.before=3 post.count.after=2",
		"logger_test.go:",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line misses %q:\n%s", want, line)
		}
	}

	if strings.Contains(line, "nutrifit.fitclient") {
		t.Errorf("console line repeats the app name:\n%s", line)
	}

	if strings.Contains(line, "\033[") {
		t.Errorf("NoColor output contains escape sequences:\n%s", line)
	}
}

func TestContextHandler_AddsContextAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	log := slog.New(logging.NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := context_.WithTraceID(context.Background(), "trace-1")
	ctx = context_.WithUserID(ctx, "user-1")

	log.InfoContext(ctx, "hello")

	out := buf.String()
	for _, want := range []string{`"trace":{"id":"trace-1"}`, `"session":{"user":"user-1"}`} {
		if !strings.Contains(out, want) {
			t.Errorf("output misses %s:\n%s", want, out)
		}
	}
}

func TestContextHandler_AddsSpanContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	log := slog.New(logging.NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19},
		SpanID:  trace.SpanID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
	})

	log.InfoContext(trace.ContextWithSpanContext(context.Background(), sc), "hello")

	want := `"trace":{"otel":"0a0b0c0d0e0f10111213141516171819","span":"0102030405060708"}`
	if !strings.Contains(buf.String(), want) {
		t.Errorf("output misses %s:\n%s", want, buf.String())
	}

	buf.Reset()
	log.Info("no context values")

	if strings.Contains(buf.String(), "trace") || strings.Contains(buf.String(), "session") {
		t.Errorf("output has context attrs without a context:\n%s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want logging.Level
	}{
		{"debug", logging.LevelDebug},
		{" WARN ", logging.LevelWarn},
		{"warning", logging.LevelWarn},
		{"Error", logging.LevelError},
		{"verbose", logging.LevelInfo},
	}

	for _, tt := range tests {
		if got := logging.ParseLevel(tt.in, logging.LevelInfo); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRedact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		secret string
		want   string
	}{
		{name: "empty", secret: "", want: ""},
		{name: "short", secret: "abc", want: "***"},
		{name: "long", secret: "eyJhbGciOiJIUzI1NiJ9.payload", want: "eyJhbG…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := logging.Redact(tt.secret); got != tt.want {
				t.Errorf("Redact(%q) = %q, want %q", tt.secret, got, tt.want)
			}
		})
	}
}
