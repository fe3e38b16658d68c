package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

const (
	ansiReset = "\033[0m"
	ansiDim   = "\033[2m"
	ansiBold  = "\033[1m"
)

type levelStyle struct {
	label string
	color string
}

func styleFor(level Level) levelStyle {
	switch {
	case level >= LevelError:
		return levelStyle{"ERR", "\033[31m"}
	case level >= LevelWarn:
		return levelStyle{"WRN", "\033[33m"}
	case level >= LevelInfo:
		return levelStyle{"INF", "\033[32m"}
	default:
		return levelStyle{"DBG", "\033[36m"}
	}
}

// ConsoleHandler writes one human readable line per record:
//
//	12:04:05.123 INF feedsvc.feed_service post published | post.id=42 → feed_service.go:88
//
// The logger name is printed in front of the message and the caller is only
// shown for warnings and errors. Levels are left to the wrapping FilterHandler.
type ConsoleHandler struct {
	Output  io.Writer
	NoColor bool

	logger string
	attrs  []byte
	prefix string
}

var _ slog.Handler = (*ConsoleHandler)(nil)

// consoleMu serializes writes of all console handlers.
//
//nolint:gochecknoglobals
var consoleMu sync.Mutex

func (h *ConsoleHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer

	style := styleFor(r.Level)

	buf.WriteString(h.paint(ansiDim, r.Time.Format("15:04:05.000")))
	buf.WriteByte(' ')
	buf.WriteString(h.paint(style.color, style.label))

	if h.logger != "" {
		buf.WriteByte(' ')
		buf.WriteString(h.paint(ansiBold, shortName(h.logger)))
	}

	buf.WriteByte(' ')
	buf.WriteString(r.Message)

	attrs := bytes.Clone(h.attrs)

	r.Attrs(func(a slog.Attr) bool {
		attrs = appendAttr(attrs, h.prefix, a)

		return true
	})

	if len(attrs) > 0 {
		buf.WriteString(h.paint(ansiDim, " |"))
		buf.Write(attrs)
	}

	if r.PC != 0 && r.Level >= LevelWarn {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		buf.WriteString(h.paint(ansiDim, " → "+filepath.Base(frame.File)+":"+strconv.Itoa(frame.Line)))
	}

	buf.WriteByte('\n')

	consoleMu.Lock()
	defer consoleMu.Unlock()

	_, err := h.Output.Write(buf.Bytes())

	//nolint:wrapcheck
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) Handler {
	clone := h.clone()

	for _, a := range attrs {
		if a.Key == loggerKey && h.prefix == "" {
			clone.logger = a.Value.String()

			continue
		}

		if a.Key == "app" && h.prefix == "" {
			continue
		}

		clone.attrs = appendAttr(clone.attrs, h.prefix, a)
	}

	return clone
}

func (h *ConsoleHandler) WithGroup(name string) Handler {
	if name == "" {
		return h
	}

	clone := h.clone()
	clone.prefix = h.prefix + name + "."

	return clone
}

func (h *ConsoleHandler) clone() *ConsoleHandler {
	return &ConsoleHandler{
		Output:  h.Output,
		NoColor: h.NoColor,
		logger:  h.logger,
		attrs:   bytes.Clone(h.attrs),
		prefix:  h.prefix,
	}
}

func (h *ConsoleHandler) paint(code, text string) string {
	if h.NoColor {
		return text
	}

	return code + text + ansiReset
}

func appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()

	if a.Equal(slog.Attr{}) {
		return buf
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, member := range a.Value.Group() {
			buf = appendAttr(buf, prefix+a.Key+".", member)
		}

		return buf
	}

	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, a.Key...)
	buf = append(buf, '=')

	value := a.Value.String()
	if value == "" || strings.ContainsAny(value, " \t\n\"=") {
		return strconv.AppendQuote(buf, value)
	}

	return append(buf, value...)
}

// shortName drops the layer of a logger name, "svc.feedsvc.feed_service"
// becomes "feedsvc.feed_service".
func shortName(name string) string {
	if _, rest, ok := strings.Cut(name, "."); ok {
		return rest
	}

	return name
}
