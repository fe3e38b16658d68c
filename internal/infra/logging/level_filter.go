package logging

import (
	"context"
	"log/slog"
	"strings"
)

const loggerKey = "logger"

// ParseLevel maps "debug", "info", "warn" and "error" to a Level.
func ParseLevel(s string, fallback Level) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return fallback
	}
}

// LevelFilter holds minimum levels per logger name prefix.
type LevelFilter map[string]Level

// ParseLevelFilter reads "name:level" pairs separated by commas. Malformed
// pairs are skipped; a pair with an unknown level means debug.
func ParseLevelFilter(s string) LevelFilter {
	filter := LevelFilter{}

	for _, pair := range strings.Split(s, ",") {
		name, level, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || name == "" {
			continue
		}

		filter[name] = ParseLevel(level, LevelDebug)
	}

	return filter
}

// Lookup returns the level of the longest prefix of name, matching whole
// dotted segments only.
func (f LevelFilter) Lookup(name string) (Level, bool) {
	for {
		if level, ok := f[name]; ok {
			return level, true
		}

		i := strings.LastIndexByte(name, '.')
		if i < 0 {
			return 0, false
		}

		name = name[:i]
	}
}

// FilterHandler drops records below the level that applies to the logger
// name attached through WithAttrs.
type FilterHandler struct {
	next   Handler
	level  Level
	filter LevelFilter
	floor  Level
}

var _ slog.Handler = (*FilterHandler)(nil)

func NewFilterHandler(next Handler, level Level, filter LevelFilter) *FilterHandler {
	return &FilterHandler{next: next, level: level, filter: filter, floor: level}
}

func (h *FilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.floor && h.next.Enabled(ctx, level)
}

func (h *FilterHandler) Handle(ctx context.Context, r slog.Record) error {
	//nolint:wrapcheck
	return h.next.Handle(ctx, r)
}

func (h *FilterHandler) WithAttrs(attrs []slog.Attr) Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)

	for _, attr := range attrs {
		if attr.Key != loggerKey {
			continue
		}

		if level, ok := h.filter.Lookup(attr.Value.String()); ok {
			clone.floor = level
		} else {
			clone.floor = h.level
		}
	}

	return &clone
}

func (h *FilterHandler) WithGroup(name string) Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)

	return &clone
}
