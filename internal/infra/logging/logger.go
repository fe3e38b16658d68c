package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

type (
	Logger  = *slog.Logger
	Handler = slog.Handler
	Level   = slog.Level
)

// LoggerConfig holds configuration parameters for logging.
type LoggerConfig struct {
	// Output is "stdout", "stderr", "discard" or the path of a log file.
	Output string `env:"OUTPUT" default:"stderr"`

	// Level is the minimum level ("debug", "info", "warn", "error").
	Level string `env:"LEVEL" default:"info"`

	// Filter overrides the level per logger name, e.g. "svc.apiclient:debug,repo:warn".
	Filter string `env:"FILTER" default:""`

	// JSON switches from console to JSON lines.
	JSON bool `env:"JSON" default:"false"`

	// Color controls ANSI colors in console output ("auto", "always", "never").
	Color string `env:"COLOR" default:"auto"`

	// Writer overrides Output when set.
	Writer io.Writer
}

// setup is the resolved global state every logger is derived from.
type setup struct {
	appName string
	writer  io.Writer
	level   Level
	filter  LevelFilter
	json    bool
	color   bool
}

//nolint:gochecknoglobals
var (
	Group = slog.Group

	current   = setup{writer: io.Discard, level: LevelInfo}
	currentMu sync.RWMutex
)

// Configure sets up the global logging state. Loggers obtained before the
// call keep writing with the previous settings.
func Configure(ctx context.Context, cfg LoggerConfig, appName string) {
	writer, err := openOutput(cfg)
	if err != nil {
		writer = os.Stderr
		defer func() {
			GetLogger("infra.logging").ErrorContext(ctx, "falling back to stderr", "error", err)
		}()
	}

	s := setup{
		appName: appName,
		writer:  writer,
		level:   ParseLevel(cfg.Level, LevelInfo),
		filter:  ParseLevelFilter(cfg.Filter),
		json:    cfg.JSON,
		color:   !cfg.JSON && useColor(cfg.Color, writer),
	}

	currentMu.Lock()
	current = s
	currentMu.Unlock()

	slog.SetLogLoggerLevel(s.level)

	GetLogger("infra.logging").DebugContext(ctx, "logging configured",
		Group("config", "app", appName, "output", cfg.Output, "level", s.level, "filter", cfg.Filter, "json", s.json),
	)
}

func openOutput(cfg LoggerConfig) (io.Writer, error) {
	if cfg.Writer != nil {
		return cfg.Writer, nil
	}

	switch cfg.Output {
	case "", "discard":
		return io.Discard, nil
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}

	file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return file, nil
}

// GetLogger returns a logger tagged with name. Dotted names form a hierarchy
// that the level filter matches on.
func GetLogger(name string) Logger {
	currentMu.RLock()
	s := current
	currentMu.RUnlock()

	if s.writer == io.Discard {
		return Discard()
	}

	var handler Handler

	if s.json {
		//nolint:exhaustruct
		handler = slog.NewJSONHandler(s.writer, &slog.HandlerOptions{AddSource: true, Level: LevelDebug})
	} else {
		handler = &ConsoleHandler{Output: s.writer, NoColor: !s.color}
	}

	handler = NewFilterHandler(NewContextHandler(handler), s.level, s.filter)

	logger := slog.New(handler)
	if s.appName != "" {
		logger = logger.With("app", s.appName)
	}

	return logger.With(loggerKey, name)
}

// Discard returns a logger that drops every record.
func Discard() Logger {
	return slog.New(slog.DiscardHandler)
}

// GetLogLogger adapts logger for code that expects a *log.Logger.
func GetLogLogger(logger Logger, level Level) *log.Logger {
	return slog.NewLogLogger(logger.With("stdlog", true).Handler(), level)
}

func useColor(mode string, output io.Writer) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "always":
		return true
	case "never":
		return false
	}

	file, ok := output.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

// Redact shortens a secret so it can be logged for correlation without exposing it.
func Redact(secret string) string {
	const keep = 6

	if len(secret) <= keep {
		return strings.Repeat("*", len(secret))
	}

	return secret[:keep] + "…"
}
