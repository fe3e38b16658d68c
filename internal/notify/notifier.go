package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/mkrupp/nutrifit-client/internal/infra/logging"
)

// Level classifies a notification for presentation.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification is a transient, user-visible message (a toast on mobile, a line on the CLI).
type Notification struct {
	Level   Level
	Title   string
	Message string
}

func (n Notification) String() string {
	if n.Message == "" {
		return n.Title
	}

	return n.Title + ": " + n.Message
}

// Notifier delivers notifications to the user. Implementations must be safe for
// concurrent use and must not block for long.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notification)

// Notify implements Notifier.
func (f Func) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// Nop discards all notifications.
func Nop() Notifier {
	return Func(func(context.Context, Notification) {})
}

// Error builds an error notification with the given title and message.
func Error(title, message string) Notification {
	return Notification{Level: LevelError, Title: title, Message: message}
}

// Success builds a success notification with the given title and message.
func Success(title, message string) Notification {
	return Notification{Level: LevelSuccess, Title: title, Message: message}
}

type logNotifier struct {
	log logging.Logger
}

// NewLogNotifier returns a Notifier that writes every notification to the log.
func NewLogNotifier() Notifier {
	return &logNotifier{log: logging.GetLogger("notify")}
}

func (l *logNotifier) Notify(ctx context.Context, n Notification) {
	level := logging.LevelInfo
	if n.Level == LevelError {
		level = logging.LevelWarn
	}

	l.log.Log(ctx, level, "notification", logging.Group("notification",
		"level", n.Level,
		"title", n.Title,
		"message", n.Message,
	))
}

// WriterNotifier prints notifications as single lines to an io.Writer.
type WriterNotifier struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriterNotifier creates a WriterNotifier writing to w.
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

// Notify implements Notifier.
func (wn *WriterNotifier) Notify(_ context.Context, n Notification) {
	wn.mu.Lock()
	defer wn.mu.Unlock()

	prefix := "•"

	switch n.Level {
	case LevelError:
		prefix = "✗"
	case LevelSuccess:
		prefix = "✓"
	case LevelInfo:
	}

	_, _ = fmt.Fprintf(wn.w, "%s %s\n", prefix, n)
}

// Multi fans a notification out to every non-nil notifier in order.
func Multi(notifiers ...Notifier) Notifier {
	var out []Notifier

	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}

	return Func(func(ctx context.Context, n Notification) {
		for _, notifier := range out {
			notifier.Notify(ctx, n)
		}
	})
}

// Recorder keeps every notification in memory. Used by tests and the CLI summary.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, n)
}

// Notifications returns a copy of the recorded notifications.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Notification(nil), r.items...)
}

// ErrNoNotification is returned by Recorder.Last when nothing was recorded.
var ErrNoNotification = errors.New("no notification recorded")

// Last returns the most recent notification.
func (r *Recorder) Last() (Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.items) == 0 {
		return Notification{}, ErrNoNotification
	}

	return r.items[len(r.items)-1], nil
}
