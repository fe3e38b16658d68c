package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mkrupp/nutrifit-client/internal/infra/logging"
)

// LoggingRoundTripper logs outgoing requests at DEBUG level and responses at a
// level determined by the status code:
// - transport error or 5xx: ERROR
// - 4xx: WARN
// - Other: DEBUG.
func LoggingRoundTripper(next http.RoundTripper, log logging.Logger) http.RoundTripper {
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		ctx := r.Context()
		start := time.Now()

		log.DebugContext(ctx, "request", slog.Group("http",
			"method", r.Method,
			"url", r.URL.Redacted(),
		))

		resp, err := next.RoundTrip(r)
		if err != nil {
			log.ErrorContext(ctx, "request failed", slog.Group("http",
				"method", r.Method,
				"url", r.URL.Redacted(),
				"duration", time.Since(start),
			), "error", err)

			return resp, err
		}

		var level logging.Level

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			level = logging.LevelError
		case resp.StatusCode >= http.StatusBadRequest:
			level = logging.LevelWarn
		default:
			level = logging.LevelDebug
		}

		log.Log(ctx, level, "response", slog.Group("http",
			"method", r.Method,
			"url", r.URL.Redacted(),
			"status", resp.StatusCode,
			"duration", time.Since(start),
		))

		return resp, nil
	})
}
