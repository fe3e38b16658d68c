package http

import (
	"net/http"
	"time"

	"github.com/mkrupp/nutrifit-client/internal/infra/logging"
)

// HTTPClientConfig contains configuration parameters for outgoing HTTP requests.
type HTTPClientConfig struct {
	// Timeout bounds a whole request including reading the response body
	Timeout time.Duration `env:"TIMEOUT" default:"15s"`
}

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// NewClient creates an http.Client whose transport adds request ids, client spans
// and request/response logging around base. If base is nil, http.DefaultTransport is used.
func NewClient(cfg HTTPClientConfig, base http.RoundTripper) *http.Client {
	log := logging.GetLogger("infra.transport.http.client")

	if base == nil {
		base = http.DefaultTransport
	}

	transport := LoggingRoundTripper(base, log)
	transport = SpanRoundTripper(transport)
	transport = TracingRoundTripper(transport)

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}
