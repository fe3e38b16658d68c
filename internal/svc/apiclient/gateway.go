package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mkrupp/nutrifit-client/internal/domain"
	"github.com/mkrupp/nutrifit-client/internal/infra/logging"
	http_ "github.com/mkrupp/nutrifit-client/internal/infra/transport/http"
)

const (
	tracerName = "nutrifit.apiclient"

	// maxBodySize bounds how much of a response body is read.
	maxBodySize = 10 << 20
)

// GatewayConfig holds configuration for the remote API.
type GatewayConfig struct {
	// BaseURL is prepended to every request path
	BaseURL string `env:"BASE_URL" default:"https://nutri-fit-backend.vercel.app/api"`

	// Timeout bounds each request including reading the response body
	Timeout time.Duration `env:"TIMEOUT" default:"15s"`
}

// Gateway is the single HTTP client for the remote API.
// Its only mutable state is the shared credential, which is written
// exclusively through SetCredential and ClearCredential.
type Gateway struct {
	baseURL string
	client  *http.Client
	log     logging.Logger
	tracer  trace.Tracer

	credMu     sync.RWMutex
	credential string

	hooksMu        sync.Mutex
	onUnauthorized []func(ctx context.Context, token string)
}

// NewGateway creates a Gateway talking to cfg.BaseURL through the shared
// client transport chain. If base is nil, http.DefaultTransport is used.
func NewGateway(cfg GatewayConfig, base http.RoundTripper) *Gateway {
	return &Gateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  http_.NewClient(http_.HTTPClientConfig{Timeout: cfg.Timeout}, base),
		log:     logging.GetLogger("svc.apiclient"),
		tracer:  otel.Tracer(tracerName),
	}
}

// SetCredential installs the bearer token sent with every subsequent request.
func (g *Gateway) SetCredential(token string) {
	g.credMu.Lock()
	defer g.credMu.Unlock()

	g.credential = token
}

// ClearCredential removes the shared bearer token.
func (g *Gateway) ClearCredential() {
	g.credMu.Lock()
	defer g.credMu.Unlock()

	g.credential = ""
}

// Credential returns the shared bearer token and whether one is set.
func (g *Gateway) Credential() (string, bool) {
	g.credMu.RLock()
	defer g.credMu.RUnlock()

	return g.credential, g.credential != ""
}

// OnUnauthorized registers fn to be called with the rejected token when a
// request that carried the shared credential is answered with 401 and the
// credential is still current. Returns a function that unregisters fn.
func (g *Gateway) OnUnauthorized(fn func(ctx context.Context, token string)) (cancel func()) {
	g.hooksMu.Lock()
	defer g.hooksMu.Unlock()

	g.onUnauthorized = append(g.onUnauthorized, fn)
	idx := len(g.onUnauthorized) - 1

	return func() {
		g.hooksMu.Lock()
		defer g.hooksMu.Unlock()

		g.onUnauthorized[idx] = nil
	}
}

// Do sends a JSON request carrying the shared credential, if any, and decodes
// the JSON response into out. in and out may be nil.
func (g *Gateway) Do(ctx context.Context, method, path string, in, out any) error {
	token, shared := g.Credential()

	return g.do(ctx, method, path, in, out, token, shared)
}

// DoWithToken is like Do but authenticates with token instead of the shared credential.
// A 401 response does not trigger the OnUnauthorized hooks.
func (g *Gateway) DoWithToken(ctx context.Context, token, method, path string, in, out any) error {
	return g.do(ctx, method, path, in, out, token, false)
}

// doAnonymous sends a request without any credential.
func (g *Gateway) doAnonymous(ctx context.Context, method, path string, in, out any) error {
	return g.do(ctx, method, path, in, out, "", false)
}

//nolint:cyclop,funlen
func (g *Gateway) do(
	ctx context.Context,
	method, path string,
	in, out any,
	token string,
	shared bool,
) (err error) {
	ctx, span := g.tracer.Start(ctx, "apiclient "+method+" "+path,
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
			attribute.Bool("nutrifit.authenticated", token != ""),
		),
	)

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()
	}()

	var body io.Reader

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}

		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return errors.Join(domain.ErrNetworkOrServer, fmt.Errorf("new request: %w", err))
	}

	req.Header.Set("Accept", "application/json")

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return errors.Join(domain.ErrNetworkOrServer, fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return errors.Join(domain.ErrNetworkOrServer, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newAPIError(method, path, resp.StatusCode, payload)

		if resp.StatusCode == http.StatusUnauthorized && shared {
			g.unauthorized(ctx, token)
		}

		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return errors.Join(domain.ErrNetworkOrServer, fmt.Errorf("decode response: %w", err))
	}

	return nil
}

// unauthorized fires the hooks unless the credential changed while the request was in flight.
func (g *Gateway) unauthorized(ctx context.Context, sentToken string) {
	if current, _ := g.Credential(); current != sentToken {
		g.log.DebugContext(ctx, "stale 401 ignored", "token", logging.Redact(sentToken))

		return
	}

	g.hooksMu.Lock()
	hooks := make([]func(context.Context, string), 0, len(g.onUnauthorized))

	for _, fn := range g.onUnauthorized {
		if fn != nil {
			hooks = append(hooks, fn)
		}
	}
	g.hooksMu.Unlock()

	g.log.WarnContext(ctx, "credential rejected", "token", logging.Redact(sentToken))

	for _, fn := range hooks {
		fn(ctx, sentToken)
	}
}
