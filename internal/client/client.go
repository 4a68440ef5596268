// Package client provides typed, breaker-guarded HTTP clients for the
// downstream healthcare services.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/healthmesh/meshgate/internal/health"
	"github.com/rs/zerolog"
	"github.com/samber/mo"
	"github.com/tidwall/gjson"
)

// MaxResponseBytes caps how much of a downstream answer is read.
const MaxResponseBytes = 4 << 20

var (
	// ErrServiceUnresolved is wrapped when the registry has no healthy URL for the service.
	ErrServiceUnresolved = errors.New("client: service unresolved")

	// ErrDecode is wrapped when a successful answer cannot be decoded.
	ErrDecode = errors.New("client: decode response")
)

// Resolver maps a service name to a live base URL without probing.
// *registry.Registry satisfies it through GetServiceURLSync.
type Resolver interface {
	GetServiceURLSync(name string) mo.Option[string]
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(name string) mo.Option[string]

// GetServiceURLSync calls f.
func (f ResolverFunc) GetServiceURLSync(name string) mo.Option[string] {
	return f(name)
}

// Request describes one call to a downstream service.
type Request struct {
	Body   any
	Header http.Header
	Method string
	Path   string // relative to the service base URL, may carry a query
}

type outbound struct {
	header http.Header
	method string
	url    string
	body   []byte
}

// Option configures a Base client.
type Option func(*Base)

// WithHTTPClient replaces the HTTP client used for calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(b *Base) {
		if hc != nil {
			b.httpClient = hc
		}
	}
}

// WithServiceName overrides the registry name the client resolves.
func WithServiceName(name string) Option {
	return func(b *Base) {
		if name != "" {
			b.service = name
		}
	}
}

// Base issues breaker-guarded JSON calls to one service. Typed clients embed it.
type Base struct {
	resolver   Resolver
	httpClient *http.Client
	breaker    *health.CircuitBreaker[outbound, []byte]
	service    string
}

// NewBase creates a client for service. The breaker is named "client:<service>".
func NewBase(
	service string, resolver Resolver, cfg health.BreakerConfig, logger zerolog.Logger, opts ...Option,
) *Base {
	b := &Base{
		resolver:   resolver,
		httpClient: &http.Client{},
		service:    service,
	}
	for _, opt := range opts {
		opt(b)
	}

	log := logger.With().Str("client", b.service).Logger()
	b.breaker = health.NewCircuitBreaker[outbound, []byte]("client:"+b.service, cfg, b.roundTrip, &log)
	return b
}

// Service returns the registry name this client resolves.
func (b *Base) Service() string {
	return b.service
}

// Breaker returns the client's breaker for introspection.
func (b *Base) Breaker() health.Breaker {
	return b.breaker
}

// Do is shorthand for DoRequest with no extra headers.
func (b *Base) Do(ctx context.Context, method, path string, body, out any) error {
	return b.DoRequest(ctx, Request{Method: method, Path: path, Body: body}, out)
}

// DoRequest performs one guarded call and decodes the answer into out.
//
// A JSON envelope {success, data} is unwrapped so out receives data. Every
// failure is a *health.DependencyError. When the service does not resolve the
// breaker is not consulted.
func (b *Base) DoRequest(ctx context.Context, req Request, out any) error {
	baseURL, ok := b.resolver.GetServiceURLSync(b.service).Get()
	if !ok {
		return health.Unavailable(b.breaker.Name(), fmt.Errorf("%w: %s", ErrServiceUnresolved, b.service))
	}

	target, err := joinURL(baseURL, req.Path)
	if err != nil {
		return health.Unavailable(b.breaker.Name(), err)
	}

	ob := outbound{method: req.Method, url: target, header: req.Header}
	if req.Body != nil {
		ob.body, err = json.Marshal(req.Body)
		if err != nil {
			return health.Unavailable(b.breaker.Name(), fmt.Errorf("encode request: %w", err))
		}
	}

	raw, err := b.breaker.Execute(ctx, ob)
	if err != nil {
		return err
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrapData(raw), out); err != nil {
		return &health.DependencyError{
			Dependency: b.breaker.Name(),
			Kind:       health.KindUpstream,
			Err:        fmt.Errorf("%w: %w", ErrDecode, err),
		}
	}
	return nil
}

func (b *Base) roundTrip(ctx context.Context, ob outbound) ([]byte, error) {
	var body io.Reader = http.NoBody
	if ob.body != nil {
		body = bytes.NewReader(ob.body)
	}

	req, err := http.NewRequestWithContext(ctx, ob.method, ob.url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for key, values := range ob.header {
		req.Header[key] = append([]string(nil), values...)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "meshgate-client/1")
	if ob.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, health.ParseUpstreamError(resp.StatusCode, raw)
	}
	return raw, nil
}

func joinURL(baseURL, path string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse path: %w", err)
	}
	joined := base.JoinPath(ref.Path)
	joined.RawQuery = ref.RawQuery
	return joined.String(), nil
}

// unwrapData returns the data member of a {success, data} envelope, or raw.
func unwrapData(raw []byte) []byte {
	if !gjson.GetBytes(raw, "success").Exists() {
		return raw
	}
	data := gjson.GetBytes(raw, "data")
	if !data.Exists() {
		return raw
	}
	return []byte(data.Raw)
}
