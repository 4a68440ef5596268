package registry

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Prober checks whether a service instance is ready.
// Implementations must honour ctx and return nil only for a ready instance.
type Prober interface {
	Probe(ctx context.Context, baseURL string) error
}

// HTTPProber issues GET <baseURL><path> and expects a 2xx answer.
type HTTPProber struct {
	client *http.Client
	path   string
}

// NewHTTPProber creates an HTTP prober. A nil client uses one without a
// client-side timeout; the registry bounds each probe through ctx.
func NewHTTPProber(path string, client *http.Client) *HTTPProber {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPProber{client: client, path: path}
}

// Probe performs one health request.
func (p *HTTPProber) Probe(ctx context.Context, baseURL string) error {
	target, err := url.JoinPath(baseURL, p.path)
	if err != nil {
		return fmt.Errorf("build probe url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "meshgate-health/1")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d", ErrUnhealthyStatus, resp.StatusCode)
	}
	return nil
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, baseURL string) error

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, baseURL string) error {
	return f(ctx, baseURL)
}

// cryptoRandDuration returns a cryptographically random duration in [0, maxDur).
func cryptoRandDuration(maxDur time.Duration) time.Duration {
	if maxDur <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	n := binary.LittleEndian.Uint64(b[:])
	return time.Duration(n % uint64(maxDur)) //nolint:gosec // maxDur is positive
}
