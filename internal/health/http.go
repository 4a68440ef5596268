package health

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
)

// HTTPBreaker guards raw HTTP round trips to one upstream.
type HTTPBreaker = CircuitBreaker[*http.Request, *http.Response]

// NewHTTPBreaker creates a breaker around transport.RoundTrip.
//
// Responses with status >= 500 or 429 count as failures but are still returned
// so the caller can inspect the upstream body. The per-call context stays alive
// until the response body is closed.
func NewHTTPBreaker(name string, cfg BreakerConfig, transport http.RoundTripper, logger *zerolog.Logger) *HTTPBreaker {
	call := func(ctx context.Context, req *http.Request) (*http.Response, error) {
		resp, err := transport.RoundTrip(req.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		if ShouldCountAsFailure(resp.StatusCode, nil) {
			return resp, &StatusError{StatusCode: resp.StatusCode}
		}
		return resp, nil
	}

	return NewCircuitBreaker(name, cfg, call, logger).
		WithCancelHandoff(func(resp *http.Response, cancel context.CancelFunc) bool {
			if resp == nil || resp.Body == nil {
				return false
			}
			resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
			return true
		})
}

// cancelOnClose releases the per-call context once the body is done.
// For upgraded connections the body is the raw connection, so Write is forwarded.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.once.Do(c.cancel)
	return err
}

func (c *cancelOnClose) Write(p []byte) (int, error) {
	if w, ok := c.ReadCloser.(io.Writer); ok {
		return w.Write(p)
	}
	return 0, io.ErrClosedPipe
}
