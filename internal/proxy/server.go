package proxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Server timeouts that are not configurable.
const (
	ReadHeaderTimeout = 10 * time.Second
	IdleTimeout       = 120 * time.Second
)

// Server wraps http.Server with gateway configuration.
type Server struct {
	httpServer *http.Server
	addr       string
}

// NewServer creates a Server.
// readTimeout bounds reading a whole request; 0 disables it. There is no
// write timeout: upstream calls are bounded by their breaker and upgraded
// connections stay open.
// If enableHTTP2 is true, HTTP/2 cleartext (h2c) is accepted on the same port.
func NewServer(addr string, handler http.Handler, readTimeout time.Duration, enableHTTP2 bool) *Server {
	finalHandler := handler
	if enableHTTP2 {
		finalHandler = h2c.NewHandler(handler, &http2.Server{IdleTimeout: IdleTimeout})
	}

	return &Server{
		addr: addr,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           finalHandler,
			ReadHeaderTimeout: ReadHeaderTimeout,
			ReadTimeout:       readTimeout,
			IdleTimeout:       IdleTimeout,
		},
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ListenAndServe starts the server (blocks). A graceful shutdown returns nil.
func (s *Server) ListenAndServe() error {
	return ignoreClosed(s.httpServer.ListenAndServe())
}

// Serve accepts connections on ln (blocks). A graceful shutdown returns nil.
func (s *Server) Serve(ln net.Listener) error {
	return ignoreClosed(s.httpServer.Serve(ln))
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
