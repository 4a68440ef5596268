package di

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/healthmesh/meshgate/internal/proxy"
)

// ServerService wraps the HTTP server.
type ServerService struct {
	Server *proxy.Server
	cfgSvc *ConfigService
}

// NewHTTPServer creates the HTTP server. Listen address, read timeout and
// HTTP/2 are fixed at startup.
func NewHTTPServer(i do.Injector) (*ServerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	handlerSvc := do.MustInvoke[*HandlerService](i)

	srv := cfgSvc.Get().Server
	server := proxy.NewServer(
		srv.GetListen(),
		handlerSvc.Handler,
		srv.GetTimeout(),
		srv.EnableHTTP2,
	)

	return &ServerService{Server: server, cfgSvc: cfgSvc}, nil
}

// Shutdown implements do.Shutdowner for graceful server shutdown.
func (s *ServerService) Shutdown() error {
	if s.Server == nil {
		return nil
	}
	srv := s.cfgSvc.Get().Server
	ctx, cancel := context.WithTimeout(context.Background(), srv.GetShutdownTimeout())
	defer cancel()
	return s.Server.Shutdown(ctx)
}
