package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/healthmesh/meshgate/internal/client"
	"github.com/samber/mo"
)

// RequestContext describes one inbound gateway request. It is built once at
// entry and never mutated: stages that learn something derive a copy.
type RequestContext struct {
	StartedAt     time.Time
	Header        http.Header
	User          mo.Option[client.User]
	Method        string
	Path          string
	APIVersion    string
	VersionSource VersionSource
	TargetService string
	Segment       string
	Rest          string
	RequestID     string
}

// NewRequestContext captures the parts of r the pipeline needs.
// The header is cloned so later changes to r do not leak in.
func NewRequestContext(r *http.Request, p APIPath, version string, source VersionSource, service string) RequestContext {
	return RequestContext{
		StartedAt:     time.Now(),
		Header:        r.Header.Clone(),
		User:          mo.None[client.User](),
		Method:        r.Method,
		Path:          r.URL.Path,
		APIVersion:    version,
		VersionSource: source,
		TargetService: service,
		Segment:       p.Segment,
		Rest:          p.Rest,
		RequestID:     GetRequestID(r.Context()),
	}
}

// WithUser returns a copy carrying the authenticated user.
func (rc RequestContext) WithUser(user mo.Option[client.User]) RequestContext {
	rc.User = user
	return rc
}

// WithTarget returns a copy routed to a different service.
func (rc RequestContext) WithTarget(service string) RequestContext {
	rc.TargetService = service
	return rc
}

// UserID returns the authenticated user id, or "".
func (rc RequestContext) UserID() string {
	return rc.User.OrEmpty().ID
}

type requestContextKey struct{}

// WithRequestContext stores rc in ctx.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom returns the RequestContext stored in ctx.
func RequestContextFrom(ctx context.Context) mo.Option[RequestContext] {
	if rc, ok := ctx.Value(requestContextKey{}).(RequestContext); ok {
		return mo.Some(rc)
	}
	return mo.None[RequestContext]()
}
