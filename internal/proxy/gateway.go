package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	stdlog "log"
	"mime"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/healthmesh/meshgate/internal/config"
	"github.com/healthmesh/meshgate/internal/dashboard"
	"github.com/healthmesh/meshgate/internal/health"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Gateway response limits.
const (
	// MaxTransformBytes is the largest JSON body that is enveloped; larger
	// bodies pass through untouched.
	MaxTransformBytes = 8 << 20
	// maxErrorBodyBytes bounds how much of an upstream error body is parsed.
	maxErrorBodyBytes = 64 << 10
	// StatusClientClosedRequest is logged when the caller went away mid-request.
	StatusClientClosedRequest = 499
)

// DashboardSegment and DashboardSummaryPath locate the aggregated dashboard.
const (
	DashboardSegment     = "dashboard"
	DashboardSummaryPath = "/summary"
)

// DashboardSource produces the aggregated dashboard. *dashboard.Aggregator implements it.
type DashboardSource interface {
	Summary(ctx context.Context) (dashboard.Summary, error)
}

// Gateway forwards /api requests to the resolved service and shapes the answer.
type Gateway struct {
	runtime   config.RuntimeConfig
	resolver  *Resolver
	dashboard DashboardSource
	proxy     *httputil.ReverseProxy
	now       func() time.Time
	logger    zerolog.Logger
}

// NewGateway creates a Gateway. Upstream round trips go through the tracker's
// per-service breakers. dash may be nil.
func NewGateway(
	runtime config.RuntimeConfig,
	resolver *Resolver,
	tracker *health.Tracker,
	dash DashboardSource,
	logger zerolog.Logger,
) *Gateway {
	g := &Gateway{
		runtime:   runtime,
		resolver:  resolver,
		dashboard: dash,
		now:       time.Now,
		logger:    logger.With().Str("component", "gateway").Logger(),
	}

	g.proxy = &httputil.ReverseProxy{
		Rewrite:        g.rewrite,
		Transport:      &breakerTransport{tracker: tracker},
		FlushInterval:  -1,
		ModifyResponse: g.modifyResponse,
		ErrorHandler:   g.handleError,
		ErrorLog:       stdlog.New(g.logger, "", 0),
	}
	return g
}

// forward is what the gateway decided about a request before proxying it.
type forward struct {
	target *url.URL
	rc     RequestContext
}

type forwardKey struct{}

func forwardFrom(ctx context.Context) (forward, bool) {
	fw, ok := ctx.Value(forwardKey{}).(forward)
	return fw, ok
}

// ServeHTTP resolves the target of a request carrying a RequestContext and proxies it.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc, ok := RequestContextFrom(r.Context()).Get()
	if !ok {
		WriteError(w, http.StatusNotFound, CodeNotFound, "no route for "+r.URL.Path)
		return
	}

	if g.dashboard != nil && rc.Segment == DashboardSegment && rc.Rest == DashboardSummaryPath {
		g.serveDashboard(w, r, rc)
		return
	}

	start := time.Now()
	base, found := g.resolver.Resolve(r.Context(), rc.TargetService).Get()
	if timings := getRequestTimings(r.Context()); timings != nil {
		timings.Resolve = time.Since(start)
	}
	if !found {
		zerolog.Ctx(r.Context()).Warn().
			Str("service", rc.TargetService).
			Msg("target service unresolved")
		WriteUnavailable(w, rc.TargetService)
		return
	}

	target, err := url.Parse(base)
	if err != nil || target.Host == "" {
		zerolog.Ctx(r.Context()).Error().
			Str("service", rc.TargetService).
			Str("url", base).
			Msg("target service has an invalid url")
		WriteUnavailable(w, rc.TargetService)
		return
	}

	ctx := context.WithValue(r.Context(), forwardKey{}, forward{target: target, rc: rc})
	g.proxy.ServeHTTP(w, r.WithContext(ctx))
}

func (g *Gateway) rewrite(pr *httputil.ProxyRequest) {
	fw, ok := forwardFrom(pr.In.Context())
	if !ok {
		return
	}

	pr.Out.URL.Path = fw.rc.Rest
	pr.Out.URL.RawPath = ""
	pr.SetURL(fw.target)
	pr.SetXForwarded()

	// Bodies are transformed, so the transport negotiates compression itself.
	pr.Out.Header.Del("Accept-Encoding")

	pr.Out.Header.Del(HeaderUserID)
	if id := fw.rc.UserID(); id != "" {
		pr.Out.Header.Set(HeaderUserID, id)
	}
	if fw.rc.RequestID != "" {
		pr.Out.Header.Set(HeaderRequestID, fw.rc.RequestID)
	}
	pr.Out.Header.Set(HeaderAPIVersion, fw.rc.APIVersion)
}

func (g *Gateway) modifyResponse(resp *http.Response) error {
	fw, ok := forwardFrom(resp.Request.Context())
	if !ok {
		return nil
	}
	resp.Header.Del(HeaderAPIVersion)
	LogResponseDetails(resp.Request.Context(), fw.rc.TargetService, resp.Header, resp.StatusCode,
		g.runtime.Get().Logging.DebugOptions)

	switch {
	case resp.StatusCode == http.StatusSwitchingProtocols:
		return nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return g.rewriteUpstreamError(resp, fw)
	case resp.StatusCode == http.StatusNoContent || !isJSON(resp.Header.Get("Content-Type")):
		return nil
	default:
		return g.envelope(resp, fw)
	}
}

func (g *Gateway) rewriteUpstreamError(resp *http.Response, fw forward) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	_ = resp.Body.Close()
	if err != nil {
		return err
	}

	se := health.ParseUpstreamError(resp.StatusCode, raw)
	status, detail := upstreamDetail(fw.rc.TargetService, se.StatusCode, se.Code, se.Message)

	zerolog.Ctx(resp.Request.Context()).Warn().
		Str("service", fw.rc.TargetService).
		Int("upstream_status", resp.StatusCode).
		Str("code", detail.Code).
		Msg("upstream returned an error")

	body, err := json.Marshal(ErrorResponse{Error: detail})
	if err != nil {
		return err
	}
	body = append(body, '\n')

	resp.StatusCode = status
	resp.Status = strconv.Itoa(status) + " " + http.StatusText(status)
	resp.Header.Del("Content-Encoding")
	replaceBody(resp, body)
	return nil
}

func (g *Gateway) envelope(resp *http.Response, fw forward) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxTransformBytes+1))
	if err != nil {
		_ = resp.Body.Close()
		return err
	}

	if len(raw) > MaxTransformBytes || !gjson.ValidBytes(raw) {
		resp.Body = &prefixedBody{Reader: io.MultiReader(bytes.NewReader(raw), resp.Body), closer: resp.Body}
		zerolog.Ctx(resp.Request.Context()).Debug().
			Str("service", fw.rc.TargetService).
			Msg("response passed through without envelope")
		return nil
	}
	_ = resp.Body.Close()

	cfg := g.runtime.Get()
	body, err := BuildEnvelope(StripFields(raw, cfg.Gateway.RemoveFields), fw.rc.APIVersion, g.now())
	if err != nil {
		return err
	}
	replaceBody(resp, body)
	return nil
}

func (g *Gateway) handleError(w http.ResponseWriter, r *http.Request, err error) {
	service := ""
	if fw, ok := forwardFrom(r.Context()); ok {
		service = fw.rc.TargetService
	}
	logger := zerolog.Ctx(r.Context())

	if r.Context().Err() != nil {
		logger.Debug().Err(err).Str("service", service).Msg("client went away")
		w.WriteHeader(StatusClientClosedRequest)
		return
	}

	if IsBodyTooLargeError(err) {
		WriteBodyTooLargeError(w)
		return
	}

	logger.Warn().Err(err).Str("service", service).Msg("proxy request failed")
	WriteDependencyError(w, service, err)
}

func (g *Gateway) serveDashboard(w http.ResponseWriter, r *http.Request, rc RequestContext) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "dashboard summary is read-only")
		return
	}

	summary, err := g.dashboard.Summary(r.Context())
	if err != nil {
		w.WriteHeader(StatusClientClosedRequest)
		return
	}

	raw, err := json.Marshal(summary)
	if err == nil {
		raw, err = BuildEnvelope(raw, rc.APIVersion, g.now())
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, CodeInternal, "failed to encode dashboard summary")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(raw)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// breakerTransport sends each upstream round trip through the target's breaker.
type breakerTransport struct {
	tracker *health.Tracker
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	fw, ok := forwardFrom(req.Context())
	if !ok {
		return nil, errors.New("proxy: request has no forward target")
	}

	cb := t.tracker.GetOrCreateCircuit(fw.rc.TargetService)
	timeout := cb.Timeout()
	if isUpgrade(req) {
		timeout = 0
	}

	start := time.Now()
	resp, err := cb.ExecuteWithTimeout(req.Context(), req, timeout)
	if timings := getRequestTimings(req.Context()); timings != nil {
		timings.Upstream = time.Since(start)
	}

	if err != nil {
		// Non-2xx answers still reach ModifyResponse so the body can be sanitized.
		if depErr, ok := health.AsDependencyError(err); ok && depErr.Kind == health.KindUpstream && resp != nil {
			return resp, nil
		}
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, err
	}
	return resp, nil
}

// prefixedBody replays already-read bytes before the rest of an upstream body.
type prefixedBody struct {
	io.Reader
	closer io.Closer
}

func (b *prefixedBody) Close() error {
	return b.closer.Close()
}

func replaceBody(resp *http.Response, body []byte) {
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Type", "application/json")
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	resp.Header.Del("Transfer-Encoding")
}

func isUpgrade(r *http.Request) bool {
	return r.Header.Get("Upgrade") != "" &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
