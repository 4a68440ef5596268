package proxy

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/healthmesh/meshgate/internal/config"
)

// APIPrefix is the path prefix of every gateway route.
const APIPrefix = "/api/"

// VersionSource records where the API version of a request came from.
type VersionSource string

// Version sources, in precedence order.
const (
	VersionFromPath    VersionSource = "path"
	VersionFromHeader  VersionSource = "header"
	VersionFromAccept  VersionSource = "accept"
	VersionFromDefault VersionSource = "default"
)

var (
	pathVersion   = regexp.MustCompile(`^v[0-9]+$`)
	headerVersion = regexp.MustCompile(`^v?([0-9]+)$`)
	acceptVersion = regexp.MustCompile(`^(application/vnd\.[A-Za-z0-9][A-Za-z0-9._-]*?)\.v([0-9]+)\+json$`)
)

// APIPath is a parsed gateway path.
type APIPath struct {
	// Version is the v{n} path segment, empty when the path names none.
	Version string
	// Segment selects the target service.
	Segment string
	// Rest is forwarded to the target, always empty or starting with "/".
	Rest string
}

// ParseAPIPath splits /api/v{n}/<segment>/rest and /api/<segment>/rest.
// ok is false for paths outside /api/ or without a service segment.
func ParseAPIPath(path string) (APIPath, bool) {
	if !strings.HasPrefix(path, APIPrefix) {
		return APIPath{}, false
	}

	var p APIPath
	rest := path[len(APIPrefix):]

	first, tail, _ := strings.Cut(rest, "/")
	if pathVersion.MatchString(first) {
		p.Version = first
		rest = tail
	}

	segment, tail, found := strings.Cut(rest, "/")
	if segment == "" {
		return APIPath{}, false
	}
	p.Segment = segment
	if found {
		p.Rest = "/" + tail
	}
	return p, true
}

// DetectVersion resolves the API version of a request. First match wins:
// path segment, X-API-Version header, Accept vendor media type, default.
// Malformed header and Accept values are ignored.
func DetectVersion(r *http.Request, p APIPath, gw *config.GatewayConfig) (string, VersionSource) {
	if p.Version != "" {
		return p.Version, VersionFromPath
	}

	if m := headerVersion.FindStringSubmatch(strings.TrimSpace(r.Header.Get(HeaderAPIVersion))); m != nil {
		return "v" + m[1], VersionFromHeader
	}

	if v, ok := acceptedVersion(r.Header.Values("Accept"), gw.VendorPrefix); ok {
		return v, VersionFromAccept
	}

	return gw.GetDefaultVersion(), VersionFromDefault
}

func acceptedVersion(values []string, vendorPrefix string) (string, bool) {
	for _, value := range values {
		for _, item := range strings.Split(value, ",") {
			mediaType, _, _ := strings.Cut(item, ";")
			m := acceptVersion.FindStringSubmatch(strings.ToLower(strings.TrimSpace(mediaType)))
			if m == nil {
				continue
			}
			if vendorPrefix != "" && m[1] != strings.ToLower(vendorPrefix) {
				continue
			}
			return "v" + m[2], true
		}
	}
	return "", false
}
