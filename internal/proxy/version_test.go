package proxy_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/healthmesh/meshgate/internal/config"
	"github.com/healthmesh/meshgate/internal/proxy"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestParseAPIPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want proxy.APIPath
		ok   bool
	}{
		{"/api/v1/lab/orders/7", proxy.APIPath{Version: "v1", Segment: "lab", Rest: "/orders/7"}, true},
		{"/api/v2/lab", proxy.APIPath{Version: "v2", Segment: "lab"}, true},
		{"/api/v2/lab/", proxy.APIPath{Version: "v2", Segment: "lab", Rest: "/"}, true},
		{"/api/lab/orders", proxy.APIPath{Segment: "lab", Rest: "/orders"}, true},
		{"/api/version/x", proxy.APIPath{Segment: "version", Rest: "/x"}, true},
		{"/api/v1/", proxy.APIPath{}, false},
		{"/api/", proxy.APIPath{}, false},
		{"/health", proxy.APIPath{}, false},
	}

	for _, tt := range tests {
		got, ok := proxy.ParseAPIPath(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestDetectVersion(t *testing.T) {
	t.Parallel()

	gw := &config.GatewayConfig{}
	tests := []struct {
		name       string
		path       string
		header     string
		accept     string
		want       string
		wantSource proxy.VersionSource
	}{
		{"path wins", "/api/v2/lab", "3", "application/vnd.x.v4+json", "v2", proxy.VersionFromPath},
		{"header", "/api/lab", "2", "", "v2", proxy.VersionFromHeader},
		{"header with v", "/api/lab", " v3 ", "", "v3", proxy.VersionFromHeader},
		{"malformed header falls through", "/api/lab", "latest", "application/vnd.acme.v2+json", "v2", proxy.VersionFromAccept},
		{"accept list", "/api/lab", "", "text/html, application/vnd.acme.V3+JSON;q=0.9", "v3", proxy.VersionFromAccept},
		{"plain json accept", "/api/lab", "", "application/json", "v1", proxy.VersionFromDefault},
		{"default", "/api/lab", "", "", "v1", proxy.VersionFromDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			if tt.header != "" {
				req.Header.Set(proxy.HeaderAPIVersion, tt.header)
			}
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			p, ok := proxy.ParseAPIPath(tt.path)
			assert.True(t, ok)

			version, source := proxy.DetectVersion(req, p, gw)
			assert.Equal(t, tt.want, version)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestDetectVersionVendorPrefix(t *testing.T) {
	t.Parallel()

	gw := &config.GatewayConfig{VendorPrefix: "application/vnd.healthmesh", DefaultVersion: "v2"}
	p, _ := proxy.ParseAPIPath("/api/lab")

	req := httptest.NewRequest(http.MethodGet, "/api/lab", http.NoBody)
	req.Header.Set("Accept", "application/vnd.other.v3+json")
	version, source := proxy.DetectVersion(req, p, gw)
	assert.Equal(t, "v2", version)
	assert.Equal(t, proxy.VersionFromDefault, source)

	req.Header.Set("Accept", "application/vnd.healthmesh.v3+json")
	version, source = proxy.DetectVersion(req, p, gw)
	assert.Equal(t, "v3", version)
	assert.Equal(t, proxy.VersionFromAccept, source)
}

func TestDetectVersionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	gw := &config.GatewayConfig{}

	properties.Property("path version beats every header", prop.ForAll(
		func(pathN, headerN uint16) bool {
			path := fmt.Sprintf("/api/v%d/lab/x", pathN)
			req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
			req.Header.Set(proxy.HeaderAPIVersion, fmt.Sprint(headerN))
			req.Header.Set("Accept", fmt.Sprintf("application/vnd.acme.v%d+json", headerN))
			p, _ := proxy.ParseAPIPath(path)
			version, source := proxy.DetectVersion(req, p, gw)
			return version == fmt.Sprintf("v%d", pathN) && source == proxy.VersionFromPath
		},
		gen.UInt16(), gen.UInt16(),
	))

	properties.Property("numeric header is normalized", prop.ForAll(
		func(n uint16, prefixed bool) bool {
			value := fmt.Sprint(n)
			if prefixed {
				value = "v" + value
			}
			req := httptest.NewRequest(http.MethodGet, "/api/lab", http.NoBody)
			req.Header.Set(proxy.HeaderAPIVersion, value)
			p, _ := proxy.ParseAPIPath("/api/lab")
			version, source := proxy.DetectVersion(req, p, gw)
			return version == fmt.Sprintf("v%d", n) && source == proxy.VersionFromHeader
		},
		gen.UInt16(), gen.Bool(),
	))

	properties.Property("rest is preserved", prop.ForAll(
		func(segment, rest string) bool {
			p, ok := proxy.ParseAPIPath("/api/v1/" + segment + "/" + rest)
			return ok && p.Segment == segment && p.Rest == "/"+rest
		},
		gen.Identifier(), gen.AlphaString(),
	))

	properties.TestingRun(t)
}
