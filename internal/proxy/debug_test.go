package proxy_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/healthmesh/meshgate/internal/config"
	"github.com/healthmesh/meshgate/internal/proxy"
	"github.com/rs/zerolog"
)

func debugContext(buf *bytes.Buffer, level zerolog.Level) context.Context {
	logger := zerolog.New(buf).Level(level)
	return logger.WithContext(context.Background())
}

func TestLogRequestDetailsDisabledByDefault(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := debugContext(&buf, zerolog.DebugLevel)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/lab/orders", strings.NewReader(`{"test":"cbc"}`))
	proxy.LogRequestDetails(ctx, req, config.DebugOptions{})

	if buf.Len() > 0 {
		t.Errorf("expected no log output when LogRequestBody disabled, got: %s", buf.String())
	}
}

func TestLogRequestDetailsRedactsSensitiveData(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := debugContext(&buf, zerolog.DebugLevel)

	body := `{"api_key":"k-123","patientId":"p-9","password":"hunter2","ssn":"123-45-6789"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(body))
	proxy.LogRequestDetails(ctx, req, config.DebugOptions{LogRequestBody: true, MaxBodyLogSize: 1000})

	output := buf.String()
	for _, secret := range []string{"k-123", "hunter2", "123-45-6789"} {
		if strings.Contains(output, secret) {
			t.Errorf("expected %q to be redacted: %s", secret, output)
		}
	}
	if !strings.Contains(output, "REDACTED") {
		t.Error("expected REDACTED placeholder in output")
	}
	if !strings.Contains(output, "p-9") {
		t.Error("expected non-sensitive fields to be kept")
	}
}

func TestLogRequestDetailsRestoresBody(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := debugContext(&buf, zerolog.DebugLevel)

	body := `{"note":"` + strings.Repeat("a", 300) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/lab/orders", strings.NewReader(body))
	proxy.LogRequestDetails(ctx, req, config.DebugOptions{LogRequestBody: true, MaxBodyLogSize: 50})

	got, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("read restored body: %v", err)
	}
	if string(got) != body {
		t.Errorf("body not restored intact: got %d bytes, want %d", len(got), len(body))
	}
}

func TestLogRequestDetailsTruncatesLargeBody(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := debugContext(&buf, zerolog.DebugLevel)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/lab/orders", strings.NewReader(strings.Repeat("x", 5000)))
	proxy.LogRequestDetails(ctx, req, config.DebugOptions{LogRequestBody: true, MaxBodyLogSize: 100})

	if n := strings.Count(buf.String(), "x"); n > 150 {
		t.Errorf("expected truncated body, got %d x's", n)
	}
}

func TestLogRequestDetailsSkipsAtHigherLogLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := debugContext(&buf, zerolog.InfoLevel)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/lab/orders", strings.NewReader(`{"a":1}`))
	proxy.LogRequestDetails(ctx, req, config.DebugOptions{LogRequestBody: true})

	if buf.Len() > 0 {
		t.Errorf("expected no output at info level, got: %s", buf.String())
	}
}

func TestLogRequestDetailsHandlesNilBody(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := debugContext(&buf, zerolog.DebugLevel)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lab/orders", http.NoBody)
	req.Body = nil
	proxy.LogRequestDetails(ctx, req, config.DebugOptions{LogRequestBody: true})

	if buf.Len() > 0 {
		t.Errorf("expected no output without a body, got: %s", buf.String())
	}
}

func TestLogResponseDetailsLogsSelectedHeaders(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := debugContext(&buf, zerolog.DebugLevel)

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Retry-After", "3")
	headers.Set("Set-Cookie", "session=abc")

	proxy.LogResponseDetails(ctx, "billing", headers, http.StatusTooManyRequests,
		config.DebugOptions{LogResponseHeaders: true})

	output := buf.String()
	for _, want := range []string{`"service":"billing"`, `"status":429`, `"Retry-After":"3"`, "application/json"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output: %s", want, output)
		}
	}
	if strings.Contains(output, "session=abc") {
		t.Errorf("unlisted headers must not be logged: %s", output)
	}
}

func TestLogResponseDetailsSkipsWhenDisabled(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := debugContext(&buf, zerolog.DebugLevel)

	proxy.LogResponseDetails(ctx, "lab", http.Header{"Content-Type": {"text/plain"}}, http.StatusOK, config.DebugOptions{})

	if buf.Len() > 0 {
		t.Errorf("expected no output, got: %s", buf.String())
	}
}

func TestDebugOptionsGetMaxBodyLogSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		size int
		want int
	}{
		{"zero uses default", 0, config.DefaultMaxBodyLogSize},
		{"negative uses default", -5, config.DefaultMaxBodyLogSize},
		{"explicit", 256, 256},
	}
	for _, tt := range tests {
		opts := config.DebugOptions{MaxBodyLogSize: tt.size}
		if got := opts.GetMaxBodyLogSize(); got != tt.want {
			t.Errorf("%s: GetMaxBodyLogSize() = %d, want %d", tt.name, got, tt.want)
		}
	}
}
