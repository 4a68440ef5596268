package health_test

import (
	"strings"
	"testing"

	"github.com/healthmesh/meshgate/internal/health"
	"github.com/stretchr/testify/assert"
)

func TestParseUpstreamError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		wantCode    string
		wantMessage string
		status      int
	}{
		{
			name:        "envelope with code and message on 4xx",
			status:      404,
			body:        `{"success":false,"error":{"code":"ORDER_NOT_FOUND","message":"order 12 not found"}}`,
			wantCode:    "ORDER_NOT_FOUND",
			wantMessage: "order 12 not found",
		},
		{
			name:     "flat code",
			status:   409,
			body:     `{"code":"DUPLICATE_ORDER"}`,
			wantCode: "DUPLICATE_ORDER",
		},
		{
			name:        "reason field",
			status:      401,
			body:        `{"valid":false,"reason":"token expired"}`,
			wantMessage: "token expired",
		},
		{
			name:     "5xx never shares the message",
			status:   500,
			body:     `{"error":{"code":"DB_DOWN","message":"connection to db-3 refused"}}`,
			wantCode: "DB_DOWN",
		},
		{
			name:        "lowercase code is not shareable",
			status:      400,
			body:        `{"error":{"code":"bad input","message":"x"}}`,
			wantMessage: "x",
		},
		{
			name:     "multi-line message is dropped",
			status:   400,
			body:     `{"error":{"code":"VALIDATION_FAILED","message":"line1\nat handler.js:12"}}`,
			wantCode: "VALIDATION_FAILED",
		},
		{
			name:   "not json",
			status: 502,
			body:   `<html>Bad Gateway</html>`,
		},
		{
			name:   "empty body",
			status: 503,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			se := health.ParseUpstreamError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, tt.wantCode, se.Code)
			assert.Equal(t, tt.wantMessage, se.Message)
		})
	}
}

func TestParseUpstreamErrorDropsLongMessages(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", health.MaxSharedMessageLen+1)
	se := health.ParseUpstreamError(422, []byte(`{"message":"`+long+`"}`))
	assert.Empty(t, se.Message)
}

func TestIsShareableCode(t *testing.T) {
	t.Parallel()

	assert.True(t, health.IsShareableCode("NOT_FOUND"))
	assert.True(t, health.IsShareableCode("E2"))
	assert.False(t, health.IsShareableCode("E"))
	assert.False(t, health.IsShareableCode("2FA_REQUIRED"))
	assert.False(t, health.IsShareableCode("not_found"))
	assert.False(t, health.IsShareableCode(strings.Repeat("A", 65)))
}
