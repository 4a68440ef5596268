package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/healthmesh/meshgate/internal/auth"
	"github.com/healthmesh/meshgate/internal/cache"
	"github.com/healthmesh/meshgate/internal/client"
	"github.com/healthmesh/meshgate/internal/health"
	"github.com/rs/zerolog"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAuthTypes verifies auth type constants are defined.
func TestAuthTypes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "api_key", string(auth.TypeAPIKey))
	assert.Equal(t, "bearer", string(auth.TypeBearer))
	assert.Equal(t, "none", string(auth.TypeNone))
}

func TestAPIKeyAuthenticator_Validate(t *testing.T) {
	t.Parallel()

	authenticator := auth.NewAPIKeyAuthenticator(auth.HeaderAdminKey, "admin-key-12345")

	tests := []struct {
		name       string
		key        string
		wantErrMsg string
		wantValid  bool
	}{
		{name: "valid key", key: "admin-key-12345", wantValid: true},
		{name: "invalid key", key: "wrong-key", wantErrMsg: "invalid X-Admin-Key"},
		{name: "missing key", wantErrMsg: "missing X-Admin-Key header"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/health/services", http.NoBody)
			if tt.key != "" {
				req.Header.Set("x-admin-key", tt.key)
			}

			result := authenticator.Validate(req)
			assert.Equal(t, tt.wantValid, result.Valid)
			assert.Equal(t, auth.TypeAPIKey, result.Type)
			assert.Equal(t, tt.wantErrMsg, result.Error)
			assert.False(t, result.Unavailable())
		})
	}
}

func TestAPIKeyAuthenticator_ValidateResult(t *testing.T) {
	t.Parallel()

	authenticator := auth.NewAPIKeyAuthenticator(auth.HeaderAPIKey, "device-key")
	assert.Equal(t, "X-Api-Key", authenticator.Header())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", http.NoBody)
	req.Header.Set(auth.HeaderAPIKey, "nope")

	res := authenticator.ValidateResult(req)
	require.True(t, res.IsError())

	var vErr *auth.ValidationError
	require.ErrorAs(t, res.Error(), &vErr)
	assert.Equal(t, auth.TypeAPIKey, vErr.Type)
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		header     string
		wantToken  string
		wantReason string
	}{
		{name: "valid", header: "Bearer abc.def", wantToken: "abc.def"},
		{name: "case insensitive scheme", header: "bearer tok", wantToken: "tok"},
		{name: "missing", wantReason: "missing authorization header"},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantReason: "invalid authorization scheme"},
		{name: "no separator", header: "Bearertoken", wantReason: "invalid authorization scheme"},
		{name: "empty token", header: "Bearer    ", wantReason: "empty bearer token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			token, reason := auth.BearerToken(req)
			assert.Equal(t, tt.wantToken, token)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

type fakeValidator struct {
	err     error
	verdict map[string]client.TokenValidation
	calls   atomic.Int32
}

func (f *fakeValidator) ValidateToken(_ context.Context, token string) (client.TokenValidation, error) {
	f.calls.Add(1)
	if f.err != nil {
		return client.TokenValidation{}, f.err
	}
	if v, ok := f.verdict[token]; ok {
		return v, nil
	}
	return client.TokenValidation{Reason: client.ReasonInvalidToken}, nil
}

func bearerRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/lab/orders", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestDelegatedAuthenticator(t *testing.T) {
	t.Parallel()

	validator := &fakeValidator{verdict: map[string]client.TokenValidation{
		"good": {Valid: true, User: mo.Some(client.User{ID: "u-7", Roles: []string{"physician"}})},
	}}
	authenticator := auth.NewDelegatedAuthenticator(validator, nil, 0)
	assert.Equal(t, auth.TypeBearer, authenticator.Type())

	result := authenticator.Validate(bearerRequest("good"))
	require.True(t, result.Valid)
	assert.Equal(t, "u-7", result.User.MustGet().ID)

	result = authenticator.Validate(bearerRequest("bad"))
	assert.False(t, result.Valid)
	assert.False(t, result.Unavailable())
	assert.Equal(t, client.ReasonInvalidToken, result.Error)

	result = authenticator.Validate(httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	assert.False(t, result.Valid)
	assert.Equal(t, "missing authorization header", result.Error)
	assert.Equal(t, int32(2), validator.calls.Load(), "missing header never reaches the auth service")
}

func TestDelegatedAuthenticatorUnavailable(t *testing.T) {
	t.Parallel()

	down := health.Unavailable("client:auth", health.ErrCircuitOpen)
	authenticator := auth.NewDelegatedAuthenticator(&fakeValidator{err: down}, nil, 0)

	result := authenticator.Validate(bearerRequest("good"))
	assert.False(t, result.Valid)
	assert.True(t, result.Unavailable())
	assert.True(t, errors.Is(result.Err, health.ErrUpstreamUnavailable))
	assert.Equal(t, auth.ReasonUnavailable, result.Error)
}

func TestDelegatedAuthenticatorCachesVerdicts(t *testing.T) {
	t.Parallel()

	backend, err := cache.New(&cache.Config{Mode: cache.ModeSingle}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	validator := &fakeValidator{verdict: map[string]client.TokenValidation{
		"good": {Valid: true, User: mo.Some(client.User{ID: "u-1"})},
	}}
	authenticator := auth.NewDelegatedAuthenticator(validator, backend, time.Minute)

	for i := 0; i < 3; i++ {
		result := authenticator.Validate(bearerRequest("good"))
		require.True(t, result.Valid)
		assert.Equal(t, "u-1", result.User.MustGet().ID)
	}
	for i := 0; i < 3; i++ {
		assert.False(t, authenticator.Validate(bearerRequest("bad")).Valid)
	}

	assert.Equal(t, int32(2), validator.calls.Load())
}

func TestDelegatedAuthenticatorDoesNotCacheOutages(t *testing.T) {
	t.Parallel()

	backend, err := cache.New(&cache.Config{Mode: cache.ModeSingle}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	validator := &fakeValidator{err: errors.New("connection refused")}
	authenticator := auth.NewDelegatedAuthenticator(validator, backend, time.Minute)

	assert.True(t, authenticator.Validate(bearerRequest("good")).Unavailable())
	assert.True(t, authenticator.Validate(bearerRequest("good")).Unavailable())
	assert.Equal(t, int32(2), validator.calls.Load())
}
