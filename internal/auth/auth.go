// Package auth authenticates gateway callers. Bearer tokens are delegated to
// the external auth service; API keys guard machine clients and admin endpoints.
package auth

import (
	"net/http"

	"github.com/healthmesh/meshgate/internal/client"
	"github.com/samber/mo"
)

// Type represents the authentication method used.
type Type string

const (
	// TypeAPIKey represents static API key header authentication.
	TypeAPIKey Type = "api_key"
	// TypeBearer represents Authorization: Bearer token authentication.
	TypeBearer Type = "bearer"
	// TypeNone represents no authentication or failed auth with no valid type.
	TypeNone Type = "none"
)

// Result contains the outcome of an authentication attempt.
type Result struct {
	// User is the identity behind a valid bearer token, when the auth service returned one.
	User mo.Option[client.User]
	// Err is set when no verdict could be obtained (auth service unavailable).
	Err error
	// Type indicates which authentication method was used (or attempted).
	Type Type
	// Error contains the rejection reason if authentication failed.
	Error string
	// Valid indicates whether authentication succeeded.
	Valid bool
}

// Unavailable reports whether the attempt failed for lack of a verdict rather
// than because the credentials were rejected.
func (r Result) Unavailable() bool {
	return !r.Valid && r.Err != nil
}

// Authenticator defines the interface for authentication mechanisms.
type Authenticator interface {
	// Validate checks the request for valid credentials.
	// Returns a Result with Valid=true if authentication succeeds.
	Validate(r *http.Request) Result

	// Type returns the authentication type this authenticator handles.
	Type() Type
}
