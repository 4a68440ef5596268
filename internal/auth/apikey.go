package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/healthmesh/meshgate/internal/client"
	"github.com/samber/mo"
)

// Header names for static keys.
const (
	HeaderAPIKey   = "X-API-Key"
	HeaderAdminKey = "X-Admin-Key"
)

// APIKeyAuthenticator validates a static key carried in one header.
// Uses constant-time comparison to prevent timing attacks.
type APIKeyAuthenticator struct {
	header       string
	expectedHash [32]byte
}

// NewAPIKeyAuthenticator creates an authenticator for header.
// The expected key is hashed at creation time; API keys are high-entropy
// secrets, so SHA-256 is sufficient.
func NewAPIKeyAuthenticator(header, expectedKey string) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{
		header: http.CanonicalHeaderKey(header),
		// #nosec G401 -- SHA-256 is appropriate for high-entropy API keys (not passwords)
		expectedHash: sha256.Sum256([]byte(expectedKey)),
	}
}

// Validate checks the header against the expected value.
func (a *APIKeyAuthenticator) Validate(r *http.Request) Result {
	providedKey := r.Header.Get(a.header)

	if providedKey == "" {
		return Result{
			Type:  TypeAPIKey,
			Error: "missing " + a.header + " header",
		}
	}

	// #nosec G401 -- SHA-256 is appropriate for high-entropy API keys (not passwords)
	providedHash := sha256.Sum256([]byte(providedKey))

	if subtle.ConstantTimeCompare(providedHash[:], a.expectedHash[:]) != 1 {
		return Result{
			Type:  TypeAPIKey,
			Error: "invalid " + a.header,
		}
	}

	return Result{
		Valid: true,
		Type:  TypeAPIKey,
		User:  mo.None[client.User](),
	}
}

// Type returns the authentication type (api_key).
func (a *APIKeyAuthenticator) Type() Type {
	return TypeAPIKey
}

// Header returns the header the key is read from.
func (a *APIKeyAuthenticator) Header() string {
	return a.header
}

// ValidateResult validates the header and returns mo.Result[Result].
func (a *APIKeyAuthenticator) ValidateResult(r *http.Request) mo.Result[Result] {
	result := a.Validate(r)
	if result.Valid {
		return mo.Ok(result)
	}
	return mo.Err[Result](NewValidationError(result.Type, result.Error))
}
