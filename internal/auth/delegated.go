package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/healthmesh/meshgate/internal/cache"
	"github.com/healthmesh/meshgate/internal/client"
	"github.com/rs/zerolog"
	"github.com/samber/mo"
)

// TokenValidator asks the auth service for a verdict. *client.AuthClient implements it.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (client.TokenValidation, error)
}

// ReasonUnavailable is reported when the auth service gave no verdict.
const ReasonUnavailable = "authentication service unavailable"

type cachedVerdict struct {
	User   *client.User `json:"user,omitempty"`
	Reason string       `json:"reason,omitempty"`
	Valid  bool         `json:"valid"`
}

// DelegatedAuthenticator validates Authorization: Bearer tokens through the
// auth service and caches verdicts by token hash.
type DelegatedAuthenticator struct {
	validator TokenValidator
	verdicts  cache.Cache
	ttl       time.Duration
}

// NewDelegatedAuthenticator creates a delegating authenticator. A nil cache or
// a ttl <= 0 asks the auth service on every request.
func NewDelegatedAuthenticator(validator TokenValidator, verdicts cache.Cache, ttl time.Duration) *DelegatedAuthenticator {
	if verdicts == nil || ttl <= 0 {
		verdicts = cache.NewNoop()
	}
	return &DelegatedAuthenticator{
		validator: validator,
		verdicts:  cache.NewNamespace(verdicts, "auth"),
		ttl:       ttl,
	}
}

// Validate extracts the bearer token and returns the auth service verdict.
func (a *DelegatedAuthenticator) Validate(r *http.Request) Result {
	token, reason := BearerToken(r)
	if reason != "" {
		return Result{Type: TypeBearer, Error: reason}
	}

	ctx := r.Context()
	key := tokenKey(token)

	if raw, err := a.verdicts.Get(ctx, key); err == nil {
		var v cachedVerdict
		if json.Unmarshal(raw, &v) == nil {
			return v.result()
		}
	}

	verdict, err := a.validator.ValidateToken(ctx, token)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("token validation unavailable")
		return Result{Type: TypeBearer, Error: ReasonUnavailable, Err: err}
	}

	v := cachedVerdict{Valid: verdict.Valid, Reason: verdict.Reason}
	if user, ok := verdict.User.Get(); ok {
		v.User = &user
	}
	if raw, err := json.Marshal(v); err == nil {
		_ = a.verdicts.SetWithTTL(ctx, key, raw, a.ttl)
	}
	return v.result()
}

// Type returns the authentication type (bearer).
func (a *DelegatedAuthenticator) Type() Type {
	return TypeBearer
}

func (v cachedVerdict) result() Result {
	if !v.Valid {
		return Result{Type: TypeBearer, Error: v.Reason}
	}
	user := mo.None[client.User]()
	if v.User != nil {
		user = mo.Some(*v.User)
	}
	return Result{Type: TypeBearer, Valid: true, User: user}
}

// BearerToken extracts the token from an Authorization: Bearer header.
// reason is non-empty when no usable token is present.
func BearerToken(r *http.Request) (token, reason string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "missing authorization header"
	}

	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:6], "bearer") || authHeader[6] != ' ' {
		return "", "invalid authorization scheme"
	}

	token = strings.TrimSpace(authHeader[7:])
	if token == "" {
		return "", "empty bearer token"
	}
	return token, ""
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
