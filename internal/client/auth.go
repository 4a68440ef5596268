package client

import (
	"context"
	"errors"
	"net/http"

	"github.com/healthmesh/meshgate/internal/health"
	"github.com/rs/zerolog"
	"github.com/samber/mo"
)

// ReasonInvalidToken is reported when the auth service rejects a token without saying why.
const ReasonInvalidToken = "invalid token"

// User is the identity the auth service attaches to a valid token.
type User struct {
	ID    string   `json:"id"`
	Email string   `json:"email,omitempty"`
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// TokenValidation is the auth service verdict for one token.
type TokenValidation struct {
	User   mo.Option[User]
	Reason string
	Valid  bool
}

type validateTokenRequest struct {
	Token string `json:"token"`
}

type validateTokenResponse struct {
	User   *User  `json:"user"`
	Reason string `json:"reason"`
	Valid  bool   `json:"valid"`
}

// AuthClient delegates token verification to the auth service.
type AuthClient struct {
	*Base
}

// NewAuthClient creates an auth client.
func NewAuthClient(resolver Resolver, cfg health.BreakerConfig, logger zerolog.Logger, opts ...Option) *AuthClient {
	return &AuthClient{Base: NewBase(AuthService, resolver, cfg, logger, opts...)}
}

// ValidateToken asks the auth service whether token is valid.
//
// A 401 or 403 answer is a verdict, not a failure: it returns an invalid
// TokenValidation and a nil error. Any other failure is a *health.DependencyError.
func (c *AuthClient) ValidateToken(ctx context.Context, token string) (TokenValidation, error) {
	if token == "" {
		return TokenValidation{Reason: "missing token"}, nil
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	var resp validateTokenResponse
	err := c.DoRequest(ctx, Request{
		Method: http.MethodPost,
		Path:   authValidateTokenPath,
		Body:   validateTokenRequest{Token: token},
		Header: header,
	}, &resp)
	if err != nil {
		if depErr, ok := health.AsDependencyError(err); ok && depErr.Kind == health.KindUpstream &&
			(depErr.StatusCode == http.StatusUnauthorized || depErr.StatusCode == http.StatusForbidden) {
			return TokenValidation{Reason: rejectionReason(depErr)}, nil
		}
		return TokenValidation{}, err
	}

	result := TokenValidation{Valid: resp.Valid, Reason: resp.Reason, User: mo.None[User]()}
	if resp.Valid && resp.User != nil {
		result.User = mo.Some(*resp.User)
	}
	if !resp.Valid && result.Reason == "" {
		result.Reason = ReasonInvalidToken
	}
	return result, nil
}

func rejectionReason(depErr *health.DependencyError) string {
	var se *health.StatusError
	if errors.As(depErr, &se) && se.Message != "" {
		return se.Message
	}
	return ReasonInvalidToken
}
