package auth

import (
	"net/http"

	"github.com/samber/lo"
	"github.com/samber/mo"
)

// ChainAuthenticator tries multiple authenticators in order.
// The first authenticator to succeed is used.
type ChainAuthenticator struct {
	authenticators []Authenticator
}

// NewChainAuthenticator creates a chain of authenticators.
// Authenticators are tried in order; first success wins.
func NewChainAuthenticator(authenticators ...Authenticator) *ChainAuthenticator {
	return &ChainAuthenticator{
		authenticators: authenticators,
	}
}

// Validate tries each authenticator in order until one succeeds.
//
// When none succeeds, an unavailable result wins over a rejection so that a
// caller with credentials is told to retry instead of being refused. Otherwise
// the last rejection is returned.
func (c *ChainAuthenticator) Validate(r *http.Request) Result {
	if len(c.authenticators) == 0 {
		return Result{
			Type:  TypeNone,
			Error: "no authentication configured",
		}
	}

	var unavailable mo.Option[Result]
	result := lo.Reduce(c.authenticators, func(acc Result, auth Authenticator, _ int) Result {
		if acc.Valid {
			return acc
		}
		res := auth.Validate(r)
		if res.Unavailable() && unavailable.IsAbsent() {
			unavailable = mo.Some(res)
		}
		return res
	}, Result{Type: TypeNone})

	if result.Valid {
		return result
	}
	if res, ok := unavailable.Get(); ok {
		return res
	}
	return Result{
		Type:  TypeNone,
		Error: result.Error,
	}
}

// Type returns TypeNone since this is a meta-authenticator.
func (c *ChainAuthenticator) Type() Type {
	return TypeNone
}

// ValidateResult tries each authenticator and returns the result as mo.Result[Result].
func (c *ChainAuthenticator) ValidateResult(r *http.Request) mo.Result[Result] {
	result := c.Validate(r)
	if result.Valid {
		return mo.Ok(result)
	}
	return mo.Err[Result](NewValidationError(result.Type, result.Error))
}

// ValidationError wraps authentication failure details.
type ValidationError struct {
	Type    Type
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new ValidationError with the given type and message.
func NewValidationError(authType Type, message string) *ValidationError {
	return &ValidationError{
		Type:    authType,
		Message: message,
	}
}
