package di

import (
	"github.com/samber/do/v2"

	"github.com/healthmesh/meshgate/internal/auth"
)

// AuthService wraps the bearer token authenticator.
type AuthService struct {
	Authenticator *auth.DelegatedAuthenticator
}

// NewAuth creates the authenticator that delegates bearer tokens to the auth
// service, caching verdicts for auth.cache_ttl_ms.
func NewAuth(i do.Injector) (*AuthService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	clients := do.MustInvoke[*ClientsService](i)
	cacheSvc := do.MustInvoke[*CacheService](i)

	authCfg := cfgSvc.Get().Auth
	return &AuthService{
		Authenticator: auth.NewDelegatedAuthenticator(clients.Auth, cacheSvc.Cache, authCfg.GetCacheTTL()),
	}, nil
}
