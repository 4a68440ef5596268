package di

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/healthmesh/meshgate/internal/config"
	"github.com/healthmesh/meshgate/internal/ratelimit"
)

// RateLimitService wraps the per-client limiter store.
type RateLimitService struct {
	Store *ratelimit.Store
}

// NewRateLimit creates the limiter store. The store exists even when rate
// limiting is disabled so a reload can switch it on.
func NewRateLimit(i do.Injector) (*RateLimitService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)

	store, err := ratelimit.NewStore(cfgSvc.Get().RateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit store: %w", err)
	}
	svc := &RateLimitService{Store: store}

	cfgSvc.OnReload(func(newCfg *config.Config) error {
		rl := newCfg.RateLimit
		store.SetLimit(rl.GetRequestsPerMinute(), rl.GetBurst())
		log.Info().
			Bool("enabled", rl.Enabled).
			Int("requests_per_minute", rl.GetRequestsPerMinute()).
			Int("burst", rl.GetBurst()).
			Msg("rate limit updated via hot-reload")
		return nil
	})

	return svc, nil
}
