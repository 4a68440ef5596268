package di

import (
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/healthmesh/meshgate/internal/config"
	"github.com/healthmesh/meshgate/internal/proxy"
)

// ConcurrencyService wraps the concurrency limiter for DI.
type ConcurrencyService struct {
	Limiter *proxy.ConcurrencyLimiter
}

// NewConcurrencyService creates the concurrency limiter service.
// The limiter is initialized with the current config value and updated on hot-reload.
func NewConcurrencyService(i do.Injector) (*ConcurrencyService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)

	limiter := proxy.NewConcurrencyLimiter(int64(cfgSvc.Get().Server.MaxConcurrent))
	svc := &ConcurrencyService{Limiter: limiter}

	cfgSvc.OnReload(svc.applyConfig)

	return svc, nil
}

func (s *ConcurrencyService) applyConfig(newCfg *config.Config) error {
	if newCfg == nil {
		return nil
	}
	newLimit := int64(newCfg.Server.MaxConcurrent)
	oldLimit := s.Limiter.GetLimit()
	if newLimit != oldLimit {
		s.Limiter.SetLimit(newLimit)
		log.Info().
			Int64("old_limit", oldLimit).
			Int64("new_limit", newLimit).
			Msg("concurrency limit updated via hot-reload")
	}
	return nil
}
