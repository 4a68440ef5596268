// Package di registers meshgate's services with a samber/do container.
package di

import "github.com/samber/do/v2"

// RegisterSingletons registers all service providers as singletons.
// Services are registered in dependency order:
// 1. Config (no dependencies)
// 2. Logger (depends on Config)
// 3. Cache (depends on Config, Logger)
// 4. Registry (depends on Config, Logger, Cache)
// 5. HealthTracker (depends on Config, Logger)
// 6. Clients (depends on Config, Logger, Registry, HealthTracker)
// 7. Dashboard (depends on Clients, Logger)
// 8. Auth (depends on Config, Clients, Cache)
// 9. RateLimit (depends on Config)
// 10. Concurrency (depends on Config) - global request limiter
// 11. Handler (depends on all above services)
// 12. Server (depends on Handler, Config).
func RegisterSingletons(i do.Injector) {
	do.Provide(i, NewConfig)
	do.Provide(i, NewLogger)
	do.Provide(i, NewCache)
	do.Provide(i, NewRegistry)
	do.Provide(i, NewHealthTracker)
	do.Provide(i, NewClients)
	do.Provide(i, NewDashboard)
	do.Provide(i, NewAuth)
	do.Provide(i, NewRateLimit)
	do.Provide(i, NewConcurrencyService)
	do.Provide(i, NewProxyHandler)
	do.Provide(i, NewHTTPServer)
}
