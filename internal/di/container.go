// Package di provides dependency injection configuration for the Shelfmark server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/shelfmark/shelfmark-server/internal/api"
	"github.com/shelfmark/shelfmark-server/internal/auth"
	"github.com/shelfmark/shelfmark-server/internal/config"
	"github.com/shelfmark/shelfmark-server/internal/di/providers"
	"github.com/shelfmark/shelfmark-server/internal/logger"
	"github.com/shelfmark/shelfmark-server/internal/media/images"
	"github.com/shelfmark/shelfmark-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)
	do.Provide(injector, providers.ProvideAuthKey)

	// Database layer
	do.Provide(injector, providers.ProvideStore)

	// Storage layer
	do.Provide(injector, providers.ProvideImageStorage)
	do.Provide(injector, providers.ProvideCleanupQueue)
	do.Provide(injector, providers.ProvideBookCache)

	// Search layer
	do.Provide(injector, providers.ProvideSearchIndex)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenIssuer)
	do.Provide(injector, providers.ProvideAuthRateLimiter)

	// Business services
	do.Provide(injector, providers.ProvideAuthService)
	do.Provide(injector, providers.ProvideCatalogService)

	// Server
	do.Provide(injector, providers.ProvideAPIServer)
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services in dependency order and starts the
// HTTP server. The first provider error is returned.
func Bootstrap(injector *do.RootScope) error {
	steps := []func(do.Injector) error{
		// Core services
		invoke[*config.Config],
		invoke[*logger.Logger],
		invoke[providers.AuthKey],
		invoke[*providers.StoreHandle],
		invoke[*images.Storage],
		invoke[*providers.CleanupQueueHandle],
		invoke[*providers.BookCacheHandle],
		invoke[*providers.SearchIndexHandle],
		invoke[auth.TokenIssuer],
		invoke[*providers.RateLimiterHandle],

		// Business services
		invoke[*service.AuthService],
		invoke[*service.CatalogService],

		// Server
		invoke[*api.Server],
		invoke[*providers.HTTPServerHandle],
	}

	for _, step := range steps {
		if err := step(injector); err != nil {
			return err
		}
	}

	// Trigger search reindex if needed
	providers.TriggerSearchReindexIfNeeded(injector)

	return nil
}

func invoke[T any](i do.Injector) error {
	_, err := do.Invoke[T](i)
	return err
}
