package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/shelfmark/shelfmark-server/internal/auth"
	"github.com/shelfmark/shelfmark-server/internal/cache"
	"github.com/shelfmark/shelfmark-server/internal/config"
	"github.com/shelfmark/shelfmark-server/internal/logger"
	"github.com/shelfmark/shelfmark-server/internal/ratelimit"
	"github.com/shelfmark/shelfmark-server/internal/service"
)

// redisConnectTimeout bounds the startup ping to Redis.
const redisConnectTimeout = 5 * time.Second

// BookCacheHandle wraps the book read cache with shutdown capability.
type BookCacheHandle struct {
	cache.Cache
}

// Shutdown implements do.Shutdownable.
func (h *BookCacheHandle) Shutdown() error {
	return h.Close()
}

// ProvideBookCache provides the read cache for book lists: Redis when an
// address is configured, in-process memory otherwise. A zero TTL disables
// caching. An unreachable Redis degrades to the memory cache.
func ProvideBookCache(i do.Injector) (*BookCacheHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Cache.TTL <= 0 {
		log.Info("Book cache disabled")
		return &BookCacheHandle{Cache: cache.Noop{}}, nil
	}

	if cfg.Cache.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
		defer cancel()

		redisCache, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			TTL:      cfg.Cache.TTL,
		})
		if err == nil {
			log.Info("Book cache using Redis", "addr", cfg.Cache.RedisAddr, "ttl", cfg.Cache.TTL)
			return &BookCacheHandle{Cache: redisCache}, nil
		}
		log.Warn("Redis unavailable, falling back to memory cache",
			"addr", cfg.Cache.RedisAddr,
			"error", err,
		)
	}

	log.Info("Book cache in memory", "ttl", cfg.Cache.TTL)
	return &BookCacheHandle{Cache: cache.NewMemory(cfg.Cache.TTL)}, nil
}

// ProvideAuthService provides the authentication service.
func ProvideAuthService(i do.Injector) (*service.AuthService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tokens := do.MustInvoke[auth.TokenIssuer](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAuthService(storeHandle.Store, tokens, cfg.Auth.BcryptCost, log.Logger), nil
}

// ProvideCatalogService provides the book catalog service.
func ProvideCatalogService(i do.Injector) (*service.CatalogService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	queueHandle := do.MustInvoke[*CleanupQueueHandle](i)
	cacheHandle := do.MustInvoke[*BookCacheHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewCatalogService(
		storeHandle.Store,
		queueHandle.Queue,
		cacheHandle.Cache,
		indexHandle.SearchIndex,
		log.Logger,
	), nil
}

// RateLimiterHandle wraps the auth rate limiter with shutdown capability.
type RateLimiterHandle struct {
	*ratelimit.KeyedRateLimiter
}

// ProvideAuthRateLimiter provides the per-IP limiter for signup and login.
func ProvideAuthRateLimiter(i do.Injector) (*RateLimiterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)

	limiter := ratelimit.New(float64(cfg.Auth.RateLimitPerMinute), cfg.Auth.RateLimitBurst)
	return &RateLimiterHandle{KeyedRateLimiter: limiter}, nil
}
