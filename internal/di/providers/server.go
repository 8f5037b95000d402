package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/shelfmark/shelfmark-server/internal/api"
	"github.com/shelfmark/shelfmark-server/internal/config"
	"github.com/shelfmark/shelfmark-server/internal/logger"
	"github.com/shelfmark/shelfmark-server/internal/media/images"
	"github.com/shelfmark/shelfmark-server/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideAPIServer provides the HTTP handler with all routes registered.
func ProvideAPIServer(i do.Injector) (*api.Server, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	covers := do.MustInvoke[*images.Storage](i)
	queueHandle := do.MustInvoke[*CleanupQueueHandle](i)
	limiterHandle := do.MustInvoke[*RateLimiterHandle](i)

	services := &api.Services{
		Auth:    do.MustInvoke[*service.AuthService](i),
		Catalog: do.MustInvoke[*service.CatalogService](i),
	}

	storage := &api.StorageServices{
		Covers:  covers,
		Cleaner: queueHandle.Queue,
	}

	return api.NewServer(
		storeHandle.Store,
		indexHandle.SearchIndex,
		services,
		storage,
		limiterHandle.KeyedRateLimiter,
		api.Config{
			Version:        Version,
			PublicURL:      cfg.Server.PublicURL,
			CORSOrigins:    cfg.Server.CORSOrigins,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
			TokenFormat:    cfg.Auth.TokenFormat,
		},
		log.Logger,
	), nil
}

// ProvideHTTPServer provides the HTTP server and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	handler := do.MustInvoke[*api.Server](i)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Server running",
		"addr", srv.Addr,
		"public_url", cfg.Server.PublicURL,
	)

	return &HTTPServerHandle{Server: srv}, nil
}
