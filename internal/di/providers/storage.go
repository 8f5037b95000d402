package providers

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"

	"github.com/shelfmark/shelfmark-server/internal/cleanup"
	"github.com/shelfmark/shelfmark-server/internal/config"
	"github.com/shelfmark/shelfmark-server/internal/logger"
	"github.com/shelfmark/shelfmark-server/internal/media/images"
)

// ProvideImageStorage provides the cover image storage.
func ProvideImageStorage(i do.Injector) (*images.Storage, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	covers, err := images.NewStorage(cfg.Data.UploadsPath)
	if err != nil {
		return nil, fmt.Errorf("cover storage: %w", err)
	}

	log.Info("Image storage initialized", "path", covers.Dir())

	return covers, nil
}

// CleanupQueueHandle wraps the cleanup queue with shutdown capability.
type CleanupQueueHandle struct {
	*cleanup.Queue
}

// Shutdown implements do.Shutdownable. Pending deletions are drained.
func (h *CleanupQueueHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Stop(ctx)
}

// ProvideCleanupQueue provides the background image deletion queue.
func ProvideCleanupQueue(i do.Injector) (*CleanupQueueHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	covers := do.MustInvoke[*images.Storage](i)

	queue := cleanup.NewQueue(covers, cleanup.Config{
		Workers:   cfg.Cleanup.Workers,
		QueueSize: cfg.Cleanup.QueueSize,
	}, log.Logger)
	queue.Start()

	log.Info("Image cleanup queue started",
		"workers", cfg.Cleanup.Workers,
		"queue_size", cfg.Cleanup.QueueSize,
	)

	return &CleanupQueueHandle{Queue: queue}, nil
}
