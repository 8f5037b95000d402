package api

import (
	"github.com/shelfmark/shelfmark-server/internal/media/images"
	"github.com/shelfmark/shelfmark-server/internal/service"
)

// Services groups the business logic services used by the API server.
type Services struct {
	Auth    *service.AuthService
	Catalog *service.CatalogService
}

// StorageServices groups file storage used by the API server.
type StorageServices struct {
	Covers  *images.Storage      // Uploaded cover images
	Cleaner service.ImageCleaner // Deletes uploads that never made it into a book
}
