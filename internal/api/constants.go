package api

// API limits and constants.
const (
	// MaxUploadSize is the default limit for cover uploads (10 MB).
	MaxUploadSize = 10 << 20

	// multipartOverhead leaves room for the form's other fields and
	// boundaries on top of the image itself.
	multipartOverhead = 1 << 20
)

// Cache-Control header values.
const (
	// Stored uploads get a fresh name on every change, so they never go stale.
	CacheOneWeek = "public, max-age=604800, immutable"
	CacheNoStore = "no-store"
)
