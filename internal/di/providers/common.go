package providers

import "time"

const (
	// shutdownTimeout is the maximum time to wait for graceful shutdown of services.
	shutdownTimeout = 30 * time.Second
)

// Version is reported by the health check and the OpenAPI document.
// Set at build time with -ldflags "-X .../providers.Version=...".
var Version = "dev"
