package api

import (
	"context"
	"net"

	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
)

// authenticateRequest validates the Authorization header and returns the user ID.
func (s *Server) authenticateRequest(ctx context.Context, authHeader string) (string, error) {
	if s.services == nil || s.services.Auth == nil {
		return "", domainerrors.Internal("authentication is not configured")
	}
	return s.services.Auth.Authenticate(ctx, authHeader)
}

// clientIP strips the port from a remote address. middleware.RealIP has
// already applied X-Forwarded-For and X-Real-IP.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
