package api

import (
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
)

// rateLimitAuth is a huma middleware limiting signup and login per client
// IP. Rejected requests get 429 with a Retry-After header.
func (s *Server) rateLimitAuth(ctx huma.Context, next func(huma.Context)) {
	if s.authRateLimiter == nil {
		next(ctx)
		return
	}

	key := clientIP(ctx.RemoteAddr())
	if !s.authRateLimiter.Allow(key) {
		s.logger.Warn("rate limit exceeded",
			"ip", key,
			"path", ctx.URL().Path,
		)

		retryAfter := int(s.authRateLimiter.RetryAfter().Seconds())
		ctx.SetHeader("Retry-After", strconv.Itoa(max(retryAfter, 1)))
		_ = huma.WriteErr(s.api, ctx, domainerrors.ErrRateLimited.HTTPStatus(),
			"too many requests", domainerrors.ErrRateLimited)
		return
	}

	next(ctx)
}
