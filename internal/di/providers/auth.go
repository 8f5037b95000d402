package providers

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/shelfmark/shelfmark-server/internal/auth"
	"github.com/shelfmark/shelfmark-server/internal/config"
	"github.com/shelfmark/shelfmark-server/internal/logger"
)

// AuthKey wraps the authentication key bytes.
type AuthKey []byte

// ProvideAuthKey loads or generates the authentication key.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	key, err := auth.LoadOrGenerateKey(cfg.Data.BasePath)
	if err != nil {
		return nil, err
	}

	log.Info("Authentication key loaded",
		"token_format", cfg.Auth.TokenFormat,
		"token_duration", cfg.Auth.TokenDuration,
	)

	return AuthKey(key), nil
}

// ProvideTokenIssuer provides the token issuer for the configured format.
// JWT falls back to the generated key when no secret is configured.
func ProvideTokenIssuer(i do.Injector) (auth.TokenIssuer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	authKey := do.MustInvoke[AuthKey](i)

	switch cfg.Auth.TokenFormat {
	case config.TokenFormatJWT:
		secret := []byte(cfg.Auth.JWTSecret)
		if len(secret) == 0 {
			secret = authKey
		}
		return auth.NewJWTIssuer(secret, cfg.Auth.TokenDuration)
	case config.TokenFormatPaseto, "":
		return auth.NewPasetoIssuer(authKey, cfg.Auth.TokenDuration)
	default:
		return nil, fmt.Errorf("unknown token format %q", cfg.Auth.TokenFormat)
	}
}
