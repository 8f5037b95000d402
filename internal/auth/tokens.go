package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"
	"github.com/golang-jwt/jwt/v5"

	"github.com/shelfmark/shelfmark-server/internal/id"
)

const (
	tokenIssuer   = "shelfmark-server"
	tokenAudience = "shelfmark-client"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// TokenIssuer signs and verifies access tokens.
type TokenIssuer interface {
	// Issue creates a token for userID that expires after the issuer's lifetime.
	Issue(userID string) (string, error)
	// Verify checks signature, expiry, issuer and audience and returns the claims.
	Verify(token string) (*AccessClaims, error)
}

// PasetoIssuer issues PASETO v4.local tokens. Claims are encrypted, so
// clients cannot read them without the key.
type PasetoIssuer struct {
	key      paseto.V4SymmetricKey
	duration time.Duration
}

var _ TokenIssuer = (*PasetoIssuer)(nil)

// NewPasetoIssuer creates an issuer from a 32-byte key.
func NewPasetoIssuer(key []byte, duration time.Duration) (*PasetoIssuer, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("PASETO v4 key must be exactly %d bytes, got %d", keyLength, len(key))
	}

	symmetricKey, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("create PASETO symmetric key: %w", err)
	}

	return &PasetoIssuer{key: symmetricKey, duration: duration}, nil
}

// Issue implements TokenIssuer.
func (p *PasetoIssuer) Issue(userID string) (string, error) {
	now := time.Now()

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetSubject(userID)
	token.SetAudience(tokenAudience)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(now.Add(p.duration))

	tokenID, err := id.Generate(id.PrefixToken)
	if err != nil {
		return "", fmt.Errorf("generate token ID: %w", err)
	}
	token.SetJti(tokenID)

	//nolint:errcheck // Set only fails on values that cannot be marshaled
	_ = token.Set("user_id", userID)

	return token.V4Encrypt(p.key, nil), nil
}

// Verify implements TokenIssuer.
func (p *PasetoIssuer) Verify(tokenString string) (*AccessClaims, error) {
	parser := paseto.NewParser()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	parser.AddRule(paseto.NotExpired())
	parser.AddRule(paseto.ValidAt(time.Now()))

	token, err := parser.ParseV4Local(p.key, tokenString, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	var claims AccessClaims
	if err := json.Unmarshal(token.ClaimsJSON(), &claims); err != nil {
		return nil, fmt.Errorf("%w: parse claims: %w", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}

	return &claims, nil
}

// JWTIssuer issues HS256-signed JWTs for clients that expect a JWT.
type JWTIssuer struct {
	secret   []byte
	duration time.Duration
}

var _ TokenIssuer = (*JWTIssuer)(nil)

type jwtClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// NewJWTIssuer creates an issuer signing with secret.
func NewJWTIssuer(secret []byte, duration time.Duration) (*JWTIssuer, error) {
	if len(secret) < keyLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", keyLength)
	}
	return &JWTIssuer{secret: secret, duration: duration}, nil
}

// Issue implements TokenIssuer.
func (j *JWTIssuer) Issue(userID string) (string, error) {
	now := time.Now()

	tokenID, err := id.Generate(id.PrefixToken)
	if err != nil {
		return "", fmt.Errorf("generate token ID: %w", err)
	}

	claims := jwtClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.duration)),
			ID:        tokenID,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify implements TokenIssuer.
func (j *JWTIssuer) Verify(tokenString string) (*AccessClaims, error) {
	var claims jwtClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) { return j.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}

	out := &AccessClaims{
		UserID:  claims.UserID,
		Issuer:  claims.Issuer,
		Subject: claims.Subject,
		TokenID: claims.ID,
	}
	if len(claims.Audience) > 0 {
		out.Audience = claims.Audience[0]
	}
	if claims.ExpiresAt != nil {
		out.Expiration = claims.ExpiresAt.Time
	}
	if claims.NotBefore != nil {
		out.NotBefore = claims.NotBefore.Time
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
