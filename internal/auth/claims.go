package auth

import (
	"time"
)

// AccessClaims are the verified claims of an access token.
// Tokens carry only the user identity plus standard registered claims.
type AccessClaims struct {
	UserID string `json:"user_id"`

	// Standard claims
	Issuer     string    `json:"iss"`
	Subject    string    `json:"sub"`
	Audience   string    `json:"aud"`
	Expiration time.Time `json:"exp"`
	NotBefore  time.Time `json:"nbf"`
	IssuedAt   time.Time `json:"iat"`
	TokenID    string    `json:"jti"`
}
