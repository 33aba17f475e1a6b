package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAccessTokenTTL is the lifetime of gateway access tokens unless the
// operator configures otherwise.
const DefaultAccessTokenTTL = 30 * time.Minute

// DefaultIssuedAtSkew is how far in the future an "iat" may sit before the
// token is refused.
const DefaultIssuedAtSkew = 5 * time.Second

// Claims are the access-token claims the gateway signs. The MAC covers the
// subject, both timestamps and the scope list.
type Claims struct {
	jwt.RegisteredClaims

	// Permission scopes, e.g. ["predict", "model:read"]
	Scopes []string `json:"scopes,omitempty"`
}

// NewAccessClaims builds claims for subject valid for ttl from now. Timestamps
// are truncated to whole seconds so the values returned to callers match what
// ends up in the token.
func NewAccessClaims(subject string, scopes []string, ttl time.Duration, issuer string, now time.Time) Claims {
	now = now.UTC().Truncate(time.Second)
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Scopes: scopes,
	}
}

// NewJTI returns a random identifier for the "jti" claim.
func NewJTI() string {
	return uuid.NewString()
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateExpiryAt reports ErrExpired once now reaches exp. A token is valid
// strictly before its expiry instant.
func (c *Claims) ValidateExpiryAt(now time.Time) error {
	if c.ExpiresAt == nil {
		return ErrInvalidClaim
	}
	if !now.Before(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}

// ValidateIssuedAt rejects tokens minted more than skew in the future, and
// tokens whose expiry is not after their issue time.
func (c *Claims) ValidateIssuedAt(now time.Time, skew time.Duration) error {
	if c.IssuedAt == nil {
		return ErrInvalidClaim
	}
	if c.IssuedAt.After(now.Add(skew)) {
		return ErrNotYetValid
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(c.IssuedAt.Time) {
		return ErrInvalidClaim
	}
	return nil
}
