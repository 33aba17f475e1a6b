package domain

import "time"

// Scopes carried by gateway tokens.
const (
	ScopePredict   = "predict"
	ScopeModelRead = "model:read"
)

// DefaultScopes are granted to credentials that do not list their own.
var DefaultScopes = []string{ScopePredict, ScopeModelRead}

// Identity is the caller a credential maps to. It is also the quota
// partition key.
type Identity string

func (i Identity) String() string { return string(i) }

// AccessToken is an issued bearer token. Immutable once minted.
type AccessToken struct {
	ID        string    // jti
	KeyID     string    // kid of the signing secret
	Subject   Identity  // who it was issued to
	Scopes    []string  // granted scopes
	IssuedAt  time.Time // truncated to whole seconds
	ExpiresAt time.Time // strictly after IssuedAt
	Raw       string    // compact JWS, includes the signature
}

// ExpiresIn is the remaining lifetime relative to now, never negative.
func (t AccessToken) ExpiresIn(now time.Time) time.Duration {
	return max(t.ExpiresAt.Sub(now), 0)
}

// Principal is what a validated token resolves to.
type Principal struct {
	Identity  Identity
	Scopes    []string
	TokenID   string
	ExpiresAt time.Time
}

// Credential is a pre-shared client secret. Exactly one of SecretFingerprint
// or SecretHash is set.
type Credential struct {
	Identity          Identity
	SecretFingerprint string // base64url SHA-256 of a plaintext secret
	SecretHash        string // argon2id PHC string
	Scopes            []string
}
