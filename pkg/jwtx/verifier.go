package jwtx

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// IsSignatureError reports whether err means the MAC could not be verified
// against any known key.
func IsSignatureError(err error) bool {
	return errors.Is(err, ErrInvalidSig) || errors.Is(err, ErrUnknownKID) || errors.Is(err, ErrAlgMismatch)
}

// VerifyOptions captures the expectations applied after the MAC checks out.
type VerifyOptions struct {
	// Issuer the token must have. Empty means "don't care".
	Issuer string

	// IssuedAtSkew tolerates an "iat" this far in the future.
	IssuedAtSkew time.Duration

	// Now is the clock used for exp/iat checks. Defaults to time.Now.
	Now func() time.Time
}

// HS256Verifier validates HS256 tokens against a KeySet.
type HS256Verifier struct {
	keys *KeySet
	opts VerifyOptions
}

// NewVerifierHS256 creates a verifier over keys.
func NewVerifierHS256(keys *KeySet, opts VerifyOptions) *HS256Verifier {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &HS256Verifier{keys: keys, opts: opts}
}

type header struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// Verify checks, in order: structure, MAC, claims. Once the structure is
// sound, a MAC failure is always reported as such, even if the payload is
// also unreadable.
func (v *HS256Verifier) Verify(tokenStr string) (Claims, error) {
	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Claims{}, ErrMalformed
	}

	rawHeader, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Claims{}, ErrMalformed
	}
	var h header
	if err := json.Unmarshal(rawHeader, &h); err != nil {
		return Claims{}, ErrMalformed
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Claims{}, ErrMalformed
	}

	if h.Alg != jwt.SigningMethodHS256.Alg() {
		return Claims{}, ErrAlgMismatch
	}
	key, err := v.keys.Get(h.Kid)
	if err != nil {
		return Claims{}, ErrUnknownKID
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, key); err != nil {
		return Claims{}, ErrInvalidSig
	}

	// MAC is good; decode the payload without the library's own time checks
	// so they run against our clock.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	var claims Claims
	if _, err := parser.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return key, nil
	}); err != nil {
		return Claims{}, ErrMalformed
	}

	if claims.Subject == "" {
		return Claims{}, ErrInvalidClaim
	}
	if err := claims.ValidateIssuer(v.opts.Issuer); err != nil {
		return Claims{}, err
	}

	now := v.opts.Now().UTC()
	if err := claims.ValidateIssuedAt(now, v.opts.IssuedAtSkew); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiryAt(now); err != nil {
		return Claims{}, err
	}

	return claims, nil
}
