package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
}

// HS256Signer signs with the primary key of a KeySet.
type HS256Signer struct {
	kid string
	key []byte
}

// NewSignerHS256 binds a signer to the KeySet's current primary key.
func NewSignerHS256(keys *KeySet) (*HS256Signer, error) {
	kid, key, err := keys.Primary()
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, errors.New("jwtx: empty HMAC key")
	}
	return &HS256Signer{kid: kid, key: key}, nil
}

func (s *HS256Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }
func (s *HS256Signer) KID() string { return s.kid }

// Sign takes your claims and turns them into a signed JWT string.
func (s *HS256Signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}
