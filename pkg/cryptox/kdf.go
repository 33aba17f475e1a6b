package cryptox

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the shortest master secret DeriveKey accepts.
const MinSecretLength = 16

var ErrWeakSecret = errors.New("cryptox: secret too short")

// DeriveKey expands a master secret into a size-byte key bound to info using
// HKDF-SHA256. Different info values yield independent keys from one secret.
func DeriveKey(secret []byte, info string, size int) ([]byte, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if size <= 0 {
		return nil, errors.New("cryptox: key size must be positive")
	}

	key := make([]byte, size)
	r := hkdf.New(sha256.New, secret, nil, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}
