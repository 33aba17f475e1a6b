package jwtx

import (
	"errors"
	"sync"

	"github.com/aussiebroadwan/modelgate/pkg/cryptox"
)

var ErrNoKey = errors.New("jwtx: key not found")

// HMACKeySize is the derived key length for HS256.
const HMACKeySize = 32

// KeySet holds the HMAC keys the gateway will accept, by kid. One of them is
// the primary and signs new tokens; the rest only verify, which is how a
// secret is rotated without invalidating live tokens.
type KeySet struct {
	mu      sync.RWMutex
	keys    map[string][]byte
	primary string
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{keys: make(map[string][]byte)}
}

// DeriveHMACKey expands an operator secret into the HS256 key for kid.
func DeriveHMACKey(kid string, secret []byte) ([]byte, error) {
	return cryptox.DeriveKey(secret, "modelgate/jwt/hs256/"+kid, HMACKeySize)
}

// AddSecret derives and registers the key for kid. The first key added
// becomes the primary.
func (k *KeySet) AddSecret(kid string, secret []byte) error {
	if kid == "" {
		return errors.New("jwtx: empty kid")
	}
	key, err := DeriveHMACKey(kid, secret)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if _, dup := k.keys[kid]; dup {
		return errors.New("jwtx: duplicate kid " + kid)
	}
	k.keys[kid] = key
	if k.primary == "" {
		k.primary = kid
	}
	return nil
}

// Get returns the key for the given kid.
func (k *KeySet) Get(kid string) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if key, ok := k.keys[kid]; ok {
		return key, nil
	}
	return nil, ErrNoKey
}

// Primary returns the signing kid and key.
func (k *KeySet) Primary() (string, []byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.primary == "" {
		return "", nil, ErrNoKey
	}
	return k.primary, k.keys[k.primary], nil
}

// IsReady returns true if the KeySet has at least one key loaded.
func (k *KeySet) IsReady() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys) > 0
}
