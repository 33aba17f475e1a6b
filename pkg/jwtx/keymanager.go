package jwtx

import (
	"errors"
	"fmt"
	"time"
)

// SecretSpec is one configured HMAC secret.
type SecretSpec struct {
	KID    string
	Secret string
}

// KeyManagerOptions configures the KeyManager.
type KeyManagerOptions struct {
	// Issuer is stamped into and required of every token.
	Issuer string

	// Secrets in priority order. The first one signs; all of them verify.
	Secrets []SecretSpec

	// IssuedAtSkew defaults to DefaultIssuedAtSkew.
	IssuedAtSkew time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// KeyManager wires a KeySet, its signer and a verifier together from
// operator-supplied secrets.
type KeyManager struct {
	KeySet   *KeySet
	Signer   Signer
	Verifier Verifier
}

// NewKeyManager derives keys for every secret and returns a ready manager.
func NewKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, errors.New("jwtx: Issuer is required")
	}
	if len(opts.Secrets) == 0 {
		return nil, errors.New("jwtx: at least one signing secret is required")
	}
	if opts.IssuedAtSkew == 0 {
		opts.IssuedAtSkew = DefaultIssuedAtSkew
	}

	ks := NewKeySet()
	for _, s := range opts.Secrets {
		if err := ks.AddSecret(s.KID, []byte(s.Secret)); err != nil {
			return nil, fmt.Errorf("jwtx: key %q: %w", s.KID, err)
		}
	}

	signer, err := NewSignerHS256(ks)
	if err != nil {
		return nil, err
	}

	return &KeyManager{
		KeySet: ks,
		Signer: signer,
		Verifier: NewVerifierHS256(ks, VerifyOptions{
			Issuer:       opts.Issuer,
			IssuedAtSkew: opts.IssuedAtSkew,
			Now:          opts.Now,
		}),
	}, nil
}
