package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
	"github.com/aussiebroadwan/modelgate/pkg/cryptox"
	"github.com/aussiebroadwan/modelgate/pkg/slogx"
)

var knownScopes = []string{domain.ScopePredict, domain.ScopeModelRead}

// CredentialSpec is one configured client credential before it is hashed.
type CredentialSpec struct {
	Identity string   `yaml:"identity"`
	Secret   string   `yaml:"secret"` // plaintext or an argon2id PHC hash
	Scopes   []string `yaml:"scopes"`
}

// ParseCredentialSpecs reads the env form "identity=secret[|scope scope],...".
// Argon2id hashes contain commas in their parameter block; those fragments
// are joined back onto the hash they were split from.
func ParseCredentialSpecs(raw string) ([]CredentialSpec, error) {
	var entries []string
	for frag := range strings.SplitSeq(raw, ",") {
		if n := len(entries); n > 0 && incompleteHash(entries[n-1]) {
			entries[n-1] += "," + frag
			continue
		}
		entries = append(entries, frag)
	}

	var specs []CredentialSpec
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		identity, rest, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("credential %q: expected identity=secret", entry)
		}
		secret, scopes, _ := strings.Cut(rest, "|")

		spec := CredentialSpec{
			Identity: strings.TrimSpace(identity),
			Secret:   strings.TrimSpace(secret),
		}
		if fields := strings.Fields(scopes); len(fields) > 0 {
			spec.Scopes = fields
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func incompleteHash(entry string) bool {
	_, rest, ok := strings.Cut(entry, "=")
	if !ok {
		return false
	}
	secret, _, _ := strings.Cut(rest, "|")
	secret = strings.TrimSpace(secret)
	return cryptox.IsSecretHash(secret) && strings.Count(secret, "$") < 5
}

// CredentialStore is the static set of pre-shared client credentials.
// Plaintext secrets are kept only as SHA-256 fingerprints.
type CredentialStore struct {
	creds []domain.Credential
}

// NewCredentialStore validates specs and builds the store.
func NewCredentialStore(specs []CredentialSpec) (*CredentialStore, error) {
	if len(specs) == 0 {
		return nil, errors.New("at least one credential is required")
	}

	seen := make(map[string]struct{}, len(specs))
	creds := make([]domain.Credential, 0, len(specs))

	for _, s := range specs {
		if s.Identity == "" {
			return nil, errors.New("credential identity must not be empty")
		}
		if _, dup := seen[s.Identity]; dup {
			return nil, fmt.Errorf("duplicate credential identity %q", s.Identity)
		}
		seen[s.Identity] = struct{}{}

		scopes := s.Scopes
		if len(scopes) == 0 {
			scopes = slices.Clone(domain.DefaultScopes)
		}
		for _, sc := range scopes {
			if !slices.Contains(knownScopes, sc) {
				return nil, fmt.Errorf("credential %q: unknown scope %q", s.Identity, sc)
			}
		}

		c := domain.Credential{Identity: domain.Identity(s.Identity), Scopes: scopes}
		switch {
		case cryptox.IsSecretHash(s.Secret):
			c.SecretHash = s.Secret
		case len(s.Secret) < cryptox.MinSecretLength:
			return nil, fmt.Errorf("credential %q: %w", s.Identity, cryptox.ErrWeakSecret)
		default:
			c.SecretFingerprint = cryptox.FingerprintToken(s.Secret)
		}
		creds = append(creds, c)
	}

	return &CredentialStore{creds: creds}, nil
}

// Authenticate finds the credential whose secret matches. Every entry is
// checked regardless of an earlier match.
func (s *CredentialStore) Authenticate(ctx context.Context, secret string) (domain.Credential, error) {
	if secret == "" {
		return domain.Credential{}, domain.ErrInvalidCredential
	}

	var (
		match domain.Credential
		found bool
	)
	for _, c := range s.creds {
		var ok bool
		if c.SecretHash != "" {
			err := cryptox.VerifySecret(secret, c.SecretHash)
			if err != nil && !errors.Is(err, cryptox.ErrSecretMismatch) {
				slogx.FromContext(ctx).Error("stored credential hash is invalid",
					slog.String("identity", c.Identity.String()),
					slog.Any("error", err),
				)
			}
			ok = err == nil
		} else {
			ok = cryptox.EqualFingerprint(secret, c.SecretFingerprint)
		}
		if ok && !found {
			match, found = c, true
		}
	}

	if !found {
		return domain.Credential{}, domain.ErrInvalidCredential
	}
	return match, nil
}

// Identities lists the configured identities in configuration order.
func (s *CredentialStore) Identities() []domain.Identity {
	out := make([]domain.Identity, len(s.creds))
	for i, c := range s.creds {
		out[i] = c.Identity
	}
	return out
}
