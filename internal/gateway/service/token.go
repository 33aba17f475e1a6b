package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/audit"
	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
	"github.com/aussiebroadwan/modelgate/pkg/jwtx"
	"github.com/aussiebroadwan/modelgate/pkg/slogx"
)

// TokenService issues and validates gateway access tokens.
type TokenService struct {
	Credentials *CredentialStore
	KeyManager  *jwtx.KeyManager
	Issuer      string
	TTL         time.Duration

	// Audit receives a DENIED_AUTH event for every failed issuance. Optional.
	Audit audit.Recorder

	// Now must be the same clock the KeyManager's verifier uses.
	Now func() time.Time
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Issue exchanges a pre-shared secret for a signed access token.
func (s *TokenService) Issue(ctx context.Context, secret string) (domain.AccessToken, error) {
	start := s.now()
	l := slogx.FromContext(ctx)

	cred, err := s.Credentials.Authenticate(ctx, secret)
	if err != nil {
		l.Info("token issuance refused", slog.String("reason", "invalid_credential"))
		s.recordDenied(ctx, start)
		return domain.AccessToken{}, err
	}

	ttl := s.TTL
	if ttl <= 0 {
		ttl = jwtx.DefaultAccessTokenTTL
	}

	claims := jwtx.NewAccessClaims(cred.Identity.String(), cred.Scopes, ttl, s.Issuer, start)
	raw, err := s.KeyManager.Signer.Sign(claims)
	if err != nil {
		l.Error("failed to sign access token", slog.Any("error", err))
		return domain.AccessToken{}, fmt.Errorf("%w: sign token: %w", domain.ErrInternal, err)
	}

	tok := domain.AccessToken{
		ID:        claims.ID,
		KeyID:     s.KeyManager.Signer.KID(),
		Subject:   cred.Identity,
		Scopes:    cred.Scopes,
		IssuedAt:  claims.IssuedAt.Time.UTC(),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
		Raw:       raw,
	}

	l.Info("access token issued",
		slog.String("identity", tok.Subject.String()),
		slog.String("jti", tok.ID),
		slog.String("kid", tok.KeyID),
		slog.Time("expires_at", tok.ExpiresAt),
	)
	return tok, nil
}

func (s *TokenService) recordDenied(ctx context.Context, start time.Time) {
	if s.Audit == nil {
		return
	}
	s.Audit.Record(domain.AuditEvent{
		Timestamp: start.UTC(),
		RequestID: slogx.RequestID(ctx),
		Decision:  domain.DecisionDeniedAuth,
		Latency:   s.now().Sub(start),
		Detail:    "token: invalid credential",
	})
}

// Validate checks raw and resolves it to the principal it was issued to.
// A token whose signature does not verify is only ever reported as
// ErrBadSignature.
func (s *TokenService) Validate(ctx context.Context, raw string) (domain.Principal, error) {
	claims, err := s.KeyManager.Verifier.Verify(raw)
	if err != nil {
		return domain.Principal{}, mapVerifyError(err)
	}

	return domain.Principal{
		Identity:  domain.Identity(claims.Subject),
		Scopes:    claims.Scopes,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

func mapVerifyError(err error) error {
	switch {
	case jwtx.IsSignatureError(err):
		return domain.ErrBadSignature
	case errors.Is(err, jwtx.ErrExpired):
		return domain.ErrExpiredToken
	default:
		// Structure errors and any other claim failure (issuer, iat in the
		// future, missing subject).
		return domain.ErrMalformedToken
	}
}
