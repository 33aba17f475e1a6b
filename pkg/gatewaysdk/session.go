package gatewaysdk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrSessionExpired is returned when the token expired and the session has
// no secret to re-issue it with.
var ErrSessionExpired = errors.New("gatewaysdk: access token expired")

// expiryBuffer is how long before expiry a session re-issues its token.
const expiryBuffer = 30 * time.Second

// Session is an authenticated client. It is safe for concurrent use.
type Session struct {
	client *Client
	secret string

	mu          sync.RWMutex
	accessToken string
	expiresAt   time.Time
	scopes      map[string]bool
}

func newSession(client *Client, secret string, tokenResp *TokenResponse) *Session {
	s := &Session{client: client, secret: secret}
	s.update(tokenResp)
	return s
}

// update must be called with mu held for writing, or before s is shared.
func (s *Session) update(tokenResp *TokenResponse) {
	ttl := time.Duration(tokenResp.ExpiresIn) * time.Second
	buffer := min(expiryBuffer, ttl/2)

	s.accessToken = tokenResp.AccessToken
	s.expiresAt = time.Now().Add(ttl - buffer)
	s.scopes = parseScopes(tokenResp.Scope)
}

func parseScopes(scopeStr string) map[string]bool {
	parts := strings.Fields(scopeStr)
	scopes := make(map[string]bool, len(parts))
	for _, scope := range parts {
		scopes[scope] = true
	}
	return scopes
}

// getValidToken returns the access token, re-issuing it first if it is
// close to expiry.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have re-issued while we waited.
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if s.secret == "" {
		return "", ErrSessionExpired
	}

	tokenResp, err := s.client.IssueToken(ctx, s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to re-issue token: %w", err)
	}
	s.update(tokenResp)

	return s.accessToken, nil
}

// AccessToken returns the current access token without checking expiry.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// HasScope reports whether the current token carries scope.
func (s *Session) HasScope(scope string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scopes[scope]
}

// checkScopes returns ErrInsufficientScope if client-side checking is on and
// any required scope is missing.
func (s *Session) checkScopes(required ...string) error {
	if !s.client.CheckScopes {
		return nil
	}
	for _, scope := range required {
		if !s.HasScope(scope) {
			return ErrInsufficientScope.WithDescription("missing scope: " + scope)
		}
	}
	return nil
}
