package gatewaysdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Client talks to a modelgate instance. It covers the unauthenticated
// endpoints and creates Sessions for the authenticated ones.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// CheckScopes makes a Session refuse calls its token has no scope for
	// before any request is sent. Disable it in tests that exercise the
	// server-side check.
	// Default: true
	CheckScopes bool
}

// NewClient creates a gateway client with scope checking enabled.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		CheckScopes: true,
	}
}

// Authenticate exchanges secret for a token and returns a Session that
// re-issues the token with the same secret when it is about to expire.
func (c *Client) Authenticate(ctx context.Context, secret string) (*Session, error) {
	tokenResp, err := c.IssueToken(ctx, secret)
	if err != nil {
		return nil, err
	}
	return newSession(c, secret, tokenResp), nil
}

// NewSessionFromToken wraps an existing access token. Without a secret the
// session cannot re-issue, so calls fail once the token expires.
func (c *Client) NewSessionFromToken(accessToken, scope string, expiresIn int) *Session {
	return newSession(c, "", &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
		Scope:       scope,
	})
}
