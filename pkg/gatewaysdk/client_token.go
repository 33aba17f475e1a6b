package gatewaysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// IssueToken calls POST /token with a pre-shared secret.
func (c *Client) IssueToken(ctx context.Context, secret string) (*TokenResponse, error) {
	body, err := json.Marshal(TokenRequest{Secret: secret})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/token", bytes.NewReader(body), map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := decodeJSON(resp, &tokenResp, http.StatusOK); err != nil {
		return nil, err
	}

	return &tokenResp, nil
}
