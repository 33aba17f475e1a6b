package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
	"github.com/aussiebroadwan/modelgate/internal/gateway/service"
	"github.com/aussiebroadwan/modelgate/pkg/gatewaysdk"
	"github.com/aussiebroadwan/modelgate/pkg/httpx"
	"github.com/aussiebroadwan/modelgate/pkg/slogx"
)

// TokenHandler serves POST /token.
// Accepts a JSON body or application/x-www-form-urlencoded.
type TokenHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		Token Endpoint
//	@Description	Exchanges a pre-shared client secret for a short-lived bearer token.
//	@Description	Failed attempts are audited as DENIED_AUTH and rate limited per IP.
//	@Tags			Auth
//	@Accept			json
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			request	body		gatewaysdk.TokenRequest		true	"Client secret"
//	@Success		200		{object}	gatewaysdk.TokenResponse	"access_token, token_type, expires_in, scope"
//	@Failure		400		{object}	gatewaysdk.ErrorResponse	"error, error_description"
//	@Failure		401		{object}	gatewaysdk.ErrorResponse	"error, error_description"
//	@Failure		429		{object}	gatewaysdk.ErrorResponse	"error, error_description, retry_after"
//	@Failure		500		{object}	gatewaysdk.ErrorResponse	"error, error_description"
//	@Header			200		{string}	Cache-Control				"no-store"
//	@Header			200		{string}	Pragma						"no-cache"
//	@Router			/token [post].
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	secret, gerr := readSecret(r)
	if gerr != nil {
		gerr.WriteError(w)
		return
	}

	tok, err := h.TokenService.Issue(ctx, secret)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAuth):
			gatewaysdk.ErrInvalidClient.WithReason(string(domain.DecisionDeniedAuth)).WriteError(w)
		default:
			log.Error("token issuance failed", "err", err)
			gatewaysdk.ErrServerError.WriteError(w)
		}
		return
	}

	response := gatewaysdk.TokenResponse{
		AccessToken: tok.Raw,
		TokenType:   "Bearer",
		ExpiresIn:   int(tok.ExpiresAt.Sub(tok.IssuedAt).Seconds()),
		Scope:       strings.Join(tok.Scopes, " "),
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, response)
}

// readSecret pulls the secret from a JSON body or form field.
func readSecret(r *http.Request) (string, *gatewaysdk.GatewayError) {
	var secret string

	switch ct := r.Header.Get("Content-Type"); {
	case httpx.IsJSON(r):
		var req gatewaysdk.TokenRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			if errors.Is(err, httpx.ErrBodyTooLarge) {
				return "", gatewaysdk.ErrInvalidRequest.WithDescription("request body too large")
			}
			return "", gatewaysdk.ErrInvalidRequest.WithDescription("invalid JSON body")
		}
		secret = req.Secret
	case ct == "" || strings.HasPrefix(ct, "application/x-www-form-urlencoded"):
		if err := r.ParseForm(); err != nil {
			return "", gatewaysdk.ErrInvalidRequest.WithDescription("invalid form body")
		}
		secret = r.PostForm.Get("secret")
	default:
		return "", gatewaysdk.ErrInvalidRequest.WithDescription("content-type must be application/json or application/x-www-form-urlencoded")
	}

	if secret == "" {
		return "", gatewaysdk.ErrInvalidRequest.WithDescription("secret is required")
	}
	return secret, nil
}
