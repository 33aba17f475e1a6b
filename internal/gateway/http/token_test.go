package http_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
	gatewayhttp "github.com/aussiebroadwan/modelgate/internal/gateway/http"
	"github.com/aussiebroadwan/modelgate/pkg/gatewaysdk"
	"github.com/aussiebroadwan/modelgate/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func jsonTokenRequest(secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(`{"secret":"`+secret+`"}`))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestToken(t *testing.T) {
	e := newEnv(t, 5, gatewayhttp.Options{})

	t.Run("json body", func(t *testing.T) {
		rec := e.do(jsonTokenRequest(aliceSecret))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		resp := decode[gatewaysdk.TokenResponse](t, rec)
		require.NotEmpty(t, resp.AccessToken)
		require.Equal(t, "Bearer", resp.TokenType)
		require.Equal(t, int((30 * time.Minute).Seconds()), resp.ExpiresIn)
		require.Equal(t, "predict model:read", resp.Scope)
	})

	t.Run("form body", func(t *testing.T) {
		form := url.Values{"secret": {readerSecret}}
		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		rec := e.do(req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Equal(t, "model:read", decode[gatewaysdk.TokenResponse](t, rec).Scope)
	})

	t.Run("invalid secret is audited", func(t *testing.T) {
		before := e.rec.Count(domain.DecisionDeniedAuth)

		rec := e.do(jsonTokenRequest("not-a-known-secret-at-all"))
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		body := decode[gatewaysdk.ErrorResponse](t, rec)
		require.Equal(t, gatewaysdk.ErrorCodeInvalidClient, body.Error)
		require.Equal(t, before+1, e.rec.Count(domain.DecisionDeniedAuth))
	})

	t.Run("missing secret", func(t *testing.T) {
		rec := e.do(jsonTokenRequest(""))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, gatewaysdk.ErrorCodeInvalidRequest, decode[gatewaysdk.ErrorResponse](t, rec).Error)
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(`{"secret":`))
		req.Header.Set("Content-Type", "application/json")
		require.Equal(t, http.StatusBadRequest, e.do(req).Code)
	})

	t.Run("unsupported content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(aliceSecret))
		req.Header.Set("Content-Type", "text/plain")
		require.Equal(t, http.StatusBadRequest, e.do(req).Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := e.do(httptest.NewRequest(http.MethodGet, "/token", nil))
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestToken_RateLimitedPerIP(t *testing.T) {
	e := newEnv(t, 5, gatewayhttp.Options{
		TokenLimit: httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2},
	})

	for range 2 {
		require.Equal(t, http.StatusUnauthorized, e.do(jsonTokenRequest("wrong-secret-0123456789")).Code)
	}
	rec := e.do(jsonTokenRequest(aliceSecret))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}
