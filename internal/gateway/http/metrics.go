package http

import (
	"net/http"

	"github.com/aussiebroadwan/modelgate/pkg/cryptox"
	"github.com/aussiebroadwan/modelgate/pkg/gatewaysdk"
	"github.com/aussiebroadwan/modelgate/pkg/httpx"
)

// MetricsHandler godoc
//
//	@Summary		Prometheus Metrics
//	@Description	Prometheus text exposition. Requires the static metrics bearer when one is configured.
//	@Tags			Health
//	@Produce		plain
//	@Success		200	{string}	string						"metrics"
//	@Failure		401	{object}	gatewaysdk.ErrorResponse	"invalid_token"
//	@Router			/metrics [get].
func MetricsHandler(next http.Handler, token string) http.Handler {
	if token == "" {
		return next
	}
	fingerprint := cryptox.FingerprintToken(token)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented, err := httpx.BearerToken(r)
		if err != nil || !cryptox.EqualFingerprint(presented, fingerprint) {
			gatewaysdk.ErrInvalidToken.WithDescription("metrics token required").WriteError(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
