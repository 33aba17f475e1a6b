package http

import (
	"net/http"

	"github.com/aussiebroadwan/modelgate/internal/gateway/service"
	"github.com/aussiebroadwan/modelgate/pkg/gatewaysdk"
	"github.com/aussiebroadwan/modelgate/pkg/httpx"
)

// ModelInfoHandler serves GET /model/info. It answers even while the model
// is quarantined so operators can see why.
type ModelInfoHandler struct {
	Models service.SnapshotSource
}

// ServeHTTP godoc
//
//	@Summary		Model Info
//	@Description	Version, fingerprint and trust state of the loaded model artifact.
//	@Tags			Inference
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	gatewaysdk.ModelInfoResponse	"version, fingerprint, trusted, loaded_at"
//	@Failure		401	{object}	gatewaysdk.ErrorResponse		"invalid_token"
//	@Failure		403	{object}	gatewaysdk.ErrorResponse		"insufficient_scope"
//	@Router			/model/info [get].
func (h *ModelInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	art := h.Models.Current().Artifact

	httpx.WriteJSON(w, http.StatusOK, gatewaysdk.ModelInfoResponse{
		Version:     art.Version,
		Fingerprint: art.Fingerprint,
		Trusted:     art.Trusted,
		LoadedAt:    art.LoadedAt,
		CheckedAt:   art.CheckedAt,
		Reason:      art.Reason,
	})
}
