package http

import (
	"errors"
	"log/slog"
	"math"
	"net/http"

	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
	"github.com/aussiebroadwan/modelgate/internal/gateway/service"
	"github.com/aussiebroadwan/modelgate/pkg/gatewaysdk"
	"github.com/aussiebroadwan/modelgate/pkg/httpx"
	"github.com/aussiebroadwan/modelgate/pkg/slogx"
)

// PredictHandler serves POST /predict.
type PredictHandler struct {
	Dispatcher *service.Dispatcher
}

// ServeHTTP godoc
//
//	@Summary		Predict
//	@Description	Runs the verified model on one feature vector. Every request past input validation
//	@Description	produces exactly one audit event.
//	@Tags			Inference
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		gatewaysdk.PredictRequest	true	"Feature vector"
//	@Success		200		{object}	gatewaysdk.PredictResponse	"prediction, probabilities, model_version, timestamp"
//	@Failure		400		{object}	gatewaysdk.ErrorResponse	"invalid_request"
//	@Failure		401		{object}	gatewaysdk.ErrorResponse	"invalid_token (DENIED_AUTH)"
//	@Failure		403		{object}	gatewaysdk.ErrorResponse	"insufficient_scope (DENIED_AUTH)"
//	@Failure		429		{object}	gatewaysdk.ErrorResponse	"quota_exceeded (DENIED_QUOTA), remaining, retry_after"
//	@Failure		500		{object}	gatewaysdk.ErrorResponse	"server_error (ERROR)"
//	@Failure		503		{object}	gatewaysdk.ErrorResponse	"model_untrusted (DENIED_UNTRUSTED_MODEL) or dependency_unavailable (ERROR)"
//	@Header			429		{integer}	Retry-After					"seconds until the quota window resets"
//	@Router			/predict [post].
func (h *PredictHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if ct := r.Header.Get("Content-Type"); ct != "" && !httpx.IsJSON(r) {
		gatewaysdk.ErrInvalidRequest.WithDescription("content-type must be application/json").WriteError(w)
		return
	}

	var body gatewaysdk.PredictRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		desc := "invalid JSON body"
		if errors.Is(err, httpx.ErrBodyTooLarge) {
			desc = "request body too large"
		}
		gatewaysdk.ErrInvalidRequest.WithDescription(desc).WriteError(w)
		return
	}

	// A missing header is dispatched as an empty token so the refusal is
	// audited like any other bad token.
	token, _ := httpx.BearerToken(r)

	out, err := h.Dispatcher.Dispatch(ctx, service.PredictRequest{
		Token:    token,
		Features: body.Features,
	})
	if err != nil {
		writeDispatchError(w, r, out, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, gatewaysdk.PredictResponse{
		Prediction:    out.Prediction.Class,
		Probabilities: out.Prediction.Probabilities,
		ModelVersion:  out.ModelVersion,
		Timestamp:     out.Timestamp,
	})
}

// writeDispatchError maps the error taxonomy onto HTTP. Descriptions for
// integrity and internal failures stay generic; the detail is logged.
func writeDispatchError(w http.ResponseWriter, r *http.Request, out service.Outcome, err error) {
	log := slogx.FromContext(r.Context()).With(
		slog.String("decision", string(out.Decision)),
		slog.String("state", string(out.State)),
	)
	reason := string(out.Decision)

	switch {
	case errors.Is(err, domain.ErrValidation):
		gatewaysdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)

	case errors.Is(err, domain.ErrMissingScope):
		log.Info("predict refused", "err", err)
		w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+domain.ScopePredict+`"`)
		gatewaysdk.ErrInsufficientScope.WithReason(reason).WriteError(w)

	case errors.Is(err, domain.ErrAuth):
		log.Info("predict refused", "err", err)
		gerr := gatewaysdk.ErrInvalidToken
		if errors.Is(err, domain.ErrExpiredToken) {
			gerr = gerr.WithDescription("the access token has expired")
		}
		gerr.WithReason(reason).WriteError(w)

	case errors.Is(err, domain.ErrQuota):
		log.Warn("predict refused", "err", err)
		gatewaysdk.ErrQuotaExceeded.
			WithReason(reason).
			WithQuota(out.Quota.Remaining, retryAfterSeconds(out.Quota)).
			WriteError(w)

	case errors.Is(err, domain.ErrDependency):
		log.Error("predict dependency failure", "err", err)
		gatewaysdk.ErrDependencyUnavailable.WithReason(reason).WriteError(w)

	case errors.Is(err, domain.ErrIntegrity):
		log.Error("predict refused, model not trusted", "err", err)
		gatewaysdk.ErrModelUntrusted.WithReason(reason).WriteError(w)

	default:
		log.Error("predict failed", "err", err)
		gatewaysdk.ErrServerError.WithReason(reason).WriteError(w)
	}
}

// retryAfterSeconds rounds up so clients never retry inside the window.
func retryAfterSeconds(q domain.QuotaDecision) int {
	return max(int(math.Ceil(q.RetryAfter.Seconds())), 1)
}
