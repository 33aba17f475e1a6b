package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/service"
	"github.com/aussiebroadwan/modelgate/pkg/gatewaysdk"
	"github.com/aussiebroadwan/modelgate/pkg/httpx"
)

const readyzTimeout = 2 * time.Second

// ReadyzHandler godoc
//
//	@Summary		Readiness Check Endpoint
//	@Description	Readiness probe endpoint returning service health status and checks for critical dependencies
//	@Description	Includes the counter store, the audit sink and whether a trusted model is serving
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	gatewaysdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	gatewaysdk.HealthResponse	"status, uptime, version, checks - service not ready"
//	@Router			/readyz [get].
func ReadyzHandler(
	startTime time.Time,
	version string,
	counters Pinger,
	sink Pinger,
	models service.SnapshotSource,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyzTimeout)
		defer cancel()

		checks := &gatewaysdk.HealthChecks{
			CounterStore: "ok",
			AuditSink:    "ok",
			Model:        "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK

		degrade := func(field *string, msg string) {
			*field = "error: " + msg
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if counters == nil {
			degrade(&checks.CounterStore, "not configured")
		} else if err := counters.Ping(ctx); err != nil {
			degrade(&checks.CounterStore, err.Error())
		}

		if sink != nil {
			if err := sink.Ping(ctx); err != nil {
				degrade(&checks.AuditSink, err.Error())
			}
		}

		if snap := models.Current(); !snap.Serving() {
			degrade(&checks.Model, "untrusted: "+snap.Artifact.Reason)
		}

		response := gatewaysdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
			Checks:  checks,
		}
		httpx.WriteJSON(w, statusCode, response)
	}
}
