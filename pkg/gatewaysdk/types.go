package gatewaysdk

import "time"

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	// Error is the error code (e.g., "invalid_request", "quota_exceeded")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`

	// Reason is the audit decision, when the request reached one
	Reason string `json:"reason,omitempty"`

	// Remaining is the number of requests left in the window (quota only)
	Remaining *int64 `json:"remaining,omitempty"`

	// RetryAfter is the seconds until the window resets (quota only)
	RetryAfter int `json:"retry_after,omitempty"`
}

// ============================================================================
// Token Types
// ============================================================================

// TokenRequest is the JSON body accepted by POST /token. The endpoint also
// accepts the same field as a form value.
type TokenRequest struct {
	Secret string `json:"secret"`
}

// TokenResponse is returned from POST /token.
type TokenResponse struct {
	// AccessToken is the signed bearer token
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in"`

	// Scope is the space-delimited list of scopes granted to this token
	Scope string `json:"scope,omitempty"`
}

// ============================================================================
// Prediction Types
// ============================================================================

// PredictRequest is the JSON body accepted by POST /predict.
type PredictRequest struct {
	Features []float64 `json:"features"`
}

// PredictResponse is returned from a successful POST /predict.
type PredictResponse struct {
	// Prediction is the predicted class label
	Prediction int `json:"prediction"`

	// Probabilities holds one probability per class, in label order
	Probabilities []float64 `json:"probabilities"`

	// ModelVersion is the version of the model that served the request
	ModelVersion string `json:"model_version"`

	// Timestamp is when the prediction was produced (UTC)
	Timestamp time.Time `json:"timestamp"`
}

// ModelInfoResponse is returned from GET /model/info.
type ModelInfoResponse struct {
	Version     string    `json:"version"`
	Fingerprint string    `json:"fingerprint"`
	Trusted     bool      `json:"trusted"`
	LoadedAt    time.Time `json:"loaded_at,omitzero"`
	CheckedAt   time.Time `json:"checked_at,omitzero"`

	// Reason explains why the model is quarantined; empty when trusted
	Reason string `json:"reason,omitempty"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse is returned by /livez and /readyz (readyz adds Checks).
type HealthResponse struct {
	// Status indicates the overall health status ("ok" or "degraded")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness results for each dependency (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks is the per-dependency status reported by /readyz.
type HealthChecks struct {
	CounterStore string `json:"counter_store"`
	AuditSink    string `json:"audit_sink"`
	Model        string `json:"model"`
}
