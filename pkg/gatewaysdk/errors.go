package gatewaysdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/modelgate/pkg/httpx"
)

// ============================================================================
// Error Codes
// ============================================================================

const (
	// OAuth2-style codes (RFC 6749 / RFC 6750)
	ErrorCodeInvalidRequest    = "invalid_request"
	ErrorCodeInvalidClient     = "invalid_client"
	ErrorCodeInvalidToken      = "invalid_token"
	ErrorCodeInsufficientScope = "insufficient_scope"
	ErrorCodeServerError       = "server_error"

	// Gateway codes
	ErrorCodeQuotaExceeded         = "quota_exceeded"
	ErrorCodeDependencyUnavailable = "dependency_unavailable"
	ErrorCodeModelUntrusted        = "model_untrusted"
	ErrorCodeRateLimitExceeded     = "rate_limit_exceeded"
)

// ============================================================================
// GatewayError
// ============================================================================

// GatewayError is the error body every gateway endpoint returns. The server
// writes it with WriteError; the client decodes responses back into it.
type GatewayError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the error code (e.g., "invalid_token", "quota_exceeded")
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`

	// Reason is the audit decision behind the response, e.g. "DENIED_QUOTA".
	Reason string `json:"reason,omitempty"`

	// Remaining and RetryAfter are only set on quota rejections.
	Remaining  *int64 `json:"remaining,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Reason, e.Description)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes e as a JSON response. Quota rejections also carry a
// Retry-After header in whole seconds.
func (e *GatewayError) WriteError(w http.ResponseWriter) {
	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfter))
	}
	if e.StatusCode == http.StatusUnauthorized && e.Code == ErrorCodeInvalidToken {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	httpx.WriteJSON(w, e.StatusCode, ErrorResponse{
		Error:            e.Code,
		ErrorDescription: e.Description,
		Reason:           e.Reason,
		Remaining:        e.Remaining,
		RetryAfter:       e.RetryAfter,
	})
}

// WithReason returns a copy of e tagged with the audit decision.
func (e *GatewayError) WithReason(reason string) *GatewayError {
	cp := *e
	cp.Reason = reason
	return &cp
}

// WithDescription returns a copy of e with a more specific description.
func (e *GatewayError) WithDescription(desc string) *GatewayError {
	cp := *e
	cp.Description = desc
	return &cp
}

// WithQuota returns a copy of e carrying the quota state.
func (e *GatewayError) WithQuota(remaining int64, retryAfterSeconds int) *GatewayError {
	cp := *e
	cp.Remaining = &remaining
	cp.RetryAfter = retryAfterSeconds
	return &cp
}

// ============================================================================
// Predefined Errors
// ============================================================================

var (
	// ErrInvalidRequest is returned for malformed bodies and rejected features.
	ErrInvalidRequest = &GatewayError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	// ErrInvalidClient is returned by /token when the secret is not recognised.
	ErrInvalidClient = &GatewayError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidClient,
		Description: "invalid client credentials",
	}

	// ErrInvalidToken is returned when the access token is missing, malformed,
	// expired or carries a bad signature.
	ErrInvalidToken = &GatewayError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the access token is missing, invalid or expired",
	}

	// ErrInsufficientScope is returned when the token lacks a required scope.
	ErrInsufficientScope = &GatewayError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeInsufficientScope,
		Description: "the access token does not have the required scopes",
	}

	// ErrQuotaExceeded is returned when the caller used up its window.
	ErrQuotaExceeded = &GatewayError{
		StatusCode:  http.StatusTooManyRequests,
		Code:        ErrorCodeQuotaExceeded,
		Description: "request quota exceeded for this window",
	}

	// ErrDependencyUnavailable is returned when the gateway cannot reach a
	// store it needs to make a decision.
	ErrDependencyUnavailable = &GatewayError{
		StatusCode:  http.StatusServiceUnavailable,
		Code:        ErrorCodeDependencyUnavailable,
		Description: "a required dependency is unavailable",
	}

	// ErrModelUntrusted is returned while no verified model is serving.
	ErrModelUntrusted = &GatewayError{
		StatusCode:  http.StatusServiceUnavailable,
		Code:        ErrorCodeModelUntrusted,
		Description: "model is unavailable",
	}

	// ErrServerError is returned for unexpected failures.
	ErrServerError = &GatewayError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// IsQuotaExceeded reports whether err is a quota rejection from the gateway.
func IsQuotaExceeded(err error) bool {
	return hasCode(err, ErrorCodeQuotaExceeded)
}

// IsInvalidToken reports whether err means the access token was refused.
func IsInvalidToken(err error) bool {
	return hasCode(err, ErrorCodeInvalidToken)
}

// IsModelUntrusted reports whether the gateway refused to serve because its
// model failed integrity checks.
func IsModelUntrusted(err error) bool {
	return hasCode(err, ErrorCodeModelUntrusted)
}

func hasCode(err error, code string) bool {
	var gerr *GatewayError
	return errors.As(err, &gerr) && gerr.Code == code
}

// ============================================================================
// Error Parsing Helpers
// ============================================================================

// parseErrorResponse turns a non-2xx response into a *GatewayError. Bodies
// that are not gateway errors (proxies, panics) get a generic code.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		gerr := &GatewayError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
			Reason:      errResp.Reason,
			Remaining:   errResp.Remaining,
			RetryAfter:  errResp.RetryAfter,
		}
		if gerr.RetryAfter == 0 {
			if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				gerr.RetryAfter = s
			}
		}
		return gerr
	}

	return &GatewayError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
