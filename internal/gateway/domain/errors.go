package domain

import (
	"errors"
	"fmt"
)

// Category roots. Every gateway error wraps exactly one of these so callers
// can branch with errors.Is.
var (
	ErrAuth       = errors.New("auth error")
	ErrQuota      = errors.New("quota error")
	ErrIntegrity  = errors.New("integrity error")
	ErrValidation = errors.New("validation error")
	ErrDependency = errors.New("dependency error")
	ErrInternal   = errors.New("internal error")
)

// AuthError kinds.
var (
	ErrInvalidCredential = fmt.Errorf("%w: invalid credential", ErrAuth)
	ErrExpiredToken      = fmt.Errorf("%w: expired token", ErrAuth)
	ErrBadSignature      = fmt.Errorf("%w: bad signature", ErrAuth)
	ErrMalformedToken    = fmt.Errorf("%w: malformed token", ErrAuth)
	ErrMissingScope      = fmt.Errorf("%w: missing scope", ErrAuth)
)

// ErrQuotaExceeded is returned when the window count passed the limit.
var ErrQuotaExceeded = fmt.Errorf("%w: quota exceeded", ErrQuota)

// IntegrityError kinds.
var (
	ErrFingerprintMismatch = fmt.Errorf("%w: fingerprint mismatch", ErrIntegrity)
	ErrVersionMismatch     = fmt.Errorf("%w: version mismatch", ErrIntegrity)
	ErrArtifactUnreadable  = fmt.Errorf("%w: artifact unreadable", ErrIntegrity)
	ErrModelUntrusted      = fmt.Errorf("%w: model untrusted", ErrIntegrity)
)

// DependencyError kinds.
var (
	ErrCounterUnavailable = fmt.Errorf("%w: counter store unavailable", ErrDependency)
	ErrSinkUnavailable    = fmt.Errorf("%w: audit sink unavailable", ErrDependency)
)

// InternalError kinds.
var (
	ErrPredictFailed  = fmt.Errorf("%w: predict failed", ErrInternal)
	ErrPredictTimeout = fmt.Errorf("%w: predict timed out", ErrInternal)
)

// ValidationError describes a rejected request payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any *ValidationError.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError builds a *ValidationError.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
