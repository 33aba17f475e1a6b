package domain

import "time"

// Decision is the outcome recorded for every dispatched request.
type Decision string

const (
	DecisionAllowed              Decision = "ALLOWED"
	DecisionDeniedAuth           Decision = "DENIED_AUTH"
	DecisionDeniedQuota          Decision = "DENIED_QUOTA"
	DecisionDeniedUntrustedModel Decision = "DENIED_UNTRUSTED_MODEL"
	DecisionError                Decision = "ERROR"
)

// Decisions lists every decision, in a stable order.
var Decisions = []Decision{
	DecisionAllowed,
	DecisionDeniedAuth,
	DecisionDeniedQuota,
	DecisionDeniedUntrustedModel,
	DecisionError,
}

func (d Decision) Valid() bool {
	switch d {
	case DecisionAllowed, DecisionDeniedAuth, DecisionDeniedQuota, DecisionDeniedUntrustedModel, DecisionError:
		return true
	}
	return false
}

// AuditEvent is an append-only record of one decision.
type AuditEvent struct {
	ID           string
	Timestamp    time.Time
	RequestID    string
	Identity     Identity // empty when authentication failed
	Decision     Decision
	Latency      time.Duration
	Detail       string
	ModelVersion string
}
