package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
)

var (
	ErrNotFound = errors.New("store: not found")

	// ErrUnavailable wraps any failure to reach a backing store. Callers map
	// it onto the dependency error category.
	ErrUnavailable = errors.New("store: unavailable")
)

// CounterStore is the shared counter used for admission control. The only
// mutation is an atomic increment that also sets the key's expiry when the
// increment created it. Implementations must never take in-process locks
// spanning more than one call.
type CounterStore interface {
	// IncrWithExpiry increments key by one, setting ttl if this call created
	// the key, and returns the post-increment count and the key's remaining
	// lifetime.
	IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// AuditStore is the durable audit sink. Concrete drivers (sqlite, postgres,
// memory) implement it.
type AuditStore interface {
	AuditEvents() AuditEvents

	ApplyMigrations() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error

	Close() error
}

// AuditFilter narrows ListAuditEvents. Zero values mean "no constraint".
type AuditFilter struct {
	Identity domain.Identity
	Decision domain.Decision
	Since    time.Time
	Limit    int
}

// DefaultAuditListLimit caps ListAuditEvents when the filter sets no limit.
const DefaultAuditListLimit = 100

type AuditEvents interface {
	// AppendAuditEvents writes a batch atomically. Events are never updated.
	AppendAuditEvents(ctx context.Context, events []domain.AuditEvent) error

	// GetAuditEvent fetches one event by ID.
	GetAuditEvent(ctx context.Context, id string) (domain.AuditEvent, error)

	// ListAuditEvents returns matching events, oldest first.
	ListAuditEvents(ctx context.Context, f AuditFilter) ([]domain.AuditEvent, error)

	// DeleteAuditEventsBefore prunes events older than cutoff (retention).
	DeleteAuditEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
