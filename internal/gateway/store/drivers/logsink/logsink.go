// Package logsink writes audit events as structured log lines. It keeps no
// copy of what it writes, so read-back operations are unsupported.
package logsink

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
	"github.com/aussiebroadwan/modelgate/internal/gateway/store"
)

// ErrReadUnsupported is returned by the read-back operations.
var ErrReadUnsupported = errors.New("logsink: read-back not supported")

type Store struct {
	logger *slog.Logger
}

var _ store.AuditStore = (*Store)(nil)

// New writes through logger, tagging every line with type=audit.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger.With(slog.String("type", "audit"))}
}

func (s *Store) AuditEvents() store.AuditEvents { return s }
func (s *Store) ApplyMigrations() error         { return nil }
func (s *Store) Ping(context.Context) error     { return nil }
func (s *Store) Close() error                   { return nil }

func (s *Store) AppendAuditEvents(ctx context.Context, events []domain.AuditEvent) error {
	for _, e := range events {
		level := slog.LevelInfo
		switch e.Decision {
		case domain.DecisionDeniedUntrustedModel, domain.DecisionError:
			level = slog.LevelError
		case domain.DecisionDeniedAuth, domain.DecisionDeniedQuota:
			level = slog.LevelWarn
		}
		s.logger.LogAttrs(ctx, level, "audit_event",
			slog.String("event_id", e.ID),
			slog.Time("ts", e.Timestamp.UTC()),
			slog.String("request_id", e.RequestID),
			slog.String("identity", string(e.Identity)),
			slog.String("decision", string(e.Decision)),
			slog.Int64("latency_us", e.Latency.Microseconds()),
			slog.String("detail", e.Detail),
			slog.String("model_version", e.ModelVersion),
		)
	}
	return nil
}

func (s *Store) GetAuditEvent(context.Context, string) (domain.AuditEvent, error) {
	return domain.AuditEvent{}, ErrReadUnsupported
}

func (s *Store) ListAuditEvents(context.Context, store.AuditFilter) ([]domain.AuditEvent, error) {
	return nil, ErrReadUnsupported
}

func (s *Store) DeleteAuditEventsBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}
