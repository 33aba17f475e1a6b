package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
	"github.com/aussiebroadwan/modelgate/internal/gateway/store"
)

// AuditStore keeps audit events in memory. Useful for development and tests;
// everything is lost on restart.
type AuditStore struct {
	mu     sync.RWMutex
	events []domain.AuditEvent
	byID   map[string]int

	failWith error
}

func NewAuditStore() *AuditStore {
	return &AuditStore{byID: make(map[string]int)}
}

func (s *AuditStore) AuditEvents() store.AuditEvents { return s }
func (s *AuditStore) ApplyMigrations() error         { return nil }
func (s *AuditStore) Ping(ctx context.Context) error { return ctx.Err() }
func (s *AuditStore) Close() error                   { return nil }

func (s *AuditStore) AppendAuditEvents(ctx context.Context, events []domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}
	for _, e := range events {
		s.byID[e.ID] = len(s.events)
		s.events = append(s.events, e)
	}
	return nil
}

func (s *AuditStore) GetAuditEvent(ctx context.Context, id string) (domain.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return domain.AuditEvent{}, store.ErrNotFound
	}
	return s.events[i], nil
}

func (s *AuditStore) ListAuditEvents(ctx context.Context, f store.AuditFilter) ([]domain.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 {
		limit = store.DefaultAuditListLimit
	}

	var out []domain.AuditEvent
	for _, e := range s.events {
		if f.Identity != "" && e.Identity != f.Identity {
			continue
		}
		if f.Decision != "" && e.Decision != f.Decision {
			continue
		}
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *AuditStore) DeleteAuditEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := slices.DeleteFunc(slices.Clone(s.events), func(e domain.AuditEvent) bool {
		return e.Timestamp.Before(cutoff)
	})
	removed := int64(len(s.events) - len(kept))

	s.events = kept
	s.byID = make(map[string]int, len(kept))
	for i, e := range kept {
		s.byID[e.ID] = i
	}
	return removed, nil
}

// SetFailure makes every subsequent write fail with err until cleared with
// nil. Used to simulate an unreachable sink.
func (s *AuditStore) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Len reports the number of stored events.
func (s *AuditStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
