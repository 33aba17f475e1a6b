package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/store"
)

// HousekeepingService periodically prunes audit events older than the
// retention period so the sink does not grow without bound.
type HousekeepingService struct {
	Events    store.AuditEvents
	Logger    *slog.Logger
	Interval  time.Duration
	Retention time.Duration
	Now       func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(events store.AuditEvents, logger *slog.Logger, interval, retention time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}

	return &HousekeepingService{
		Events:    events,
		Logger:    logger,
		Interval:  interval,
		Retention: retention,
		Now:       time.Now,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop() to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "retention", s.Retention)
}

// Stop blocks until any in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup deletes audit events older than the retention period and returns
// how many were removed.
func (s *HousekeepingService) Cleanup(ctx context.Context) int64 {
	cutoff := s.Now().Add(-s.Retention)

	n, err := s.Events.DeleteAuditEventsBefore(ctx, cutoff)
	if err != nil {
		s.Logger.Error("failed to prune audit events", "error", err)
		return 0
	}

	s.Logger.Info("housekeeping cleanup completed", "deleted_audit_events", n, "cutoff", cutoff)
	return n
}
