package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
	"github.com/aussiebroadwan/modelgate/internal/gateway/store"
	"github.com/aussiebroadwan/modelgate/pkg/slogx"
)

const (
	DefaultRateLimit      = 10
	DefaultRateWindow     = time.Minute
	DefaultQuotaKeyPrefix = "modelgate:quota:"
)

// AdmissionController enforces a fixed-window request budget per identity.
// All state lives in the counter store; concurrent requests across replicas
// are ordered by its atomic increment alone.
type AdmissionController struct {
	Store     store.CounterStore
	Limit     int64
	Window    time.Duration
	KeyPrefix string
	Now       func() time.Time
}

func (a *AdmissionController) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Key is the counter key for identity's window starting at windowStart.
// Window starts are in milliseconds so sub-second windows get distinct keys.
func (a *AdmissionController) Key(identity domain.Identity, windowStart time.Time) string {
	prefix := a.KeyPrefix
	if prefix == "" {
		prefix = DefaultQuotaKeyPrefix
	}
	return prefix + string(identity) + ":" + strconv.FormatInt(windowStart.UnixMilli(), 10)
}

// CheckAndConsume counts this request against identity's current window.
// The increment is never rolled back, so denied requests still consume.
// If the store cannot be reached the error wraps ErrCounterUnavailable and
// the caller must refuse the request.
func (a *AdmissionController) CheckAndConsume(ctx context.Context, identity domain.Identity) (domain.QuotaDecision, error) {
	now := a.now()
	size := a.Window
	if size <= 0 {
		size = DefaultRateWindow
	}
	limit := a.Limit
	if limit <= 0 {
		limit = DefaultRateLimit
	}

	start := domain.WindowStartFor(now, size)
	count, _, err := a.Store.IncrWithExpiry(ctx, a.Key(identity, start), size)
	if err != nil {
		slogx.FromContext(ctx).Debug("counter store unavailable",
			slog.String("identity", identity.String()),
			slog.Any("error", err),
		)
		return domain.QuotaDecision{}, fmt.Errorf("%w: %w", domain.ErrCounterUnavailable, err)
	}

	window := domain.QuotaWindow{
		Identity:    identity,
		WindowStart: start,
		WindowSize:  size,
		Count:       count,
		Limit:       limit,
	}
	d := domain.QuotaDecision{
		Allowed:   count <= limit,
		Window:    window,
		Remaining: max(0, limit-count),
	}
	if !d.Allowed {
		d.RetryAfter = retryAfter(window.End().Sub(now))
	}
	return d, nil
}

// retryAfter rounds up to whole seconds, never below one.
func retryAfter(d time.Duration) time.Duration {
	secs := (d + time.Second - 1) / time.Second
	return max(secs, 1) * time.Second
}
