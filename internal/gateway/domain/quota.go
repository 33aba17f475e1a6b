package domain

import "time"

// QuotaWindow is one fixed admission window for an identity. The count lives
// in the shared counter store; this is the view a single request sees after
// incrementing it.
type QuotaWindow struct {
	Identity    Identity
	WindowStart time.Time
	WindowSize  time.Duration
	Count       int64
	Limit       int64
}

// WindowStartFor aligns now down to a multiple of size since the Unix epoch.
func WindowStartFor(now time.Time, size time.Duration) time.Time {
	ns, step := now.UnixNano(), int64(size)
	if step <= 0 {
		return now.UTC()
	}
	start := ns - ns%step
	if ns < 0 && ns%step != 0 {
		start -= step
	}
	return time.Unix(0, start).UTC()
}

// End is when the window closes and the counter resets.
func (w QuotaWindow) End() time.Time { return w.WindowStart.Add(w.WindowSize) }

// QuotaDecision is the Admission Controller's answer for one request.
type QuotaDecision struct {
	Allowed    bool
	Window     QuotaWindow
	Remaining  int64         // max(0, limit - count)
	RetryAfter time.Duration // zero when allowed
}
