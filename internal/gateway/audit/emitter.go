// Package audit buffers decision events and ships them to the audit sink
// without ever blocking the request path.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
	"github.com/aussiebroadwan/modelgate/internal/gateway/metrics"
	"github.com/aussiebroadwan/modelgate/pkg/idx"
)

const (
	DefaultCapacity     = 1024
	DefaultBatchSize    = 64
	DefaultMinBackoff   = 100 * time.Millisecond
	DefaultMaxBackoff   = 5 * time.Second
	DefaultWriteTimeout = 5 * time.Second
)

// ErrUnflushed is returned by Close when events were still queued.
var ErrUnflushed = errors.New("audit: events left unflushed")

// Sink is the write side of the audit store.
type Sink interface {
	AppendAuditEvents(ctx context.Context, events []domain.AuditEvent) error
}

// Recorder is what request handlers depend on.
type Recorder interface {
	Record(e domain.AuditEvent)
}

type Options struct {
	Capacity     int
	BatchSize    int
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// Emitter is a bounded drop-oldest queue drained by a single worker. A
// failed batch stays at the head of the queue and is retried with
// exponential backoff; the capacity bound still applies while it waits.
type Emitter struct {
	sink Sink
	opts Options

	mu      sync.Mutex
	buf     []domain.AuditEvent
	head    int
	n       int
	headSeq uint64 // sequence number of buf[head]
	dropped uint64
	closed  bool

	flushCtx context.Context

	notify chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

var _ Recorder = (*Emitter)(nil)

func NewEmitter(sink Sink, opts Options) *Emitter {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = DefaultMinBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Emitter{
		sink:   sink,
		opts:   opts,
		buf:    make([]domain.AuditEvent, opts.Capacity),
		notify: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the worker.
func (e *Emitter) Start() {
	go e.run()
	e.opts.Logger.Info("audit emitter started", "capacity", e.opts.Capacity)
}

// Record enqueues ev. It never blocks: when the queue is full the oldest
// event is discarded and the overflow counter incremented.
func (e *Emitter) Record(ev domain.AuditEvent) {
	if ev.ID == "" {
		ev.ID = idx.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.opts.Now().UTC()
	}

	e.mu.Lock()
	if e.closed {
		e.dropped++
		e.mu.Unlock()
		e.opts.Metrics.AuditOverflow()
		e.opts.Logger.Warn("audit event recorded after close", "event_id", ev.ID, "decision", ev.Decision)
		return
	}

	overflow := false
	if e.n == len(e.buf) {
		e.buf[e.head] = domain.AuditEvent{}
		e.head = (e.head + 1) % len(e.buf)
		e.headSeq++
		e.n--
		e.dropped++
		overflow = true
	}
	e.buf[(e.head+e.n)%len(e.buf)] = ev
	e.n++
	pending := e.n
	e.mu.Unlock()

	if overflow {
		e.opts.Metrics.AuditOverflow()
	}
	e.opts.Metrics.SetAuditBuffered(pending)

	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// Pending is the number of queued events.
func (e *Emitter) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.n
}

// Dropped is the number of events lost to overflow.
func (e *Emitter) Dropped() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Close stops accepting events and flushes the queue until it is empty or
// ctx is done.
func (e *Emitter) Close(ctx context.Context) error {
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.flushCtx = ctx
		e.mu.Unlock()
		close(e.stopCh)
	})

	select {
	case <-e.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	if left := e.Pending(); left > 0 {
		e.opts.Logger.Error("audit emitter closed with unflushed events", "pending", left)
		return ErrUnflushed
	}
	e.opts.Logger.Info("audit emitter stopped")
	return nil
}

func (e *Emitter) run() {
	defer close(e.doneCh)

	for {
		select {
		case <-e.notify:
			if !e.drain(nil) {
				e.finalFlush()
				return
			}
		case <-e.stopCh:
			e.finalFlush()
			return
		}
	}
}

func (e *Emitter) finalFlush() {
	e.mu.Lock()
	ctx := e.flushCtx
	e.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	e.drain(ctx.Done())
}

// drain writes batches until the queue is empty. It returns false when the
// stop signal arrived while backing off. abort, when non-nil, ends the
// drain early.
func (e *Emitter) drain(abort <-chan struct{}) bool {
	backoff := e.opts.MinBackoff

	for {
		batch, seq := e.peek()
		if len(batch) == 0 {
			return true
		}

		if err := e.write(batch); err != nil {
			e.opts.Metrics.AuditSinkError()
			e.opts.Logger.Warn("audit sink write failed",
				"error", err,
				"batch", len(batch),
				"retry_in", backoff,
			)

			stop := e.stopCh
			if abort != nil {
				stop = nil
			}
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-stop:
				timer.Stop()
				return false
			case <-abort:
				timer.Stop()
				return true
			}
			backoff = min(backoff*2, e.opts.MaxBackoff)
			continue
		}

		backoff = e.opts.MinBackoff
		e.commit(seq + uint64(len(batch)))
	}
}

func (e *Emitter) write(batch []domain.AuditEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.WriteTimeout)
	defer cancel()
	return e.sink.AppendAuditEvents(ctx, batch)
}

// peek copies up to BatchSize events from the head without removing them.
func (e *Emitter) peek() ([]domain.AuditEvent, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	size := min(e.n, e.opts.BatchSize)
	if size == 0 {
		return nil, e.headSeq
	}
	batch := make([]domain.AuditEvent, size)
	for i := range size {
		batch[i] = e.buf[(e.head+i)%len(e.buf)]
	}
	return batch, e.headSeq
}

// commit removes every event with a sequence number below end. Events that
// overflow already discarded are skipped.
func (e *Emitter) commit(end uint64) {
	e.mu.Lock()
	for e.n > 0 && e.headSeq < end {
		e.buf[e.head] = domain.AuditEvent{}
		e.head = (e.head + 1) % len(e.buf)
		e.headSeq++
		e.n--
	}
	pending := e.n
	e.mu.Unlock()

	e.opts.Metrics.SetAuditBuffered(pending)
}
