package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"slices"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/audit"
	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
	"github.com/aussiebroadwan/modelgate/internal/gateway/metrics"
	"github.com/aussiebroadwan/modelgate/internal/gateway/model"
	"github.com/aussiebroadwan/modelgate/pkg/slogx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultPredictTimeout = 2 * time.Second

// State is a stage of the per-request dispatch state machine.
type State string

const (
	StateReceived      State = "RECEIVED"
	StateAuthenticated State = "AUTHENTICATED"
	StateAdmitted      State = "ADMITTED"
	StateModelReady    State = "MODEL_READY"
	StatePredicted     State = "PREDICTED"
	StateResponded     State = "RESPONDED"
	StateRejected      State = "REJECTED"
)

type TokenValidator interface {
	Validate(ctx context.Context, raw string) (domain.Principal, error)
}

type Admitter interface {
	CheckAndConsume(ctx context.Context, identity domain.Identity) (domain.QuotaDecision, error)
}

type SnapshotSource interface {
	Current() *Snapshot
}

type PredictRequest struct {
	Token    string
	Features []float64
}

// Outcome is everything the transport needs to render a response. It is
// filled as far as the request got.
type Outcome struct {
	State        State
	Decision     domain.Decision // empty when the input was rejected
	Principal    domain.Principal
	Quota        domain.QuotaDecision
	Prediction   model.Prediction
	ModelVersion string
	Timestamp    time.Time
}

// Dispatcher runs one prediction request through authentication, admission,
// the integrity gate and the model. It holds no state of its own.
type Dispatcher struct {
	Tokens         TokenValidator
	Admission      Admitter
	Models         SnapshotSource
	Audit          audit.Recorder
	Metrics        *metrics.Metrics
	PredictTimeout time.Duration
	Now            func() time.Time
}

var tracer = otel.Tracer("modelgate/dispatcher")

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// ValidateFeatures checks the predict input: a non-empty list of arity
// finite, non-negative numbers.
func ValidateFeatures(features []float64, arity int) error {
	if len(features) == 0 {
		return domain.NewValidationError("features", "must not be empty")
	}
	if len(features) != arity {
		return domain.NewValidationError("features", fmt.Sprintf("expected %d values, got %d", arity, len(features)))
	}
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.NewValidationError(fmt.Sprintf("features[%d]", i), "must be a finite number")
		}
		if v < 0 {
			return domain.NewValidationError(fmt.Sprintf("features[%d]", i), "must be non-negative")
		}
	}
	return nil
}

func (d *Dispatcher) arity() int {
	if snap := d.Models.Current(); snap.Serving() {
		return snap.Model.FeatureCount()
	}
	return model.DefaultFeatureCount
}

// Dispatch runs req to completion. Invalid input is rejected before any
// quota is used and produces no audit event; every other path records
// exactly one. The caller's cancellation does not interrupt dispatch, only
// the response write.
func (d *Dispatcher) Dispatch(ctx context.Context, req PredictRequest) (out Outcome, err error) {
	start := d.now()
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "gateway.dispatch")
	defer span.End()

	out.State = StateReceived

	if verr := ValidateFeatures(req.Features, d.arity()); verr != nil {
		d.metrics().ValidationFailure()
		out.State = StateRejected
		span.SetAttributes(attribute.String("gateway.rejected", "validation"))
		slogx.FromContext(ctx).Info("predict input rejected", slog.Any("error", verr))
		return out, verr
	}

	// Anything that escapes below, panics included, is an ERROR.
	decision, detail := domain.DecisionError, "internal error"
	defer func() {
		out.Decision = decision
		d.finish(ctx, span, start, out, detail, err)
	}()

	reject := func(dec domain.Decision, e error) (Outcome, error) {
		decision, detail = dec, e.Error()
		out.State = StateRejected
		return out, e
	}

	principal, err := d.Tokens.Validate(ctx, req.Token)
	if err != nil {
		return reject(domain.DecisionDeniedAuth, err)
	}
	out.Principal = principal
	if !slices.Contains(principal.Scopes, domain.ScopePredict) {
		return reject(domain.DecisionDeniedAuth, domain.ErrMissingScope)
	}
	d.advance(span, &out, StateAuthenticated)

	q, err := d.Admission.CheckAndConsume(ctx, principal.Identity)
	if err != nil {
		return reject(domain.DecisionError, err)
	}
	out.Quota = q
	d.metrics().ObserveQuotaRemaining(q.Remaining)
	if !q.Allowed {
		return reject(domain.DecisionDeniedQuota, domain.ErrQuotaExceeded)
	}
	d.advance(span, &out, StateAdmitted)

	// Captured once: a concurrent quarantine does not affect this request.
	snap := d.Models.Current()
	out.ModelVersion = snap.Artifact.Version
	if !snap.Serving() {
		return reject(domain.DecisionDeniedUntrustedModel,
			fmt.Errorf("%w: %s", domain.ErrModelUntrusted, snap.Artifact.Reason))
	}
	d.advance(span, &out, StateModelReady)

	pred, err := d.predict(ctx, snap.Model, req.Features)
	if err != nil {
		return reject(domain.DecisionError, err)
	}
	out.Prediction = pred
	out.Timestamp = d.now().UTC()
	d.advance(span, &out, StatePredicted)
	d.metrics().PredictionServed()

	decision, detail = domain.DecisionAllowed, "ok"
	d.advance(span, &out, StateResponded)
	return out, nil
}

// unexported collectors used when no Metrics is wired in.
var discardMetrics = metrics.New()

func (d *Dispatcher) metrics() *metrics.Metrics {
	if d.Metrics != nil {
		return d.Metrics
	}
	return discardMetrics
}

func (d *Dispatcher) advance(span trace.Span, out *Outcome, s State) {
	out.State = s
	span.AddEvent(string(s))
}

// predict runs the model under the predict timeout, turning panics and
// deadline overruns into internal errors.
func (d *Dispatcher) predict(ctx context.Context, m model.Model, features []float64) (model.Prediction, error) {
	timeout := d.PredictTimeout
	if timeout <= 0 {
		timeout = DefaultPredictTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "gateway.model.predict")
	defer span.End()

	type result struct {
		p   model.Prediction
		err error
	}
	ch := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slogx.FromContext(ctx).Error("model predict panicked",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				ch <- result{err: fmt.Errorf("%w: panic: %v", domain.ErrPredictFailed, r)}
			}
		}()
		p, err := m.Predict(ctx, slices.Clone(features))
		ch <- result{p: p, err: err}
	}()

	select {
	case r := <-ch:
		switch {
		case r.err == nil:
			return r.p, nil
		case errors.Is(r.err, domain.ErrInternal):
			return model.Prediction{}, r.err
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return model.Prediction{}, domain.ErrPredictTimeout
		default:
			return model.Prediction{}, fmt.Errorf("%w: %w", domain.ErrPredictFailed, r.err)
		}
	case <-ctx.Done():
		return model.Prediction{}, domain.ErrPredictTimeout
	}
}

func (d *Dispatcher) finish(ctx context.Context, span trace.Span, start time.Time, out Outcome, detail string, err error) {
	latency := d.now().Sub(start)
	l := slogx.FromContext(ctx)

	if d.Audit != nil {
		d.Audit.Record(domain.AuditEvent{
			Timestamp:    start.UTC().Truncate(time.Microsecond),
			RequestID:    slogx.RequestID(ctx),
			Identity:     out.Principal.Identity,
			Decision:     out.Decision,
			Latency:      latency,
			Detail:       detail,
			ModelVersion: out.ModelVersion,
		})
	}
	d.metrics().RecordDecision(out.Decision, latency)

	span.SetAttributes(
		attribute.String("gateway.decision", string(out.Decision)),
		attribute.String("gateway.state", string(out.State)),
		attribute.String("gateway.identity", out.Principal.Identity.String()),
	)

	attrs := []any{
		slog.String("decision", string(out.Decision)),
		slog.String("identity", out.Principal.Identity.String()),
		slog.Duration("latency", latency),
	}
	switch out.Decision {
	case domain.DecisionAllowed:
		l.Info("prediction served", append(attrs, slog.Int("class", out.Prediction.Class))...)
	case domain.DecisionDeniedAuth, domain.DecisionDeniedQuota:
		l.Info("prediction denied", append(attrs, slog.String("detail", detail))...)
	default:
		span.SetStatus(codes.Error, detail)
		if err != nil {
			span.RecordError(err)
		}
		l.Error("prediction failed", append(attrs, slog.String("detail", detail), slog.Any("error", err))...)
	}
}
