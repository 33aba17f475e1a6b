package service_test

import (
	"context"
	"errors"
	"math"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
	"github.com/aussiebroadwan/modelgate/internal/gateway/model"
	"github.com/aussiebroadwan/modelgate/internal/gateway/service"
	"github.com/aussiebroadwan/modelgate/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type harness struct {
	clk      *clock
	rec      *recorder
	tokens   *service.TokenService
	verifier *service.IntegrityVerifier
	d        *service.Dispatcher
	path     string
}

func newHarness(t *testing.T, limit int64) *harness {
	t.Helper()
	h := &harness{clk: newClock(), rec: &recorder{}}
	h.tokens = newTokenService(t, h.clk, nil)
	h.verifier = newVerifier(h.rec, h.clk)
	h.path = loadTrusted(t, h.verifier)
	h.d = &service.Dispatcher{
		Tokens:         h.tokens,
		Admission:      newAdmission(h.clk, limit),
		Models:         h.verifier,
		Audit:          h.rec,
		PredictTimeout: time.Second,
		Now:            h.clk.Now,
	}
	return h
}

func (h *harness) token(t *testing.T, secret string) string {
	t.Helper()
	tok, err := h.tokens.Issue(context.Background(), secret)
	require.NoError(t, err)
	return tok.Raw
}

// dispatchEvents returns audit events produced by dispatch, ignoring those
// from artifact loading.
func (h *harness) dispatchEvents() []domain.AuditEvent {
	var out []domain.AuditEvent
	for _, e := range h.rec.Events() {
		if strings.HasPrefix(e.Detail, "integrity:") {
			continue
		}
		out = append(out, e)
	}
	return out
}

type staticModels struct{ snap *service.Snapshot }

func (s staticModels) Current() *service.Snapshot { return s.snap }

func TestDispatch_Allowed(t *testing.T) {
	h := newHarness(t, 5)
	ctx := slogx.WithRequestID(context.Background(), "req-1")

	out, err := h.d.Dispatch(ctx, service.PredictRequest{Token: h.token(t, aliceSecret), Features: setosa})
	require.NoError(t, err)
	require.Equal(t, service.StateResponded, out.State)
	require.Equal(t, domain.DecisionAllowed, out.Decision)
	require.Equal(t, 0, out.Prediction.Class)
	require.Len(t, out.Prediction.Probabilities, 3)
	require.Equal(t, modelVersion, out.ModelVersion)
	require.EqualValues(t, 4, out.Quota.Remaining)
	require.Equal(t, h.clk.Now(), out.Timestamp)

	events := h.dispatchEvents()
	require.Len(t, events, 1)
	require.Equal(t, domain.DecisionAllowed, events[0].Decision)
	require.Equal(t, domain.Identity("alice"), events[0].Identity)
	require.Equal(t, "req-1", events[0].RequestID)
	require.Equal(t, modelVersion, events[0].ModelVersion)
}

func TestDispatch_QuotaSequence(t *testing.T) {
	h := newHarness(t, 5)
	tok := h.token(t, aliceSecret)

	for i := range 5 {
		out, err := h.d.Dispatch(context.Background(), service.PredictRequest{Token: tok, Features: setosa})
		require.NoError(t, err, "request %d", i+1)
		require.Equal(t, domain.DecisionAllowed, out.Decision)
	}

	out, err := h.d.Dispatch(context.Background(), service.PredictRequest{Token: tok, Features: setosa})
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)
	require.Equal(t, domain.DecisionDeniedQuota, out.Decision)
	require.Equal(t, service.StateRejected, out.State)
	require.Zero(t, out.Quota.Remaining)
	require.LessOrEqual(t, out.Quota.RetryAfter, time.Minute)

	require.Len(t, h.dispatchEvents(), 6)
	require.Equal(t, 5, h.rec.Count(domain.DecisionAllowed))
	require.Equal(t, 1, h.rec.Count(domain.DecisionDeniedQuota))
}

func TestDispatch_ValidationConsumesNothing(t *testing.T) {
	h := newHarness(t, 1)
	tok := h.token(t, aliceSecret)

	bad := [][]float64{
		nil,
		{1, 2, 3},
		{1, 2, 3, 4, 5},
		{5.1, -3.5, 1.4, 0.2},
		{5.1, math.NaN(), 1.4, 0.2},
		{5.1, 3.5, math.Inf(1), 0.2},
	}
	for _, f := range bad {
		out, err := h.d.Dispatch(context.Background(), service.PredictRequest{Token: tok, Features: f})
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr, "features %v", f)
		require.ErrorIs(t, err, domain.ErrValidation)
		require.Equal(t, service.StateRejected, out.State)
		require.Empty(t, out.Decision)
	}
	require.Empty(t, h.dispatchEvents())

	// The single allowed request is still available.
	_, err := h.d.Dispatch(context.Background(), service.PredictRequest{Token: tok, Features: setosa})
	require.NoError(t, err)
}

func TestDispatch_DeniedAuth(t *testing.T) {
	h := newHarness(t, 5)

	t.Run("bad token", func(t *testing.T) {
		out, err := h.d.Dispatch(context.Background(), service.PredictRequest{Token: "garbage", Features: setosa})
		require.ErrorIs(t, err, domain.ErrMalformedToken)
		require.Equal(t, domain.DecisionDeniedAuth, out.Decision)
		require.Empty(t, out.Principal.Identity)
	})

	t.Run("missing predict scope", func(t *testing.T) {
		out, err := h.d.Dispatch(context.Background(), service.PredictRequest{Token: h.token(t, readerSecret), Features: setosa})
		require.ErrorIs(t, err, domain.ErrMissingScope)
		require.Equal(t, domain.DecisionDeniedAuth, out.Decision)
		require.Equal(t, domain.Identity("reader"), out.Principal.Identity)
	})

	t.Run("expired", func(t *testing.T) {
		tok := h.token(t, aliceSecret)
		h.clk.Advance(time.Hour)
		defer h.clk.Advance(-time.Hour)

		_, err := h.d.Dispatch(context.Background(), service.PredictRequest{Token: tok, Features: setosa})
		require.ErrorIs(t, err, domain.ErrExpiredToken)
	})

	require.Equal(t, 3, h.rec.Count(domain.DecisionDeniedAuth))
}

func TestDispatch_CounterStoreDown(t *testing.T) {
	h := newHarness(t, 5)
	h.d.Admission = &service.AdmissionController{Store: downStore{}, Limit: 5, Window: time.Minute}

	out, err := h.d.Dispatch(context.Background(), service.PredictRequest{Token: h.token(t, aliceSecret), Features: setosa})
	require.ErrorIs(t, err, domain.ErrCounterUnavailable)
	require.Equal(t, domain.DecisionError, out.Decision)
	require.Equal(t, 1, h.rec.Count(domain.DecisionError))
	require.Zero(t, h.rec.Count(domain.DecisionDeniedQuota))
}

func TestDispatch_UntrustedModelNeverInvoked(t *testing.T) {
	h := newHarness(t, 5)
	var calls atomic.Int32
	h.d.Models = staticModels{snap: &service.Snapshot{
		Artifact: domain.ModelArtifact{Version: modelVersion, Reason: service.ReasonFingerprintMismatch},
		Model: model.Func{Features: 4, Fn: func(context.Context, []float64) (model.Prediction, error) {
			calls.Add(1)
			return model.Prediction{}, nil
		}},
	}}

	out, err := h.d.Dispatch(context.Background(), service.PredictRequest{Token: h.token(t, aliceSecret), Features: setosa})
	require.ErrorIs(t, err, domain.ErrModelUntrusted)
	require.Equal(t, domain.DecisionDeniedUntrustedModel, out.Decision)
	require.Zero(t, calls.Load())
}

func TestDispatch_FingerprintMismatchRejects(t *testing.T) {
	h := newHarness(t, 5)
	path, _ := writeArtifact(t, irisArtifact, modelVersion)
	_, err := h.verifier.Load(context.Background(), path, "deadbeef", modelVersion)
	require.ErrorIs(t, err, domain.ErrFingerprintMismatch)

	out, err := h.d.Dispatch(context.Background(), service.PredictRequest{Token: h.token(t, aliceSecret), Features: setosa})
	require.ErrorIs(t, err, domain.ErrModelUntrusted)
	require.Equal(t, domain.DecisionDeniedUntrustedModel, out.Decision)
}

func TestDispatch_InFlightSurvivesQuarantine(t *testing.T) {
	clk := newClock()
	rec := &recorder{}
	entered := make(chan struct{}, 1)
	release := make(chan struct{})

	v := service.NewIntegrityVerifier(service.IntegrityOptions{
		Logger: slogx.Discard(),
		Now:    clk.Now,
		Audit:  rec,
		Decoder: func([]byte) (model.Model, error) {
			return model.Func{Features: 4, Fn: func(ctx context.Context, _ []float64) (model.Prediction, error) {
				select {
				case entered <- struct{}{}:
				default:
				}
				<-release
				return model.Prediction{Class: 1, Probabilities: []float64{0, 1}}, nil
			}}, nil
		},
	})
	path := loadTrusted(t, v)

	tokens := newTokenService(t, clk, nil)
	tok, err := tokens.Issue(context.Background(), aliceSecret)
	require.NoError(t, err)

	d := &service.Dispatcher{
		Tokens:         tokens,
		Admission:      newAdmission(clk, 5),
		Models:         v,
		Audit:          rec,
		PredictTimeout: 5 * time.Second,
		Now:            clk.Now,
	}

	type result struct {
		out service.Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := d.Dispatch(context.Background(), service.PredictRequest{Token: tok.Raw, Features: setosa})
		done <- result{out, err}
	}()

	<-entered
	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o600))
	_, err = v.Reverify(context.Background())
	require.ErrorIs(t, err, domain.ErrFingerprintMismatch)
	close(release)

	r := <-done
	require.NoError(t, r.err)
	require.Equal(t, domain.DecisionAllowed, r.out.Decision)
	require.Equal(t, 1, r.out.Prediction.Class)

	out, err := d.Dispatch(context.Background(), service.PredictRequest{Token: tok.Raw, Features: setosa})
	require.ErrorIs(t, err, domain.ErrModelUntrusted)
	require.Equal(t, domain.DecisionDeniedUntrustedModel, out.Decision)
}

func TestDispatch_PredictFailures(t *testing.T) {
	cases := map[string]struct {
		fn   func(ctx context.Context, f []float64) (model.Prediction, error)
		want error
	}{
		"error": {
			fn: func(context.Context, []float64) (model.Prediction, error) {
				return model.Prediction{}, errors.New("boom")
			},
			want: domain.ErrPredictFailed,
		},
		"panic": {
			fn:   func(context.Context, []float64) (model.Prediction, error) { panic("index out of range") },
			want: domain.ErrPredictFailed,
		},
		"timeout": {
			fn: func(ctx context.Context, _ []float64) (model.Prediction, error) {
				<-ctx.Done()
				return model.Prediction{}, ctx.Err()
			},
			want: domain.ErrPredictTimeout,
		},
		"ignores deadline": {
			fn: func(context.Context, []float64) (model.Prediction, error) {
				time.Sleep(200 * time.Millisecond)
				return model.Prediction{}, nil
			},
			want: domain.ErrPredictTimeout,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, 5)
			h.d.PredictTimeout = 20 * time.Millisecond
			h.d.Models = staticModels{snap: &service.Snapshot{
				Artifact: domain.ModelArtifact{Version: modelVersion, Trusted: true},
				Model:    model.Func{Features: 4, Fn: tc.fn},
			}}

			out, err := h.d.Dispatch(context.Background(), service.PredictRequest{Token: h.token(t, aliceSecret), Features: setosa})
			require.ErrorIs(t, err, tc.want)
			require.ErrorIs(t, err, domain.ErrInternal)
			require.Equal(t, domain.DecisionError, out.Decision)

			events := h.dispatchEvents()
			require.Len(t, events, 1)
			require.Equal(t, domain.DecisionError, events[0].Decision)
		})
	}
}

func TestDispatch_ClientCancelStillAudited(t *testing.T) {
	h := newHarness(t, 5)
	tok := h.token(t, aliceSecret)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := h.d.Dispatch(ctx, service.PredictRequest{Token: tok, Features: setosa})
	require.NoError(t, err)
	require.Equal(t, domain.DecisionAllowed, out.Decision)
	require.Len(t, h.dispatchEvents(), 1)
}
