package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
	gatewayhttp "github.com/aussiebroadwan/modelgate/internal/gateway/http"
	"github.com/aussiebroadwan/modelgate/internal/gateway/metrics"
	"github.com/aussiebroadwan/modelgate/internal/gateway/service"
	"github.com/aussiebroadwan/modelgate/internal/gateway/store"
	"github.com/aussiebroadwan/modelgate/internal/gateway/store/drivers/memory"
	"github.com/aussiebroadwan/modelgate/pkg/cryptox"
	"github.com/aussiebroadwan/modelgate/pkg/httpx"
	"github.com/aussiebroadwan/modelgate/pkg/jwtx"
	"github.com/aussiebroadwan/modelgate/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const (
	aliceSecret     = "alice-secret-0123456789"
	readerSecret    = "reader-secret-012345678"
	predictorSecret = "predictor-secret-012345"
	modelVersion    = "1.0.0"
)

const irisArtifact = `{
  "format": "centroid",
  "feature_count": 4,
  "classes": [
    {"label": 0, "name": "setosa",     "centroid": [5.006, 3.428, 1.462, 0.246]},
    {"label": 1, "name": "versicolor", "centroid": [5.936, 2.770, 4.260, 1.326]},
    {"label": 2, "name": "virginica",  "centroid": [6.588, 2.974, 5.552, 2.026]}
  ]
}`

var setosa = []float64{5.1, 3.5, 1.4, 0.2}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (r *recorder) Record(e domain.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Count(d domain.Decision) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Decision == d {
			n++
		}
	}
	return n
}

func (r *recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type downStore struct{}

func (downStore) IncrWithExpiry(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, store.ErrUnavailable
}
func (downStore) Ping(context.Context) error { return store.ErrUnavailable }
func (downStore) Close() error               { return nil }

type env struct {
	clk       *clock
	rec       *recorder
	tokens    *service.TokenService
	verifier  *service.IntegrityVerifier
	admission *service.AdmissionController
	metrics   *metrics.Metrics
	router    *gatewayhttp.Router
	artifact  string
}

var relaxedTokenLimit = httpx.RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}

func newEnv(t *testing.T, limit int64, opts gatewayhttp.Options) *env {
	t.Helper()

	// Ten seconds into a window so the quota cannot roll over mid-test.
	e := &env{
		clk:     &clock{t: time.Unix(1_700_000_010, 0).UTC()},
		rec:     &recorder{},
		metrics: metrics.New(),
	}

	creds, err := service.NewCredentialStore([]service.CredentialSpec{
		{Identity: "alice", Secret: aliceSecret},
		{Identity: "reader", Secret: readerSecret, Scopes: []string{domain.ScopeModelRead}},
		{Identity: "predictor", Secret: predictorSecret, Scopes: []string{domain.ScopePredict}},
	})
	require.NoError(t, err)

	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Issuer:  "modelgate-test",
		Secrets: []jwtx.SecretSpec{{KID: "k1", Secret: "signing-secret-0123456789abcdef"}},
		Now:     e.clk.Now,
	})
	require.NoError(t, err)

	e.tokens = &service.TokenService{
		Credentials: creds,
		KeyManager:  km,
		Issuer:      "modelgate-test",
		TTL:         30 * time.Minute,
		Audit:       e.rec,
		Now:         e.clk.Now,
	}

	e.verifier = service.NewIntegrityVerifier(service.IntegrityOptions{
		Logger:  slogx.Discard(),
		Metrics: e.metrics,
		Now:     e.clk.Now,
	})
	e.artifact = filepath.Join(t.TempDir(), "iris.model.json")
	require.NoError(t, os.WriteFile(e.artifact, []byte(irisArtifact), 0o600))
	fp := cryptox.DigestBytes([]byte(irisArtifact))
	require.NoError(t, os.WriteFile(service.ManifestPathFor(e.artifact),
		[]byte("version: "+modelVersion+"\nfeature_count: 4\n"), 0o600))
	_, err = e.verifier.Load(context.Background(), e.artifact, fp, modelVersion)
	require.NoError(t, err)

	e.admission = &service.AdmissionController{
		Store:  memory.NewCounterStore(e.clk.Now),
		Limit:  limit,
		Window: time.Minute,
		Now:    e.clk.Now,
	}

	if opts.TokenLimit.RequestsPerWindow == 0 {
		opts.TokenLimit = relaxedTokenLimit
	}

	r := gatewayhttp.NewRouter(km.Verifier, "test", e.metrics, slogx.Discard(), opts)
	r.TokenService = e.tokens
	r.Models = e.verifier
	r.Dispatcher = &service.Dispatcher{
		Tokens:    e.tokens,
		Admission: e.admission,
		Models:    e.verifier,
		Audit:     e.rec,
		Metrics:   e.metrics,
		Now:       e.clk.Now,
	}
	r.CounterStore = e.admission.Store
	r.AuditSink = memory.NewAuditStore()
	r.ApplyRoutes()
	e.router = r

	return e
}

func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) token(t *testing.T, secret string) string {
	t.Helper()
	tok, err := e.tokens.Issue(context.Background(), secret)
	require.NoError(t, err)
	return tok.Raw
}

func (e *env) predict(token string, features []float64) *httptest.ResponseRecorder {
	body, _ := json.Marshal(map[string]any{"features": features})
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.do(req)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
