package service_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
	"github.com/aussiebroadwan/modelgate/internal/gateway/service"
	"github.com/aussiebroadwan/modelgate/pkg/cryptox"
	"github.com/aussiebroadwan/modelgate/pkg/jwtx"
	"github.com/aussiebroadwan/modelgate/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "modelgate-test"
	aliceSecret  = "alice-secret-0123456789"
	bobSecret    = "bob-secret-0123456789ab"
	readerSecret = "reader-secret-012345678"
	modelVersion = "1.0.0"
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

func newClock() *clock {
	return &clock{t: time.Unix(1_700_000_040, 0).UTC()}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recorder collects audit events in memory.
type recorder struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (r *recorder) Record(e domain.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Events() []domain.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuditEvent(nil), r.events...)
}

func (r *recorder) Count(d domain.Decision) int {
	n := 0
	for _, e := range r.Events() {
		if e.Decision == d {
			n++
		}
	}
	return n
}

func newCredentials(t *testing.T) *service.CredentialStore {
	t.Helper()
	creds, err := service.NewCredentialStore([]service.CredentialSpec{
		{Identity: "alice", Secret: aliceSecret},
		{Identity: "bob", Secret: bobSecret},
		{Identity: "reader", Secret: readerSecret, Scopes: []string{domain.ScopeModelRead}},
	})
	require.NoError(t, err)
	return creds
}

func newTokenService(t *testing.T, clk *clock, rec *recorder) *service.TokenService {
	t.Helper()
	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Issuer:  testIssuer,
		Secrets: []jwtx.SecretSpec{{KID: "k1", Secret: "signing-secret-0123456789abcdef"}},
		Now:     clk.Now,
	})
	require.NoError(t, err)

	s := &service.TokenService{
		Credentials: newCredentials(t),
		KeyManager:  km,
		Issuer:      testIssuer,
		TTL:         30 * time.Minute,
		Now:         clk.Now,
	}
	if rec != nil {
		s.Audit = rec
	}
	return s
}

// writeArtifact writes the artifact and a YAML manifest into a temp dir and
// returns the artifact path and its fingerprint.
func writeArtifact(t *testing.T, body, version string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "iris.model.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	fp := cryptox.DigestBytes([]byte(body))
	manifest := "version: " + version + "\nfingerprint: " + fp + "\nfeature_count: 4\n"
	require.NoError(t, os.WriteFile(service.ManifestPathFor(path), []byte(manifest), 0o600))
	return path, fp
}

func newVerifier(rec *recorder, clk *clock) *service.IntegrityVerifier {
	opts := service.IntegrityOptions{Logger: slogx.Discard(), Now: clk.Now}
	if rec != nil {
		opts.Audit = rec
	}
	return service.NewIntegrityVerifier(opts)
}

func loadTrusted(t *testing.T, v *service.IntegrityVerifier) string {
	t.Helper()
	path, fp := writeArtifact(t, irisArtifact, modelVersion)
	art, err := v.Load(context.Background(), path, fp, modelVersion)
	require.NoError(t, err)
	require.True(t, art.Trusted)
	return path
}
