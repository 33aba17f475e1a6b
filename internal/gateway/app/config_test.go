package app_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/app"
	"github.com/aussiebroadwan/modelgate/internal/gateway/service"
	"github.com/aussiebroadwan/modelgate/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := app.LoadConfig("")
		require.NoError(t, err)

		require.Equal(t, "modelgate", cfg.Issuer)
		require.Equal(t, 30*time.Minute, cfg.TokenTTL)
		require.Equal(t, 5*time.Second, cfg.ClockSkew)
		require.EqualValues(t, 10, cfg.RateLimit)
		require.Equal(t, time.Minute, cfg.RateWindow)
		require.Equal(t, app.CounterStoreMemory, cfg.CounterStore)
		require.Equal(t, 5*time.Minute, cfg.ReverifyInterval)
		require.Equal(t, 2*time.Second, cfg.PredictTimeout)
		require.Equal(t, app.AuditSinkSQLite, cfg.AuditSink)
		require.Equal(t, 1024, cfg.AuditBuffer)
		require.Equal(t, 8080, cfg.Port)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("GATEWAY_ISSUER", "gw-test")
		t.Setenv("GATEWAY_SIGNING_SECRETS", "k2=second-secret-0123456789,k1=first-secret-0123456789")
		t.Setenv("GATEWAY_CREDENTIALS", "alice=alice-secret-0123456789|predict,bob=bob-secret-0123456789")
		t.Setenv("GATEWAY_RATE_LIMIT", "5")
		t.Setenv("GATEWAY_RATE_WINDOW", "30s")
		t.Setenv("GATEWAY_TOKEN_TTL", "15") // bare integers are minutes
		t.Setenv("GATEWAY_REDIS_ADDR", "localhost:6379")
		t.Setenv("GATEWAY_CORS_ORIGINS", "https://a.example, https://b.example")

		cfg, err := app.LoadConfig("")
		require.NoError(t, err)

		require.Equal(t, "gw-test", cfg.Issuer)
		require.Equal(t, []jwtx.SecretSpec{
			{KID: "k2", Secret: "second-secret-0123456789"},
			{KID: "k1", Secret: "first-secret-0123456789"},
		}, cfg.SigningSecrets)
		require.Len(t, cfg.Credentials, 2)
		require.Equal(t, "alice", cfg.Credentials[0].Identity)
		require.Equal(t, []string{"predict"}, cfg.Credentials[0].Scopes)
		require.EqualValues(t, 5, cfg.RateLimit)
		require.Equal(t, 30*time.Second, cfg.RateWindow)
		require.Equal(t, 15*time.Minute, cfg.TokenTTL)
		require.Equal(t, app.CounterStoreRedis, cfg.CounterStore, "redis address selects the redis store")
		require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	})

	t.Run("unparseable values keep the default", func(t *testing.T) {
		t.Setenv("GATEWAY_RATE_LIMIT", "lots")
		t.Setenv("GATEWAY_PREDICT_TIMEOUT", "soon")

		cfg, err := app.LoadConfig("")
		require.NoError(t, err)
		require.EqualValues(t, 10, cfg.RateLimit)
		require.Equal(t, 2*time.Second, cfg.PredictTimeout)
	})

	t.Run("file overlay with env precedence", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "gateway.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
issuer: from-file
rate_limit: 7
rate_window: 2m
counter_store: memory
signing_secrets:
  - kid: file-key
    secret: file-secret-0123456789
credentials:
  - identity: carol
    secret: carol-secret-0123456789
    scopes: [model:read]
model_path: /models/iris.json
model_fingerprint: abc123
model_version: "1.0.0"
audit_sink: log
`), 0o600))
		t.Setenv("GATEWAY_RATE_LIMIT", "3")

		cfg, err := app.LoadConfig(path)
		require.NoError(t, err)

		require.Equal(t, "from-file", cfg.Issuer)
		require.EqualValues(t, 3, cfg.RateLimit, "environment wins over the file")
		require.Equal(t, 2*time.Minute, cfg.RateWindow)
		require.Equal(t, []jwtx.SecretSpec{{KID: "file-key", Secret: "file-secret-0123456789"}}, cfg.SigningSecrets)
		require.Equal(t, "carol", cfg.Credentials[0].Identity)
		require.Equal(t, []string{"model:read"}, cfg.Credentials[0].Scopes)
		require.Equal(t, "1.0.0", cfg.ModelVersion)
		require.Equal(t, app.AuditSinkLog, cfg.AuditSink)
		require.NoError(t, cfg.Validate())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := app.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("malformed signing secrets", func(t *testing.T) {
		t.Setenv("GATEWAY_SIGNING_SECRETS", "no-equals-sign-here")
		_, err := app.LoadConfig("")
		require.ErrorContains(t, err, "GATEWAY_SIGNING_SECRETS")
		require.NotContains(t, err.Error(), "no-equals-sign-here")
	})
}

func TestConfigValidate(t *testing.T) {
	valid := func() app.Config {
		cfg := app.DefaultConfig()
		cfg.CounterStore = app.CounterStoreMemory
		cfg.SigningSecrets = []jwtx.SecretSpec{{KID: "k1", Secret: "signing-secret-0123456789"}}
		cfg.Credentials = []service.CredentialSpec{{Identity: "alice", Secret: "alice-secret-0123456789"}}
		cfg.ModelPath = "/models/iris.json"
		cfg.ModelFingerprint = "abc"
		cfg.ModelVersion = "1.0.0"
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*app.Config)
		want   string
	}{
		{"no signing secret", func(c *app.Config) { c.SigningSecrets = nil }, "signing secret"},
		{"short signing secret", func(c *app.Config) { c.SigningSecrets[0].Secret = "short" }, "at least 16 bytes"},
		{"duplicate kid", func(c *app.Config) {
			c.SigningSecrets = append(c.SigningSecrets, c.SigningSecrets[0])
		}, "duplicate signing key id"},
		{"no credentials", func(c *app.Config) { c.Credentials = nil }, "credential"},
		{"no fingerprint", func(c *app.Config) { c.ModelFingerprint = "" }, "fingerprint"},
		{"no model version", func(c *app.Config) { c.ModelVersion = "" }, "model version"},
		{"zero rate limit", func(c *app.Config) { c.RateLimit = 0 }, "rate limit"},
		{"negative window", func(c *app.Config) { c.RateWindow = -time.Second }, "rate window"},
		{"redis without address", func(c *app.Config) { c.CounterStore = app.CounterStoreRedis }, "GATEWAY_REDIS_ADDR"},
		{"unknown counter store", func(c *app.Config) { c.CounterStore = "etcd" }, "unknown counter store"},
		{"unknown audit sink", func(c *app.Config) { c.AuditSink = "kafka" }, "unknown audit sink"},
		{"postgres without dsn", func(c *app.Config) {
			c.AuditSink = app.AuditSinkPostgres
			c.AuditDatabase = ""
		}, "GATEWAY_AUDIT_DATABASE"},
		{"port out of range", func(c *app.Config) { c.Port = 70000 }, "port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	t.Run("reports every problem", func(t *testing.T) {
		err := app.Config{}.Validate()
		require.ErrorContains(t, err, "issuer is required")
		require.ErrorContains(t, err, "model path is required")
		require.ErrorContains(t, err, "audit buffer must be positive")
	})
}
