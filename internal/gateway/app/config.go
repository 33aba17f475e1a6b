package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/service"
	"github.com/aussiebroadwan/modelgate/pkg/cryptox"
	"github.com/aussiebroadwan/modelgate/pkg/jwtx"
	"gopkg.in/yaml.v3"
)

const (
	CounterStoreRedis  = "redis"
	CounterStoreMemory = "memory"

	AuditSinkSQLite   = "sqlite"
	AuditSinkPostgres = "postgres"
	AuditSinkLog      = "log"
)

type Config struct {
	Issuer         string                   `yaml:"issuer"`          // Issuer claim for tokens (default: modelgate)
	SigningSecrets []jwtx.SecretSpec        `yaml:"signing_secrets"` // Required: HMAC secrets, first one signs
	Credentials    []service.CredentialSpec `yaml:"credentials"`     // Required: client credentials
	TokenTTL       time.Duration            `yaml:"token_ttl"`       // Access token lifetime (default: 30m)
	ClockSkew      time.Duration            `yaml:"clock_skew"`      // Tolerated future "iat" (default: 5s)

	RateLimit    int64         `yaml:"rate_limit"`    // Predictions per identity per window (default: 10)
	RateWindow   time.Duration `yaml:"rate_window"`   // Fixed window length (default: 1m)
	CounterStore string        `yaml:"counter_store"` // redis or memory (default: redis when an address is set)

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisTLS      bool   `yaml:"redis_tls"`

	ModelPath        string        `yaml:"model_path"`        // Required: artifact on disk
	ModelManifest    string        `yaml:"model_manifest"`    // Optional: defaults to <model_path>.manifest.yaml
	ModelFingerprint string        `yaml:"model_fingerprint"` // Required: expected SHA-256 hex
	ModelVersion     string        `yaml:"model_version"`     // Required: expected manifest version
	ReverifyInterval time.Duration `yaml:"reverify_interval"` // Periodic re-check (default: 5m)
	PredictTimeout   time.Duration `yaml:"predict_timeout"`   // Per-call model deadline (default: 2s)

	AuditSink            string        `yaml:"audit_sink"`            // sqlite, postgres or log (default: sqlite)
	AuditDatabase        string        `yaml:"audit_database"`        // sqlite file or postgres DSN (default: audit.db)
	AuditBuffer          int           `yaml:"audit_buffer"`          // Emitter queue capacity (default: 1024)
	AuditRetention       time.Duration `yaml:"audit_retention"`       // Prune events older than this; 0 keeps everything
	HousekeepingInterval time.Duration `yaml:"housekeeping_interval"` // Retention sweep interval (default: 1h)

	MetricsToken string   `yaml:"metrics_token"` // Optional bearer for /metrics
	CORSOrigins  []string `yaml:"cors_origins"`

	OTLPEndpoint string `yaml:"otlp_endpoint"` // Optional OTLP gRPC collector
	OTLPInsecure bool   `yaml:"otlp_insecure"`

	Env                 string        `yaml:"env"`        // dev, staging, prod (default: dev)
	LogLevel            string        `yaml:"log_level"`  // debug, info, warn, error (default: info)
	LogFormat           string        `yaml:"log_format"` // json, text (default: json)
	Port                int           `yaml:"port"`       // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace_period"`
}

// DefaultConfig is the configuration before any file or environment
// overrides are applied.
func DefaultConfig() Config {
	return Config{
		Issuer:               "modelgate",
		TokenTTL:             jwtx.DefaultAccessTokenTTL,
		ClockSkew:            jwtx.DefaultIssuedAtSkew,
		RateLimit:            service.DefaultRateLimit,
		RateWindow:           service.DefaultRateWindow,
		ReverifyInterval:     service.DefaultReverifyInterval,
		PredictTimeout:       service.DefaultPredictTimeout,
		AuditSink:            AuditSinkSQLite,
		AuditDatabase:        "audit.db",
		AuditBuffer:          1024,
		HousekeepingInterval: time.Hour,
		Env:                  "dev",
		LogLevel:             "info",
		LogFormat:            "json",
		Port:                 8080,
		ShutdownGracePeriod:  10 * time.Second,
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file at
// path (if any), then the environment. Environment variables win.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.CounterStore == "" {
		cfg.CounterStore = CounterStoreMemory
		if cfg.RedisAddr != "" {
			cfg.CounterStore = CounterStoreRedis
		}
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Issuer = getEnvOrDefault("GATEWAY_ISSUER", cfg.Issuer)
	cfg.TokenTTL = getEnvDurationOrDefault("GATEWAY_TOKEN_TTL", cfg.TokenTTL)
	cfg.ClockSkew = getEnvDurationOrDefault("GATEWAY_CLOCK_SKEW", cfg.ClockSkew)

	cfg.RateLimit = int64(getEnvIntOrDefault("GATEWAY_RATE_LIMIT", int(cfg.RateLimit)))
	cfg.RateWindow = getEnvDurationOrDefault("GATEWAY_RATE_WINDOW", cfg.RateWindow)
	cfg.CounterStore = getEnvOrDefault("GATEWAY_COUNTER_STORE", cfg.CounterStore)

	cfg.RedisAddr = getEnvOrDefault("GATEWAY_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnvOrDefault("GATEWAY_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvIntOrDefault("GATEWAY_REDIS_DB", cfg.RedisDB)
	cfg.RedisTLS = getEnvBoolOrDefault("GATEWAY_REDIS_TLS", cfg.RedisTLS)

	cfg.ModelPath = getEnvOrDefault("GATEWAY_MODEL_PATH", cfg.ModelPath)
	cfg.ModelManifest = getEnvOrDefault("GATEWAY_MODEL_MANIFEST", cfg.ModelManifest)
	cfg.ModelFingerprint = getEnvOrDefault("GATEWAY_MODEL_FINGERPRINT", cfg.ModelFingerprint)
	cfg.ModelVersion = getEnvOrDefault("GATEWAY_MODEL_VERSION", cfg.ModelVersion)
	cfg.ReverifyInterval = getEnvDurationOrDefault("GATEWAY_REVERIFY_INTERVAL", cfg.ReverifyInterval)
	cfg.PredictTimeout = getEnvDurationOrDefault("GATEWAY_PREDICT_TIMEOUT", cfg.PredictTimeout)

	cfg.AuditSink = getEnvOrDefault("GATEWAY_AUDIT_SINK", cfg.AuditSink)
	cfg.AuditDatabase = getEnvOrDefault("GATEWAY_AUDIT_DATABASE", cfg.AuditDatabase)
	cfg.AuditBuffer = getEnvIntOrDefault("GATEWAY_AUDIT_BUFFER", cfg.AuditBuffer)
	cfg.AuditRetention = getEnvDurationOrDefault("GATEWAY_AUDIT_RETENTION", cfg.AuditRetention)
	cfg.HousekeepingInterval = getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", cfg.HousekeepingInterval)

	cfg.MetricsToken = getEnvOrDefault("GATEWAY_METRICS_TOKEN", cfg.MetricsToken)
	if v := os.Getenv("GATEWAY_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}

	cfg.OTLPEndpoint = getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.OTLPInsecure = getEnvBoolOrDefault("OTEL_EXPORTER_OTLP_INSECURE", cfg.OTLPInsecure)

	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.Port = getEnvIntOrDefault("PORT", cfg.Port)
	cfg.ShutdownGracePeriod = getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", cfg.ShutdownGracePeriod)

	if v := os.Getenv("GATEWAY_SIGNING_SECRETS"); v != "" {
		secrets, err := ParseSigningSecrets(v)
		if err != nil {
			return err
		}
		cfg.SigningSecrets = secrets
	}
	if v := os.Getenv("GATEWAY_CREDENTIALS"); v != "" {
		creds, err := service.ParseCredentialSpecs(v)
		if err != nil {
			return fmt.Errorf("GATEWAY_CREDENTIALS: %w", err)
		}
		cfg.Credentials = creds
	}
	return nil
}

// ParseSigningSecrets reads "kid=secret,kid=secret". The first entry is the
// active signing key.
func ParseSigningSecrets(raw string) ([]jwtx.SecretSpec, error) {
	var specs []jwtx.SecretSpec
	for _, entry := range splitList(raw) {
		kid, secret, ok := strings.Cut(entry, "=")
		kid = strings.TrimSpace(kid)
		if !ok || kid == "" || secret == "" {
			return nil, fmt.Errorf("GATEWAY_SIGNING_SECRETS: entry %q is not kid=secret", redactEntry(entry))
		}
		specs = append(specs, jwtx.SecretSpec{KID: kid, Secret: secret})
	}
	return specs, nil
}

// Validate reports every problem with cfg at once.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Issuer == "" {
		add("issuer is required")
	}
	if len(c.SigningSecrets) == 0 {
		add("at least one signing secret is required")
	}
	kids := map[string]struct{}{}
	for _, s := range c.SigningSecrets {
		if len(s.Secret) < cryptox.MinSecretLength {
			add("signing secret %q must be at least %d bytes", s.KID, cryptox.MinSecretLength)
		}
		if _, dup := kids[s.KID]; dup {
			add("duplicate signing key id %q", s.KID)
		}
		kids[s.KID] = struct{}{}
	}
	if len(c.Credentials) == 0 {
		add("at least one client credential is required")
	}
	if c.TokenTTL <= 0 {
		add("token TTL must be positive")
	}
	if c.ClockSkew < 0 {
		add("clock skew must not be negative")
	}

	if c.RateLimit <= 0 {
		add("rate limit must be positive")
	}
	if c.RateWindow <= 0 {
		add("rate window must be positive")
	}
	switch c.CounterStore {
	case CounterStoreMemory:
	case CounterStoreRedis:
		if c.RedisAddr == "" {
			add("redis counter store requires GATEWAY_REDIS_ADDR")
		}
	default:
		add("unknown counter store %q", c.CounterStore)
	}

	if c.ModelPath == "" {
		add("model path is required")
	}
	if c.ModelFingerprint == "" {
		add("model fingerprint is required")
	}
	if c.ModelVersion == "" {
		add("model version is required")
	}
	if c.PredictTimeout <= 0 {
		add("predict timeout must be positive")
	}

	switch c.AuditSink {
	case AuditSinkSQLite, AuditSinkPostgres:
		if c.AuditDatabase == "" {
			add("%s audit sink requires GATEWAY_AUDIT_DATABASE", c.AuditSink)
		}
	case AuditSinkLog:
	default:
		add("unknown audit sink %q", c.AuditSink)
	}
	if c.AuditBuffer <= 0 {
		add("audit buffer must be positive")
	}
	if c.AuditRetention < 0 {
		add("audit retention must not be negative")
	}

	if c.Port <= 0 || c.Port > 65535 {
		add("port %d out of range", c.Port)
	}

	return errors.Join(errs...)
}

func splitList(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func redactEntry(entry string) string {
	if kid, _, ok := strings.Cut(entry, "="); ok {
		return kid + "=***"
	}
	if len(entry) > 4 {
		return entry[:4] + "***"
	}
	return "***"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
