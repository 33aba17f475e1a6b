package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/audit"
	httpapi "github.com/aussiebroadwan/modelgate/internal/gateway/http"
	"github.com/aussiebroadwan/modelgate/internal/gateway/metrics"
	"github.com/aussiebroadwan/modelgate/internal/gateway/service"
	"github.com/aussiebroadwan/modelgate/internal/gateway/store"
	"github.com/aussiebroadwan/modelgate/internal/gateway/store/drivers/logsink"
	"github.com/aussiebroadwan/modelgate/internal/gateway/store/drivers/memory"
	"github.com/aussiebroadwan/modelgate/internal/gateway/store/drivers/postgres"
	"github.com/aussiebroadwan/modelgate/internal/gateway/store/drivers/redis"
	"github.com/aussiebroadwan/modelgate/internal/gateway/store/drivers/sqlite"
	"github.com/aussiebroadwan/modelgate/pkg/jwtx"
	"github.com/aussiebroadwan/modelgate/pkg/slogx"
	"github.com/aussiebroadwan/modelgate/pkg/telemetry"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	ServiceName = "modelgate"
)

// Application holds the gateway and everything it depends on.
type Application struct {
	cfg    Config
	logger *slog.Logger

	metrics    *metrics.Metrics
	keyManager *jwtx.KeyManager
	counters   store.CounterStore
	auditStore store.AuditStore
	emitter    *audit.Emitter
	tracing    telemetry.ShutdownFunc

	tokenService *service.TokenService
	verifier     *service.IntegrityVerifier
	dispatcher   *service.Dispatcher

	reverifyService     *service.ReverifyService
	housekeepingService *service.HousekeepingService // nil unless retention is set
	started             bool

	server *http.Server
	router *httpapi.Router
}

// New validates cfg and builds the application. A model that fails
// verification does not stop startup: the gateway comes up refusing
// predictions and reports not-ready.
func New(ctx context.Context, cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: ServiceName,
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}
	app.metrics.SetBuildInfo(BuildVersion)

	if err := app.init(ctx); err != nil {
		_ = app.release(context.Background())
		return nil, err
	}
	return app, nil
}

func (app *Application) init(ctx context.Context) error {
	if err := app.initTelemetry(ctx); err != nil {
		return err
	}
	if err := app.initCounterStore(ctx); err != nil {
		return err
	}
	if err := app.initAuditSink(); err != nil {
		return err
	}

	keyManager, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Issuer:       app.cfg.Issuer,
		Secrets:      app.cfg.SigningSecrets,
		IssuedAtSkew: app.cfg.ClockSkew,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize signing keys: %w", err)
	}
	app.keyManager = keyManager

	if err := app.initServices(ctx); err != nil {
		return err
	}
	app.initHTTP()
	return nil
}

// Handler is the fully wired HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Start launches the background workers. Run calls it; tests driving
// Handler directly may call it themselves.
func (app *Application) Start() {
	if app.started {
		return
	}
	app.started = true
	app.emitter.Start()
	app.reverifyService.Start()
	if app.housekeepingService != nil {
		app.housekeepingService.Start()
	}
}

func (app *Application) Run() error {
	app.Start()

	app.logger.Info("gateway starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"counter_store", app.cfg.CounterStore,
		"audit_sink", app.cfg.AuditSink,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.release(context.Background())
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones, then drains
// the audit queue before closing the stores.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	err := app.release(ctx)
	app.logger.Info("gateway stopped")
	return err
}

// release tears down whatever has been initialized so far.
func (app *Application) release(ctx context.Context) error {
	var errs []error

	if app.started {
		app.reverifyService.Stop()
		if app.housekeepingService != nil {
			app.housekeepingService.Stop()
		}
		if err := app.emitter.Close(ctx); err != nil {
			app.logger.Error("audit emitter did not drain", "error", err, "dropped", app.emitter.Dropped())
			errs = append(errs, err)
		}
		app.started = false
	}

	if app.auditStore != nil {
		if err := app.auditStore.Close(); err != nil {
			app.logger.Error("error closing audit sink", "error", err)
			errs = append(errs, err)
		}
	}
	if app.counters != nil {
		if err := app.counters.Close(); err != nil {
			app.logger.Error("error closing counter store", "error", err)
			errs = append(errs, err)
		}
	}
	if app.tracing != nil {
		if err := app.tracing(ctx); err != nil {
			app.logger.Warn("tracer shutdown failed", "error", err)
		}
	}

	return errors.Join(errs...)
}

func (app *Application) initTelemetry(ctx context.Context) error {
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    ServiceName,
		ServiceVersion: BuildVersion,
		Endpoint:       app.cfg.OTLPEndpoint,
		Insecure:       app.cfg.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	app.tracing = shutdown
	return nil
}

func (app *Application) initCounterStore(ctx context.Context) error {
	switch app.cfg.CounterStore {
	case CounterStoreRedis:
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		counters, err := redis.New(pingCtx, redis.Options{
			Addr:     app.cfg.RedisAddr,
			Password: app.cfg.RedisPassword,
			DB:       app.cfg.RedisDB,
			TLS:      app.cfg.RedisTLS,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", app.cfg.RedisAddr, err)
		}
		app.counters = counters
	default:
		app.logger.Warn("using in-process counter store; quotas are not shared between replicas")
		app.counters = memory.NewCounterStore(nil)
	}
	return nil
}

func (app *Application) initAuditSink() error {
	var (
		sink store.AuditStore
		err  error
	)
	switch app.cfg.AuditSink {
	case AuditSinkPostgres:
		sink, err = postgres.Open(app.cfg.AuditDatabase)
	case AuditSinkLog:
		sink = logsink.New(app.logger)
	default:
		sink, err = sqlite.NewStore(app.cfg.AuditDatabase)
	}
	if err != nil {
		return fmt.Errorf("failed to open %s audit sink: %w", app.cfg.AuditSink, err)
	}
	app.auditStore = sink

	if err := sink.ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply audit migrations: %w", err)
	}
	app.logger.Info("audit sink ready", "sink", app.cfg.AuditSink)

	app.emitter = audit.NewEmitter(sink.AuditEvents(), audit.Options{
		Capacity: app.cfg.AuditBuffer,
		Logger:   app.logger,
		Metrics:  app.metrics,
	})
	return nil
}

func (app *Application) initServices(ctx context.Context) error {
	credentials, err := service.NewCredentialStore(app.cfg.Credentials)
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	app.logger.Info("client credentials loaded", "identities", credentials.Identities())

	app.tokenService = &service.TokenService{
		Credentials: credentials,
		KeyManager:  app.keyManager,
		Issuer:      app.cfg.Issuer,
		TTL:         app.cfg.TokenTTL,
		Audit:       app.emitter,
	}

	app.verifier = service.NewIntegrityVerifier(service.IntegrityOptions{
		ManifestPath: app.cfg.ModelManifest,
		Logger:       app.logger,
		Metrics:      app.metrics,
		Audit:        app.emitter,
	})
	if _, err := app.verifier.Load(ctx, app.cfg.ModelPath, app.cfg.ModelFingerprint, app.cfg.ModelVersion); err != nil {
		app.logger.Error("model artifact not trusted; predictions disabled",
			"path", app.cfg.ModelPath,
			"error", err,
		)
	}

	app.dispatcher = &service.Dispatcher{
		Tokens: app.tokenService,
		Admission: &service.AdmissionController{
			Store:  app.counters,
			Limit:  app.cfg.RateLimit,
			Window: app.cfg.RateWindow,
		},
		Models:         app.verifier,
		Audit:          app.emitter,
		Metrics:        app.metrics,
		PredictTimeout: app.cfg.PredictTimeout,
	}

	app.reverifyService = service.NewReverifyService(
		app.verifier,
		app.logger,
		app.cfg.ReverifyInterval,
		app.cfg.ModelPath,
		app.verifier.ManifestPath(),
	)

	if app.cfg.AuditRetention > 0 {
		if app.cfg.AuditSink == AuditSinkLog {
			app.logger.Warn("audit retention ignored for the log sink")
		} else {
			app.housekeepingService = service.NewHousekeepingService(
				app.auditStore.AuditEvents(),
				app.logger,
				app.cfg.HousekeepingInterval,
				app.cfg.AuditRetention,
			)
		}
	}

	return nil
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager.Verifier,
		BuildVersion,
		app.metrics,
		app.logger,
		httpapi.Options{
			CORSOrigins:  app.cfg.CORSOrigins,
			MetricsToken: app.cfg.MetricsToken,
		},
	)

	router.TokenService = app.tokenService
	router.Dispatcher = app.dispatcher
	router.Models = app.verifier
	router.CounterStore = app.counters
	router.AuditSink = app.auditStore
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
