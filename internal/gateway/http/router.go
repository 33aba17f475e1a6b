package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
	"github.com/aussiebroadwan/modelgate/internal/gateway/metrics"
	"github.com/aussiebroadwan/modelgate/internal/gateway/service"
	"github.com/aussiebroadwan/modelgate/pkg/httpx"
	"github.com/aussiebroadwan/modelgate/pkg/jwtx"
	"github.com/aussiebroadwan/modelgate/pkg/slogx"
	"github.com/aussiebroadwan/modelgate/pkg/telemetry"

	_ "github.com/aussiebroadwan/modelgate/api/gateway" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// DefaultMaxBodyBytes caps every request body.
const DefaultMaxBodyBytes = 64 << 10

// Pinger is a dependency /readyz probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options are the optional knobs of a Router.
type Options struct {
	CORSOrigins  []string
	MaxBodyBytes int64

	// MetricsToken, when set, is the static bearer /metrics requires.
	MetricsToken string

	// TokenLimit is the per-IP limit on POST /token.
	TokenLimit httpx.RateLimitConfig
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware
	handler     http.Handler

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	opts         Options

	TokenService *service.TokenService
	Dispatcher   *service.Dispatcher
	Models       service.SnapshotSource
	Metrics      *metrics.Metrics

	// Readiness dependencies.
	CounterStore Pinger
	AuditSink    Pinger
}

func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts Options,
) *Router {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.TokenLimit.RequestsPerWindow <= 0 {
		opts.TokenLimit = httpx.StrictLimit
	}

	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		opts:         opts,
		Metrics:      m,
	}

	// First listed runs first. Prometheus instrumentation is not here: it
	// wraps the mux directly so it can see the matched pattern.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		telemetry.HTTPMiddleware("modelgate"),
		httpx.Recover(),
		httpx.SecurityHeaders(),
		httpx.CORS(opts.CORSOrigins),
		httpx.MaxBodyBytes(opts.MaxBodyBytes),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerToken()
	r.registerPredict()
	r.registerModel()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())

	r.handler = httpx.Chain(r.Metrics.Instrument(r.Mux), r.middlewares...)
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Modelgate Inference Gateway API
//	@version		0.1.0
//	@description	Authenticated, rate-limited and integrity-checked access to a machine-learning model.
//	@description
//	@description				Tokens are HS256 JWTs issued by POST /token in exchange for a pre-shared secret.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/modelgate
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h := r.handler
	if h == nil {
		h = httpx.Chain(r.Metrics.Instrument(r.Mux), r.middlewares...)
	}
	h.ServeHTTP(w, req)
}

func (r *Router) registerToken() {
	// POST /token - strict rate limit by IP against secret guessing
	tokenHandler := &TokenHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIP(r.opts.TokenLimit),
		),
	)
}

func (r *Router) registerPredict() {
	// Authentication, scope and quota are part of the dispatch state
	// machine, so /predict takes no auth middleware.
	h := &PredictHandler{Dispatcher: r.Dispatcher}
	r.Mux.Handle("POST /predict", h)
}

func (r *Router) registerModel() {
	h := &ModelInfoHandler{Models: r.Models}

	secured := httpx.Chain(h,
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAllScopes(domain.ScopeModelRead),
		httpx.RateLimitByIdentity(httpx.LenientLimit),
	)

	r.Mux.Handle("GET /model/info", secured)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.CounterStore, r.AuditSink, r.Models))
	r.Mux.Handle("GET /metrics", MetricsHandler(r.Metrics.Handler(), r.opts.MetricsToken))
}
