package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/authcore/pkg/httpx"
	"github.com/aussiebroadwan/authcore/pkg/jwtx"
	"github.com/aussiebroadwan/authcore/pkg/ratelimit"
	"github.com/aussiebroadwan/authcore/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router serves the operational surface: probes, JWKS, metrics and a
// token-guarded userinfo endpoint.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     httpx.TokenVerifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	db      Pinger
	users   UserGetter
	limiter ratelimit.Limiter
}

// RouterConfig collects the router's dependencies.
type RouterConfig struct {
	Keys     *jwtx.KeySet
	Verifier httpx.TokenVerifier
	Version  string
	DB       Pinger
	Users    UserGetter

	// Limiter guards the public endpoints. Nil disables limiting.
	Limiter ratelimit.Limiter

	Logger *slog.Logger
}

func NewRouter(cfg RouterConfig) *Router {
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}

	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         cfg.Keys,
		verifier:     cfg.Verifier,
		buildVersion: cfg.Version,
		startTime:    time.Now(),
		logger:       cfg.Logger,
		db:           cfg.DB,
		users:        cfg.Users,
		limiter:      limiter,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSystem()
	r.registerWellKnown()
	r.registerUsers()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSystem() {
	// Probes are not rate limited; orchestrators poll them constantly.
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))

	var limiterPing Pinger
	if p, ok := r.limiter.(Pinger); ok {
		limiterPing = p
	}
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.db, r.keys, limiterPing))

	r.Mux.Handle("GET /metrics", promhttp.Handler())
}

func (r *Router) registerWellKnown() {
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(r.limiter, "jwks"),
		),
	)
}

func (r *Router) registerUsers() {
	h := &UserInfoHandler{Users: r.users}

	secured := httpx.Chain(h,
		httpx.AuthnMiddleware(r.verifier),           // verify JWT (sig/iss/aud/type/exp)
		httpx.RequirePermission("profile:read:own"), // enforce permissions
		httpx.RateLimitByUser(r.limiter, "userinfo"),
	)

	r.Mux.Handle("GET /v1/userinfo", secured)
}
