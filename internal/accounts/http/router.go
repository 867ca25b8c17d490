// Package http exposes the account workflows under /api/auth.
package http

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/aussiebroadwan/accounts/internal/accounts/service"
	"github.com/aussiebroadwan/accounts/internal/accounts/session"
	"github.com/aussiebroadwan/accounts/internal/accounts/store"
	"github.com/aussiebroadwan/accounts/pkg/httpx"
	"github.com/aussiebroadwan/accounts/pkg/slogx"

	_ "github.com/aussiebroadwan/accounts/api/accounts" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

type Config struct {
	Version string

	// Development exposes internal error messages in 500 responses.
	Development bool

	// Production enables the Origin check in the CSRF guard.
	Production bool

	// AllowedOrigins are accepted by the CSRF origin check in addition to
	// DevFrontendOrigin.
	AllowedOrigins []string

	RateLimits httpx.RateLimitProfiles

	// TrustedProxies may set the client IP through forwarding headers.
	TrustedProxies []netip.Prefix
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	cfg       Config
	startTime time.Time
	logger    *slog.Logger
	now       func() time.Time

	store    store.Store
	sessions *session.Issuer
	csrf     *CSRFGuard

	AccountService *service.AccountService
}

func NewRouter(
	cfg Config,
	st store.Store,
	sessions *session.Issuer,
	accounts *service.AccountService,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:            http.NewServeMux(),
		cfg:            cfg,
		startTime:      time.Now(),
		logger:         logger,
		now:            time.Now,
		store:          st,
		sessions:       sessions,
		csrf:           NewCSRFGuard(cfg.Production, cfg.AllowedOrigins...),
		AccountService: accounts,
	}

	defaults := httpx.DefaultRateLimitProfiles()
	r.cfg.RateLimits.Strict = r.limit(r.cfg.RateLimits.Strict, defaults.Strict)
	r.cfg.RateLimits.Moderate = r.limit(r.cfg.RateLimits.Moderate, defaults.Moderate)
	r.cfg.RateLimits.Lenient = r.limit(r.cfg.RateLimits.Lenient, defaults.Lenient)

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

// limit fills an unset profile from def and routes 429s through writeError.
func (r *Router) limit(c, def httpx.RateLimitConfig) httpx.RateLimitConfig {
	if c.RequestsPerWindow <= 0 || c.Window <= 0 {
		c = def
	}
	if c.Burst <= 0 {
		c.Burst = c.RequestsPerWindow
	}
	c.OnExceeded = r.writeRateLimited
	c.TrustedProxies = r.cfg.TrustedProxies
	return c
}

func (r *Router) ApplyRoutes() {
	r.registerAccounts()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title						Accounts Service API
//	@version					0.1.0
//	@description				Account lifecycle for browser clients: sign-up, login, email verification and password reset.
//	@description
//	@description				Sessions are an HttpOnly token cookie. Every POST must echo the XSRF-TOKEN cookie in the X-CSRF-Token header.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/accounts
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	SessionCookie
//	@in							cookie
//	@name						token
//	@description				HS256 session JWT set by sign-up and login.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAccounts() {
	h := &AccountHandler{
		Accounts: r.AccountService,
		Sessions: r.sessions,
	}
	limits := r.cfg.RateLimits
	csrf := r.csrf.Middleware(r.writeError)

	// Credential and token endpoints - strict rate limit by IP (brute force)
	strict := map[string]handlerFunc{
		"POST /api/auth/sign-up":                h.HandleSignup,
		"POST /api/auth/login":                  h.HandleLogin,
		"POST /api/auth/verify-email":           h.HandleVerifyEmail,
		"POST /api/auth/forgot-password":        h.HandleForgotPassword,
		"POST /api/auth/reset-password/{token}": h.HandleResetPassword,
		"POST /api/auth/reset-password/{$}":     h.HandleResetPassword,
		"POST /api/auth/reset-password":         h.HandleResetPassword,
		"POST /api/auth/resend-verification":    h.HandleResendVerification,
	}
	for pattern, fn := range strict {
		r.Mux.Handle(pattern, httpx.Chain(r.handle(fn),
			httpx.RateLimitByIP(limits.Strict),
			csrf,
		))
	}

	r.Mux.Handle("POST /api/auth/log-out", httpx.Chain(r.handle(h.HandleLogout),
		httpx.RateLimitByIP(limits.Lenient),
		csrf,
	))

	// GET /check-auth - session required, moderate rate limit by account
	r.Mux.Handle("GET /api/auth/check-auth", httpx.Chain(r.handle(h.HandleCheckAuth),
		csrf,
		httpx.AuthnMiddleware(r.sessions.Authenticate, r.writeAuthError),
		httpx.RateLimitByAccount(limits.Moderate),
	))

	r.Mux.Handle("GET /api/auth/csrf", httpx.Chain(r.handle(h.HandleCSRF),
		httpx.RateLimitByIP(limits.Lenient),
	))
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.cfg.Version),
			httpx.RateLimitByIP(r.cfg.RateLimits.Lenient),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.cfg.Version, r.store, r.sessions),
			httpx.RateLimitByIP(r.cfg.RateLimits.Lenient),
		),
	)
}
