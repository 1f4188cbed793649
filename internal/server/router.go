package server

import (
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/confusion-labs/gateway/internal/middleware"
	"github.com/confusion-labs/gateway/internal/origin"
	"github.com/confusion-labs/gateway/internal/ratelimit"
	"github.com/confusion-labs/gateway/internal/services/iam"
	"github.com/confusion-labs/gateway/internal/validation"
)

// DefaultExternalProvider names the external token route: /users/facebook/token.
const DefaultExternalProvider = "facebook"

// RouterOptions controls the construction of the gateway HTTP router.
type RouterOptions struct {
	Users      *UsersHandler
	Dispatcher *iam.Dispatcher
	Gate       *iam.Gate
	Validator  *validation.SchemaValidator
	Origins    *origin.Policy

	// ExternalProvider is the path segment of the external token route. Empty
	// disables the route.
	ExternalProvider string

	LoginLimiter  ratelimit.Limiter
	LoginRequests int
	LoginWindow   time.Duration

	// TrustedProxies are the peers allowed to set the client address through
	// forwarding headers. Empty keys throttling on the socket peer.
	TrustedProxies []netip.Prefix

	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles the chi router. Every /users route is bound to one
// origin sensitivity and at most one authentication strategy.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.TrustedRealIP(opts.TrustedProxies))
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	origins := opts.Origins
	if origins == nil {
		origins = origin.NewPolicy(origin.DefaultAllowedOrigins)
	}
	restricted := origins.Handler(origin.Restricted)
	open := origins.Handler(origin.Open)

	authn := func(s iam.Strategy) func(http.Handler) http.Handler {
		return middleware.Authenticate(opts.Dispatcher, s, writeAuthError)
	}
	requireLevel := func(level iam.Level) func(http.Handler) http.Handler {
		return middleware.RequireLevel(opts.Gate, level, writeAuthError)
	}
	throttle := middleware.RateLimit(middleware.RateLimitOptions{
		Limiter:  opts.LoginLimiter,
		Requests: opts.LoginRequests,
		Window:   opts.LoginWindow,
		Scope:    "login",
	})

	r.Route("/users", func(r chi.Router) {
		// Preflights are answered before routing so every /users path gets one.
		r.Use(onOptions(restricted))
		preflight := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
		r.Options("/", preflight)
		r.Options("/*", preflight)

		r.With(restricted, middleware.ValidateBody(opts.Validator, validation.SchemaSignup, invalidPayload("Registration unsuccessful"))).
			Post("/signup", opts.Users.Signup)

		r.With(restricted, throttle,
			middleware.ValidateBody(opts.Validator, validation.SchemaLogin, invalidPayload(msgLoginFailed)),
			authn(iam.StrategyPassword)).
			Post("/login", opts.Users.Login)

		if opts.ExternalProvider != "" {
			r.With(open, authn(iam.StrategyExternal)).Get("/"+opts.ExternalProvider+"/token", opts.Users.ExternalToken)
		}

		r.With(restricted).Get("/checkJWTToken", opts.Users.CheckToken)
		r.With(restricted, authn(iam.StrategyBearer), requireLevel(iam.LevelStandard)).Get("/me", opts.Users.Me)
		r.With(restricted, authn(iam.StrategyBearer), requireLevel(iam.LevelElevated)).Get("/", opts.Users.List)
	})

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.With(open).Get("/health", healthHandler)

	return r
}

// onOptions applies mw to OPTIONS requests only.
func onOptions(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				wrapped.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewH2CHandler wraps the router with HTTP/2 over cleartext support.
func NewH2CHandler(opts RouterOptions) http.Handler {
	return h2c.NewHandler(NewRouter(opts), &http2.Server{})
}
