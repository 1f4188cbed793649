// Package origin decides which request origins receive cross-origin response
// headers. It is a browser-facing control only: handlers still run for
// requests it does not allow.
package origin

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// Sensitivity classifies a route for origin checks.
type Sensitivity int

const (
	// Open routes serve read-only data to any origin.
	Open Sensitivity = iota
	// Restricted routes mutate state or expose identity data and only answer
	// allow-listed origins.
	Restricted
)

func (s Sensitivity) String() string {
	if s == Open {
		return "open"
	}
	return "restricted"
}

// DefaultAllowedOrigins are the development front-ends allowed on restricted routes.
var DefaultAllowedOrigins = []string{
	"http://localhost:3000",
	"https://localhost:3443",
	"http://localhost:3001",
}

// Decision is the per-request outcome.
type Decision struct {
	Allow bool
}

// Policy holds the static allow-list. It is immutable after construction and
// safe for concurrent use.
type Policy struct {
	allowed map[string]struct{}
}

// NewPolicy builds a policy from exact origin strings. Blank entries are ignored.
func NewPolicy(origins []string) *Policy {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		allowed[o] = struct{}{}
	}
	return &Policy{allowed: allowed}
}

// Decide reports whether origin may receive cross-origin headers on a route
// with the given sensitivity. Restricted routes require an exact match.
func (p *Policy) Decide(origin string, s Sensitivity) Decision {
	if s == Open {
		return Decision{Allow: true}
	}
	_, ok := p.allowed[origin]
	return Decision{Allow: ok}
}

// Origins returns the allow-list in no particular order.
func (p *Policy) Origins() []string {
	out := make([]string, 0, len(p.allowed))
	for o := range p.allowed {
		out = append(out, o)
	}
	return out
}

// Options returns the cors configuration for routes of sensitivity s.
func (p *Policy) Options(s Sensitivity) cors.Options {
	opts := cors.Options{
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"access_token",
			"X-Request-Id",
		},
		ExposedHeaders: []string{
			"Retry-After",
			"RateLimit-Limit",
			"RateLimit-Remaining",
			"RateLimit-Reset",
		},
		MaxAge: 300,
	}

	if s == Open {
		opts.AllowedOrigins = []string{"*"}
		opts.AllowedMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions}
		return opts
	}

	opts.AllowOriginFunc = func(_ *http.Request, origin string) bool {
		return p.Decide(origin, Restricted).Allow
	}
	return opts
}

// Handler returns middleware that writes cross-origin headers per Decide and
// answers preflight requests.
func (p *Policy) Handler(s Sensitivity) func(http.Handler) http.Handler {
	return cors.Handler(p.Options(s))
}
