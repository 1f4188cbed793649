// Package middleware binds the gateway's authentication strategies,
// authorization gate and login throttling to HTTP routes.
package middleware

import (
	"context"
	"net/http"

	"github.com/confusion-labs/gateway/internal/services/iam"
)

// Authenticator resolves credentials into a Principal. *iam.Dispatcher
// implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, creds iam.Credentials) (*iam.Principal, error)
}

// ErrorHandler writes the response for a failed request. The strategy lets
// the handler pick a route-appropriate message.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, strategy iam.Strategy, err error)

// Authenticate resolves the request's identity with exactly one strategy. On
// success the Principal is stored in the request context; on failure
// onError writes the response and the next handler is not called.
func Authenticate(authn Authenticator, strategy iam.Strategy, onError ErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, err := ExtractCredentials(r, strategy)
			if err != nil {
				onError(w, r, strategy, err)
				return
			}

			principal, err := authn.Authenticate(r.Context(), creds)
			if err != nil {
				onError(w, r, strategy, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(iam.WithPrincipal(r.Context(), principal)))
		})
	}
}
