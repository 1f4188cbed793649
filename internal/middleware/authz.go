package middleware

import (
	"net/http"

	"github.com/confusion-labs/gateway/internal/services/iam"
)

// Authorizer decides whether a Principal holds a level. *iam.Gate implements it.
type Authorizer interface {
	Authorize(p *iam.Principal, required iam.Level) error
}

// RequireLevel must run after Authenticate. Requests without a Principal fail
// as unauthenticated; requests below required fail with ErrInsufficientPrivilege.
func RequireLevel(authz Authorizer, required iam.Level, onError ErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := iam.PrincipalFromContext(r.Context())
			if !ok {
				onError(w, r, iam.StrategyBearer, iam.ErrMissingToken)
				return
			}

			if err := authz.Authorize(principal, required); err != nil {
				onError(w, r, iam.StrategyBearer, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
