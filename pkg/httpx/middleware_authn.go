package httpx

import (
	"net/http"

	"github.com/aussiebroadwan/accounts/pkg/slogx"
)

// Authenticator resolves the account behind a request, typically from a
// session cookie.
type Authenticator func(*http.Request) (accountID string, err error)

// ErrorWriter renders err as the response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// AuthnMiddleware rejects requests the authenticator cannot resolve and
// injects the account id into the context of those it can.
func AuthnMiddleware(authenticate Authenticator, onError ErrorWriter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			accountID, err := authenticate(r)
			if err != nil {
				slogx.FromContext(ctx).Debug("authentication failed", "err", err)
				onError(w, r, err)
				return
			}

			ctx = WithAccountID(ctx, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
