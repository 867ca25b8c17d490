package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/accounts/internal/accounts/apperr"
	"github.com/aussiebroadwan/accounts/internal/accounts/session"
	"github.com/aussiebroadwan/accounts/pkg/httpx"
)

// DevFrontendOrigin is always allowed as an origin, it is where the SPA dev
// server runs.
const DevFrontendOrigin = "http://localhost:5173"

// CSRFGuard enforces the double-submit cookie check on unsafe methods. In
// production it also rejects requests whose Origin (or Referer) is not
// allowlisted. It keeps no state.
type CSRFGuard struct {
	Production     bool
	AllowedOrigins []string
}

// NewCSRFGuard allowlists origins plus DevFrontendOrigin. Empty entries and
// trailing slashes are dropped.
func NewCSRFGuard(production bool, origins ...string) *CSRFGuard {
	g := &CSRFGuard{Production: production}
	for _, o := range append(origins, DevFrontendOrigin) {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			g.AllowedOrigins = append(g.AllowedOrigins, o)
		}
	}
	return g
}

// Check returns nil when r may proceed, otherwise a CSRF error.
func (g *CSRFGuard) Check(r *http.Request) error {
	if isSafeMethod(r.Method) {
		return nil
	}

	if g.Production {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = r.Header.Get("Referer")
		}
		if origin != "" && !g.originAllowed(origin) {
			return apperr.CSRF("Invalid origin")
		}
	}

	cookie, err := r.Cookie(session.CSRFCookieName)
	if err != nil || cookie.Value == "" {
		return apperr.CSRF("CSRF validation failed")
	}
	header := r.Header.Get(session.CSRFHeaderName)
	if header == "" {
		return apperr.CSRF("CSRF validation failed")
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return apperr.CSRF("CSRF validation failed")
	}
	return nil
}

// Middleware renders Check failures with onError.
func (g *CSRFGuard) Middleware(onError httpx.ErrorWriter) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := g.Check(r); err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// originAllowed matches an entry exactly or as a prefix followed by "/", so a
// Referer URL passes but https://app.example.com.evil.test does not.
func (g *CSRFGuard) originAllowed(value string) bool {
	for _, allowed := range g.AllowedOrigins {
		if value == allowed || strings.HasPrefix(value, allowed+"/") {
			return true
		}
	}
	return false
}

func isSafeMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
