package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/accounts/internal/accounts/apperr"
	"github.com/aussiebroadwan/accounts/internal/accounts/session"
	"github.com/aussiebroadwan/accounts/pkg/authsdk"
	"github.com/aussiebroadwan/accounts/pkg/httpx"
	"github.com/aussiebroadwan/accounts/pkg/slogx"
)

const codeInternal = "INTERNAL_SERVER_ERROR"

// handlerFunc is a handler that reports failure by returning it. The router
// renders every returned error through writeError.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (rt *Router) handle(fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			rt.writeError(w, r, err)
		}
	})
}

// writeError is the only place errors become responses. Anything that is not
// an *apperr.Error is a 500 whose message is hidden outside development.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	e, ok := apperr.As(err)
	if !ok {
		log.Error("unhandled error", slog.Any("error", err))

		message := "Internal server error"
		if rt.cfg.Development {
			message = err.Error()
		}
		rt.writeErrorBody(w, http.StatusInternalServerError, authsdk.ErrorResponse{
			Code:    codeInternal,
			Message: message,
		})
		return
	}

	if e.Status() >= http.StatusInternalServerError {
		log.Error("request failed", slog.String("code", e.Code), slog.Any("error", err))
	} else {
		log.Debug("request rejected", slog.String("code", e.Code), slog.String("message", e.Message))
	}

	rt.writeErrorBody(w, e.Status(), authsdk.ErrorResponse{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}

func (rt *Router) writeErrorBody(w http.ResponseWriter, status int, body authsdk.ErrorResponse) {
	body.Success = false
	body.Timestamp = rt.now().UTC().Format(time.RFC3339)
	httpx.WriteJSON(w, status, body)
}

// writeAuthError is the AuthnMiddleware error writer.
func (rt *Router) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	message := "Unauthorized - invalid token"
	if errors.Is(err, session.ErrNoSession) {
		message = "Unauthorized - no token provided"
	}
	rt.writeError(w, r, apperr.Wrap(apperr.KindAuthorization, message, err))
}

func (rt *Router) writeRateLimited(w http.ResponseWriter, r *http.Request, _ time.Duration) {
	rt.writeError(w, r, apperr.RateLimit("Too many requests. Please try again later."))
}

// decode reads a JSON body, mapping malformed input to a validation error.
func decode(r *http.Request, dst any) error {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		return apperr.Wrap(apperr.KindValidation, "Invalid JSON body", err)
	}
	return nil
}
