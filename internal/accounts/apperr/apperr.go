// Package apperr is the closed set of failures the accounts core reports.
// Every error that reaches the HTTP layer is either an *Error or is treated
// as an internal fault.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthentication
	KindAuthorization
	KindForbidden
	KindNotFound
	KindConflict
	KindTokenExpired
	KindEmailNotVerified
	KindAlreadyVerified
	KindCSRF
	KindRateLimit
	KindEmailSend
	KindDatabase
)

type kindInfo struct {
	name   string
	status int
	code   string
}

var kinds = map[Kind]kindInfo{
	KindValidation:       {"validation", http.StatusBadRequest, "VALIDATION_ERROR"},
	KindAuthentication:   {"authentication", http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	KindAuthorization:    {"authorization", http.StatusUnauthorized, "UNAUTHORIZED"},
	KindForbidden:        {"forbidden", http.StatusForbidden, "FORBIDDEN"},
	KindNotFound:         {"not_found", http.StatusNotFound, "USER_NOT_FOUND"},
	KindConflict:         {"conflict", http.StatusConflict, "USER_ALREADY_EXISTS"},
	KindTokenExpired:     {"token_expired", http.StatusUnauthorized, "TOKEN_EXPIRED"},
	KindEmailNotVerified: {"email_not_verified", http.StatusForbidden, "EMAIL_NOT_VERIFIED"},
	KindAlreadyVerified:  {"already_verified", http.StatusBadRequest, "ALREADY_VERIFIED"},
	KindCSRF:             {"csrf", http.StatusForbidden, "CSRF_FAILED"},
	KindRateLimit:        {"rate_limit", http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"},
	KindEmailSend:        {"email_send", http.StatusInternalServerError, "EMAIL_SEND_FAILED"},
	KindDatabase:         {"database", http.StatusInternalServerError, "DATABASE_ERROR"},
}

func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Status is the HTTP status for the kind, 500 for unknown kinds.
func (k Kind) Status() int {
	if info, ok := kinds[k]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Error is a classified failure. Message is safe to show to clients, Err is
// the underlying cause and is never rendered.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status is the HTTP status carried by the error's kind.
func (e *Error) Status() int { return e.Kind.Status() }

// New builds an error of kind with its default code.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Code: kinds[kind].code, Message: message}
}

// Wrap builds an error of kind that keeps cause for logging.
func Wrap(kind Kind, message string, cause error) *Error {
	e := New(kind, message)
	e.Err = cause
	return e
}

// WithCode overrides the wire code, e.g. EMAIL_REQUIRED for a validation
// failure that clients branch on.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

func Validation(message string, details map[string]string) *Error {
	e := New(KindValidation, message)
	if len(details) > 0 {
		e.Details = details
	}
	return e
}

func Authentication(message string) *Error   { return New(KindAuthentication, message) }
func Authorization(message string) *Error    { return New(KindAuthorization, message) }
func Forbidden(message string) *Error        { return New(KindForbidden, message) }
func NotFound(message string) *Error         { return New(KindNotFound, message) }
func Conflict(message string) *Error         { return New(KindConflict, message) }
func TokenExpired(message string) *Error     { return New(KindTokenExpired, message) }
func EmailNotVerified(message string) *Error { return New(KindEmailNotVerified, message) }
func AlreadyVerified(message string) *Error  { return New(KindAlreadyVerified, message) }
func CSRF(message string) *Error             { return New(KindCSRF, message) }
func RateLimit(message string) *Error        { return New(KindRateLimit, message) }

func EmailSend(cause error) *Error {
	return Wrap(KindEmailSend, "Failed to send email", cause)
}

func Database(cause error) *Error {
	return Wrap(KindDatabase, "Database operation failed", cause)
}

// As extracts the *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
