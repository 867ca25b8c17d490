// Package session mints the signed session cookie and the double-submit CSRF
// cookie that travel with every authenticated browser request.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/accounts/pkg/cryptox"
	"github.com/aussiebroadwan/accounts/pkg/jwtx"
)

const (
	CookieName     = "token"
	CSRFCookieName = "XSRF-TOKEN"
	CSRFHeaderName = "X-CSRF-Token"

	DefaultTTL     = jwtx.DefaultSessionTTL
	DefaultCSRFTTL = 2 * time.Hour
)

var (
	ErrNoSession      = errors.New("session: no session cookie")
	ErrInvalidSession = errors.New("session: invalid session")
)

type Options struct {
	Secret []byte
	Issuer string

	// Production turns on Secure cookies and SameSite=Strict for the CSRF
	// cookie.
	Production bool

	TTL     time.Duration // session lifetime, DefaultTTL when zero
	CSRFTTL time.Duration // CSRF cookie lifetime, DefaultCSRFTTL when zero
}

// Session is a freshly minted pair of credentials for one account.
type Session struct {
	AccountID string
	Token     string
	CSRFToken string
	ExpiresAt time.Time
}

type Issuer struct {
	signer   jwtx.Signer
	verifier jwtx.Verifier
	opts     Options
	now      func() time.Time
}

// NewIssuer fails when the secret is empty so a misconfigured deployment
// dies at startup.
func NewIssuer(opts Options) (*Issuer, error) {
	if len(opts.Secret) == 0 {
		return nil, fmt.Errorf("session: %w", jwtx.ErrEmptySecret)
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.CSRFTTL <= 0 {
		opts.CSRFTTL = DefaultCSRFTTL
	}

	signer, err := jwtx.NewSignerHS256(opts.Secret)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	verifier, err := jwtx.NewVerifierHS256(opts.Secret, jwtx.VerifyOptions{
		Issuer: opts.Issuer,
		Leeway: 30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	return &Issuer{signer: signer, verifier: verifier, opts: opts, now: time.Now}, nil
}

// Ready reports whether the signer still has a usable key.
func (i *Issuer) Ready() error {
	return i.signer.Validate()
}

// Mint signs a session token for accountID and pairs it with a CSRF token.
func (i *Issuer) Mint(accountID string) (Session, error) {
	if accountID == "" {
		return Session{}, ErrInvalidSession
	}

	now := i.now().UTC()
	claims := jwtx.NewSessionClaims(accountID, i.opts.Issuer, nil, i.opts.TTL, now)

	token, err := i.signer.Sign(claims)
	if err != nil {
		return Session{}, fmt.Errorf("session: sign: %w", err)
	}

	csrf, err := cryptox.GenerateCSRFToken()
	if err != nil {
		return Session{}, fmt.Errorf("session: csrf: %w", err)
	}

	return Session{
		AccountID: accountID,
		Token:     token,
		CSRFToken: csrf,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Write sets the session and CSRF cookies.
func (i *Issuer) Write(w http.ResponseWriter, s Session) {
	http.SetCookie(w, i.sessionCookie(s.Token, int(i.opts.TTL.Seconds())))
	http.SetCookie(w, i.csrfCookie(s.CSRFToken, int(i.opts.CSRFTTL.Seconds())))
}

// WriteCSRF mints a CSRF token, sets only the CSRF cookie and returns the
// token so it can also be echoed in the body.
func (i *Issuer) WriteCSRF(w http.ResponseWriter) (string, error) {
	token, err := cryptox.GenerateCSRFToken()
	if err != nil {
		return "", fmt.Errorf("session: csrf: %w", err)
	}
	http.SetCookie(w, i.csrfCookie(token, int(i.opts.CSRFTTL.Seconds())))
	return token, nil
}

// Clear expires both cookies.
func (i *Issuer) Clear(w http.ResponseWriter) {
	http.SetCookie(w, i.sessionCookie("", -1))
	http.SetCookie(w, i.csrfCookie("", -1))
}

// Authenticate resolves the account id from the session cookie.
func (i *Issuer) Authenticate(r *http.Request) (string, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", ErrNoSession
	}

	claims, err := i.verifier.Verify(c.Value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	return claims.Subject, nil
}

func (i *Issuer) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   i.opts.Production,
		SameSite: http.SameSiteStrictMode,
	}
}

func (i *Issuer) csrfCookie(value string, maxAge int) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	if i.opts.Production {
		sameSite = http.SameSiteStrictMode
	}
	return &http.Cookie{
		Name:     CSRFCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: false, // read by the SPA and echoed in X-CSRF-Token
		Secure:   i.opts.Production,
		SameSite: sameSite,
	}
}
