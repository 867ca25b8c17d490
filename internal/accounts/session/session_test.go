package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/accounts/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newIssuer(t *testing.T, production bool) *Issuer {
	t.Helper()
	i, err := NewIssuer(Options{Secret: testSecret, Issuer: "accounts", Production: production})
	require.NoError(t, err)
	return i
}

func cookiesByName(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestNewIssuer_EmptySecret(t *testing.T) {
	_, err := NewIssuer(Options{Issuer: "accounts"})
	require.ErrorIs(t, err, jwtx.ErrEmptySecret)
}

func TestMintAndAuthenticate(t *testing.T) {
	i := newIssuer(t, false)
	require.NoError(t, i.Ready())

	s, err := i.Mint("acct-1")
	require.NoError(t, err)
	require.Equal(t, "acct-1", s.AccountID)
	require.NotEmpty(t, s.Token)
	require.Len(t, s.CSRFToken, 64)
	require.WithinDuration(t, time.Now().Add(7*24*time.Hour), s.ExpiresAt, 5*time.Second)

	rec := httptest.NewRecorder()
	i.Write(rec, s)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/check-auth", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	id, err := i.Authenticate(req)
	require.NoError(t, err)
	require.Equal(t, "acct-1", id)
}

func TestMint_EmptyAccount(t *testing.T) {
	_, err := newIssuer(t, false).Mint("")
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestWrite_CookieAttributes(t *testing.T) {
	tests := []struct {
		name         string
		production   bool
		csrfSameSite http.SameSite
	}{
		{"development", false, http.SameSiteLaxMode},
		{"production", true, http.SameSiteStrictMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i := newIssuer(t, tt.production)
			s, err := i.Mint("acct-1")
			require.NoError(t, err)

			rec := httptest.NewRecorder()
			i.Write(rec, s)
			cookies := cookiesByName(rec)

			sess := cookies[CookieName]
			require.NotNil(t, sess)
			require.Equal(t, s.Token, sess.Value)
			require.True(t, sess.HttpOnly)
			require.Equal(t, tt.production, sess.Secure)
			require.Equal(t, http.SameSiteStrictMode, sess.SameSite)
			require.Equal(t, 7*24*60*60, sess.MaxAge)
			require.Equal(t, "/", sess.Path)

			csrf := cookies[CSRFCookieName]
			require.NotNil(t, csrf)
			require.Equal(t, s.CSRFToken, csrf.Value)
			require.False(t, csrf.HttpOnly)
			require.Equal(t, tt.csrfSameSite, csrf.SameSite)
			require.Equal(t, 2*60*60, csrf.MaxAge)
		})
	}
}

func TestWriteCSRF(t *testing.T) {
	i := newIssuer(t, false)
	rec := httptest.NewRecorder()

	token, err := i.WriteCSRF(rec)
	require.NoError(t, err)

	cookies := cookiesByName(rec)
	require.Len(t, cookies, 1)
	require.Equal(t, token, cookies[CSRFCookieName].Value)
}

func TestClear(t *testing.T) {
	i := newIssuer(t, false)
	rec := httptest.NewRecorder()
	i.Clear(rec)

	cookies := cookiesByName(rec)
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		require.Empty(t, c.Value)
		require.Negative(t, c.MaxAge)
	}
}

func TestAuthenticate_Failures(t *testing.T) {
	i := newIssuer(t, false)

	other, err := NewIssuer(Options{Secret: []byte("another-secret-another-secret-xx"), Issuer: "accounts"})
	require.NoError(t, err)
	foreign, err := other.Mint("acct-1")
	require.NoError(t, err)

	expiredIssuer := newIssuer(t, false)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }
	expired, err := expiredIssuer.Mint("acct-1")
	require.NoError(t, err)

	tests := []struct {
		name   string
		cookie *http.Cookie
		want   error
	}{
		{"no cookie", nil, ErrNoSession},
		{"empty cookie", &http.Cookie{Name: CookieName, Value: ""}, ErrNoSession},
		{"garbage", &http.Cookie{Name: CookieName, Value: "garbage"}, ErrInvalidSession},
		{"wrong secret", &http.Cookie{Name: CookieName, Value: foreign.Token}, ErrInvalidSession},
		{"expired", &http.Cookie{Name: CookieName, Value: expired.Token}, ErrInvalidSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			_, err := i.Authenticate(req)
			require.ErrorIs(t, err, tt.want)
		})
	}
}
