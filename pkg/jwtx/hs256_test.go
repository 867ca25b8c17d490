package jwtx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/accounts/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newPair(t *testing.T, opts jwtx.VerifyOptions) (*jwtx.HS256Signer, *jwtx.HS256Verifier) {
	t.Helper()
	s, err := jwtx.NewSignerHS256(testSecret)
	require.NoError(t, err)
	v, err := jwtx.NewVerifierHS256(testSecret, opts)
	require.NoError(t, err)
	return s, v
}

func TestHS256_SignVerify(t *testing.T) {
	s, v := newPair(t, jwtx.VerifyOptions{Issuer: "accounts"})
	require.Equal(t, "HS256", s.Alg())

	claims := jwtx.NewSessionClaims("acct-123", "accounts", nil, time.Hour, time.Now())
	tok, err := s.Sign(claims)
	require.NoError(t, err)
	require.Len(t, strings.Split(tok, "."), 3)

	got, err := v.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "acct-123", got.Subject)
	require.Equal(t, claims.ID, got.ID)
}

func TestHS256_EmptySecret(t *testing.T) {
	_, err := jwtx.NewSignerHS256(nil)
	require.ErrorIs(t, err, jwtx.ErrEmptySecret)

	_, err = jwtx.NewVerifierHS256([]byte{}, jwtx.VerifyOptions{})
	require.ErrorIs(t, err, jwtx.ErrEmptySecret)
}

func TestHS256_VerifyFailures(t *testing.T) {
	s, v := newPair(t, jwtx.VerifyOptions{Issuer: "accounts"})
	now := time.Now()

	sign := func(c jwtx.Claims) string {
		tok, err := s.Sign(c)
		require.NoError(t, err)
		return tok
	}

	otherSigner, err := jwtx.NewSignerHS256([]byte("another-secret-another-secret-xx"))
	require.NoError(t, err)
	foreign, err := otherSigner.Sign(jwtx.NewSessionClaims("acct", "accounts", nil, time.Hour, now))
	require.NoError(t, err)

	hs384, err := jwt.NewWithClaims(jwt.SigningMethodHS384,
		jwtx.NewSessionClaims("acct", "accounts", nil, time.Hour, now)).SignedString(testSecret)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", jwtx.ErrMalformed},
		{"garbage", "not.a.jwt", jwtx.ErrMalformed},
		{"wrong secret", foreign, jwtx.ErrInvalidSig},
		{"wrong algorithm", hs384, jwtx.ErrInvalidSig},
		{"expired", sign(jwtx.NewSessionClaims("acct", "accounts", nil, time.Hour, now.Add(-2*time.Hour))), jwtx.ErrExpired},
		{"wrong issuer", sign(jwtx.NewSessionClaims("acct", "someone-else", nil, time.Hour, now)), jwtx.ErrIssuer},
		{"missing subject", sign(jwtx.NewSessionClaims("", "accounts", nil, time.Hour, now)), jwtx.ErrInvalidClaim},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHS256_Leeway(t *testing.T) {
	s, v := newPair(t, jwtx.VerifyOptions{Leeway: time.Minute})

	c := jwtx.NewSessionClaims("acct", "", nil, time.Hour, time.Now().Add(-time.Hour-10*time.Second))
	tok, err := s.Sign(c)
	require.NoError(t, err)

	_, err = v.Verify(tok)
	require.NoError(t, err)
}
