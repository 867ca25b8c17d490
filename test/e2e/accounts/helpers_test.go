package accounts_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/accounts/internal/accounts/app"
	"github.com/aussiebroadwan/accounts/pkg/authsdk"
	"github.com/aussiebroadwan/accounts/pkg/httpx"
	"github.com/aussiebroadwan/accounts/pkg/slogx"
)

/*
 * Common constants and helper functions for accounts service end-to-end tests.
 * Each test gets its own service instance on a fresh SQLite database, served
 * in-process so outgoing mail can be captured.
 */

const (
	testPassword = "Password123!"
	testName     = "Test User"
)

// mailbox captures what the service would have emailed.
type mailbox struct {
	mu        sync.Mutex
	codes     map[string]string
	resetURLs map[string]string
	welcomed  map[string]bool
}

func newMailbox() *mailbox {
	return &mailbox{
		codes:     map[string]string{},
		resetURLs: map[string]string{},
		welcomed:  map[string]bool{},
	}
}

func (m *mailbox) SendVerificationCode(_ context.Context, to, _, code string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[to] = code
	return nil
}

func (m *mailbox) SendWelcome(_ context.Context, to, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.welcomed[to] = true
	return nil
}

func (m *mailbox) SendPasswordReset(_ context.Context, to, resetURL string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetURLs[to] = resetURL
	return nil
}

func (m *mailbox) SendPasswordResetSuccess(context.Context, string) error { return nil }

func (m *mailbox) code(t *testing.T, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	code, ok := m.codes[email]
	require.True(t, ok, "no verification code sent to %s", email)
	return code
}

func (m *mailbox) welcomedTo(email string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.welcomed[email]
}

// resetToken returns the last path segment of the reset link sent to email.
func (m *mailbox) resetToken(t *testing.T, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.resetURLs[email]
	require.True(t, ok, "no reset link sent to %s", email)
	require.Contains(t, link, "/reset-password/")
	return path.Base(link)
}

// relaxedRateLimits keeps tests that make many rapid requests below the limits.
func relaxedRateLimits() httpx.RateLimitProfiles {
	generous := httpx.RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}
	return httpx.RateLimitProfiles{Strict: generous, Moderate: generous, Lenient: generous}
}

// setupService starts the accounts service and returns its base URL.
func setupService(t *testing.T, limits httpx.RateLimitProfiles) (string, *mailbox) {
	t.Helper()
	dir := t.TempDir()

	cfg := app.Config{
		Env:                  app.EnvDevelopment,
		Issuer:               "accounts-e2e",
		JWTSecret:            strings.Repeat("e2e-secret-", 4),
		AppOrigin:            "http://localhost:8080",
		FrontendOrigin:       "http://localhost:5173",
		DatabaseDriver:       app.DriverSQLite,
		DatabaseDSN:          "file:" + filepath.Join(dir, "accounts.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate",
		PepperFile:           filepath.Join(dir, "pepper"),
		LogLevel:             "error",
		Port:                 8080,
		ShutdownGracePeriod:  time.Second,
		HousekeepingInterval: time.Hour,
		RateLimits:           limits,
	}

	box := newMailbox()
	application, err := app.New(cfg, app.WithLogger(slogx.Discard()), app.WithNotifier(box))
	require.NoError(t, err)

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(func() {
		srv.Close()
		require.NoError(t, application.Shutdown())
	})

	return srv.URL, box
}

// signupVerified creates an account and verifies its email.
func signupVerified(t *testing.T, client *authsdk.SDKClient, box *mailbox, email string) *authsdk.User {
	t.Helper()
	ctx := t.Context()

	_, err := client.Signup(ctx, authsdk.SignupRequest{Email: email, Password: testPassword, Name: testName})
	require.NoError(t, err, "signup should succeed")

	resp, err := client.VerifyEmail(ctx, box.code(t, email))
	require.NoError(t, err, "verification should succeed")
	require.True(t, resp.User.IsVerified)

	return &resp.User
}

// requireAPIError checks the status and code of a failed call.
func requireAPIError(t *testing.T, err error, status int, code string) *authsdk.APIError {
	t.Helper()
	require.Error(t, err)

	var apiErr *authsdk.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	require.Equal(t, status, apiErr.StatusCode, "unexpected status: %v", apiErr)
	require.Equal(t, code, apiErr.Code, "unexpected code: %v", apiErr)
	return apiErr
}

// assertHealthy verifies a health check response is OK.
func assertHealthy(t *testing.T, health *authsdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
}
