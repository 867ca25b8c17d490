package accounts_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/accounts/pkg/authsdk"
)

// TestLoginDoesNotRevealAccounts checks unknown emails and wrong passwords
// are indistinguishable.
func TestLoginDoesNotRevealAccounts(t *testing.T) {
	baseURL, box := setupService(t, relaxedRateLimits())
	ctx := t.Context()

	signupVerified(t, authsdk.NewSDKClient(baseURL), box, "known@example.com")

	client := authsdk.NewSDKClient(baseURL)
	_, errUnknown := client.Login(ctx, "unknown@example.com", testPassword)
	_, errWrong := client.Login(ctx, "known@example.com", "wrong-password")

	unknown := requireAPIError(t, errUnknown, http.StatusUnauthorized, authsdk.CodeInvalidCredentials)
	wrong := requireAPIError(t, errWrong, http.StatusUnauthorized, authsdk.CodeInvalidCredentials)
	require.Equal(t, unknown.Message, wrong.Message)
}

func TestMutatingRequestsRequireCSRF(t *testing.T) {
	baseURL, box := setupService(t, relaxedRateLimits())
	ctx := t.Context()

	signupVerified(t, authsdk.NewSDKClient(baseURL), box, "csrf@example.com")

	client := authsdk.NewSDKClient(baseURL)
	client.SkipCSRF = true

	_, err := client.Login(ctx, "csrf@example.com", testPassword)
	requireAPIError(t, err, http.StatusForbidden, authsdk.CodeCSRFFailed)

	// A cookie without the matching header is still rejected.
	_, err = client.FetchCSRF(ctx)
	require.NoError(t, err)
	_, err = client.Login(ctx, "csrf@example.com", testPassword)
	requireAPIError(t, err, http.StatusForbidden, authsdk.CodeCSRFFailed)

	client.SkipCSRF = false
	_, err = client.Login(ctx, "csrf@example.com", testPassword)
	require.NoError(t, err)
}

func TestForgedSessionRejected(t *testing.T) {
	baseURL, _ := setupService(t, relaxedRateLimits())

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, baseURL+authsdk.APIPrefix+"/check-auth", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "token", Value: strings.Repeat("a", 40)})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
