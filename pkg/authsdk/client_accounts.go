package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// Signup creates an account and starts its session.
func (c *SDKClient) Signup(ctx context.Context, req SignupRequest) (*UserResponse, error) {
	return c.userCall(ctx, http.MethodPost, "/sign-up", req, http.StatusCreated)
}

// Login starts a session. Unverified accounts get CodeEmailNotVerified.
func (c *SDKClient) Login(ctx context.Context, email, password string) (*UserResponse, error) {
	return c.userCall(ctx, http.MethodPost, "/login", LoginRequest{Email: email, Password: password}, http.StatusOK)
}

// Logout clears the session cookies.
func (c *SDKClient) Logout(ctx context.Context) (*MessageResponse, error) {
	return c.messageCall(ctx, "/log-out", nil)
}

func (c *SDKClient) VerifyEmail(ctx context.Context, code string) (*UserResponse, error) {
	return c.userCall(ctx, http.MethodPost, "/verify-email", VerifyEmailRequest{Code: code}, http.StatusOK)
}

func (c *SDKClient) ForgotPassword(ctx context.Context, email string) (*MessageResponse, error) {
	return c.messageCall(ctx, "/forgot-password", EmailRequest{Email: email})
}

// ResetPassword redeems the token from a reset link.
func (c *SDKClient) ResetPassword(ctx context.Context, token, password string) (*MessageResponse, error) {
	return c.messageCall(ctx, "/reset-password/"+url.PathEscape(token), ResetPasswordRequest{Password: password})
}

func (c *SDKClient) ResendVerification(ctx context.Context, email string) (*MessageResponse, error) {
	return c.messageCall(ctx, "/resend-verification", EmailRequest{Email: email})
}

// CheckAuth returns the account behind the current session cookie.
func (c *SDKClient) CheckAuth(ctx context.Context) (*UserResponse, error) {
	return c.userCall(ctx, http.MethodGet, "/check-auth", nil, http.StatusOK)
}

// FetchCSRF asks for a fresh CSRF token. The jar stores the cookie half.
func (c *SDKClient) FetchCSRF(ctx context.Context) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, APIPrefix+"/csrf", nil)
	if err != nil {
		return "", err
	}

	var out CSRFResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (c *SDKClient) userCall(ctx context.Context, method, path string, body any, expected int) (*UserResponse, error) {
	resp, err := c.doRequest(ctx, method, APIPrefix+path, body)
	if err != nil {
		return nil, err
	}

	var out UserResponse
	if err := decodeJSON(resp, &out, expected); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *SDKClient) messageCall(ctx context.Context, path string, body any) (*MessageResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, APIPrefix+path, body)
	if err != nil {
		return nil, err
	}

	var out MessageResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
