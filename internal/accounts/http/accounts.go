package http

import (
	"net/http"

	"github.com/aussiebroadwan/accounts/internal/accounts/apperr"
	"github.com/aussiebroadwan/accounts/internal/accounts/service"
	"github.com/aussiebroadwan/accounts/internal/accounts/session"
	"github.com/aussiebroadwan/accounts/pkg/authsdk"
	"github.com/aussiebroadwan/accounts/pkg/httpx"
)

type AccountHandler struct {
	Accounts *service.AccountService
	Sessions *session.Issuer
}

// HandleSignup creates an account.
//
//	@Summary		Sign up
//	@Description	Creates an unverified account, starts a session and emails a 6 digit verification code.
//	@Tags			Accounts
//	@Accept			json
//	@Produce		json
//	@Param			X-CSRF-Token	header		string					true	"Value of the XSRF-TOKEN cookie"
//	@Param			request			body		authsdk.SignupRequest	true	"New account"
//	@Success		201				{object}	authsdk.UserResponse
//	@Failure		400				{object}	authsdk.ErrorResponse	"VALIDATION_ERROR"
//	@Failure		403				{object}	authsdk.ErrorResponse	"CSRF_FAILED"
//	@Failure		409				{object}	authsdk.ErrorResponse	"USER_ALREADY_EXISTS"
//	@Router			/api/auth/sign-up [post].
func (h *AccountHandler) HandleSignup(w http.ResponseWriter, r *http.Request) error {
	var req authsdk.SignupRequest
	if err := decode(r, &req); err != nil {
		return err
	}

	res, err := h.Accounts.Signup(r.Context(), service.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		return err
	}

	h.Sessions.Write(w, res.Session)
	httpx.WriteJSON(w, http.StatusCreated, authsdk.UserResponse{
		Success: true,
		Message: "User created successfully",
		User:    toUser(res.Account),
	})
	return nil
}

// HandleLogin starts a session.
//
//	@Summary		Log in
//	@Description	Unknown email and wrong password return the same INVALID_CREDENTIALS error.
//	@Tags			Accounts
//	@Accept			json
//	@Produce		json
//	@Param			X-CSRF-Token	header		string					true	"Value of the XSRF-TOKEN cookie"
//	@Param			request			body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200				{object}	authsdk.UserResponse
//	@Failure		400				{object}	authsdk.ErrorResponse	"VALIDATION_ERROR"
//	@Failure		401				{object}	authsdk.ErrorResponse	"INVALID_CREDENTIALS"
//	@Failure		403				{object}	authsdk.ErrorResponse	"EMAIL_NOT_VERIFIED or CSRF_FAILED"
//	@Router			/api/auth/login [post].
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) error {
	var req authsdk.LoginRequest
	if err := decode(r, &req); err != nil {
		return err
	}

	res, err := h.Accounts.Login(r.Context(), service.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		return err
	}

	h.Sessions.Write(w, res.Session)
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserResponse{
		Success: true,
		Message: "Logged in successfully",
		User:    toUser(res.Account),
	})
	return nil
}

// HandleLogout expires the session and CSRF cookies.
//
//	@Summary	Log out
//	@Tags		Accounts
//	@Produce	json
//	@Param		X-CSRF-Token	header		string	true	"Value of the XSRF-TOKEN cookie"
//	@Success	200				{object}	authsdk.MessageResponse
//	@Failure	403				{object}	authsdk.ErrorResponse	"CSRF_FAILED"
//	@Router		/api/auth/log-out [post].
func (h *AccountHandler) HandleLogout(w http.ResponseWriter, r *http.Request) error {
	h.Sessions.Clear(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{
		Success: true,
		Message: "Logged out successfully",
	})
	return nil
}

// HandleVerifyEmail redeems a verification code.
//
//	@Summary	Verify email
//	@Tags		Accounts
//	@Accept		json
//	@Produce	json
//	@Param		X-CSRF-Token	header		string						true	"Value of the XSRF-TOKEN cookie"
//	@Param		request			body		authsdk.VerifyEmailRequest	true	"Code from the verification email"
//	@Success	200				{object}	authsdk.UserResponse
//	@Failure	400				{object}	authsdk.ErrorResponse	"VALIDATION_ERROR"
//	@Failure	401				{object}	authsdk.ErrorResponse	"TOKEN_EXPIRED"
//	@Router		/api/auth/verify-email [post].
func (h *AccountHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) error {
	var req authsdk.VerifyEmailRequest
	if err := decode(r, &req); err != nil {
		return err
	}

	account, err := h.Accounts.VerifyEmail(r.Context(), req.Code)
	if err != nil {
		return err
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.UserResponse{
		Success: true,
		Message: "Email verified successfully",
		User:    toUser(account),
	})
	return nil
}

// HandleForgotPassword emails a reset link.
//
//	@Summary		Forgot password
//	@Description	Unlike login this reveals whether the email is registered.
//	@Tags			Accounts
//	@Accept			json
//	@Produce		json
//	@Param			X-CSRF-Token	header		string					true	"Value of the XSRF-TOKEN cookie"
//	@Param			request			body		authsdk.EmailRequest	true	"Account email"
//	@Success		200				{object}	authsdk.MessageResponse
//	@Failure		404				{object}	authsdk.ErrorResponse	"USER_NOT_FOUND"
//	@Failure		500				{object}	authsdk.ErrorResponse	"EMAIL_SEND_FAILED"
//	@Router			/api/auth/forgot-password [post].
func (h *AccountHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) error {
	var req authsdk.EmailRequest
	if err := decode(r, &req); err != nil {
		return err
	}

	if err := h.Accounts.ForgotPassword(r.Context(), req.Email); err != nil {
		return err
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{
		Success: true,
		Message: "Password reset link sent to your email",
	})
	return nil
}

// HandleResetPassword redeems a reset token from the path.
//
//	@Summary	Reset password
//	@Tags		Accounts
//	@Accept		json
//	@Produce	json
//	@Param		token			path		string							true	"Raw token from the reset link"
//	@Param		X-CSRF-Token	header		string							true	"Value of the XSRF-TOKEN cookie"
//	@Param		request			body		authsdk.ResetPasswordRequest	true	"New password"
//	@Success	200				{object}	authsdk.MessageResponse
//	@Failure	400				{object}	authsdk.ErrorResponse	"VALIDATION_ERROR"
//	@Failure	401				{object}	authsdk.ErrorResponse	"TOKEN_EXPIRED"
//	@Router		/api/auth/reset-password/{token} [post].
func (h *AccountHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) error {
	var req authsdk.ResetPasswordRequest
	if err := decode(r, &req); err != nil {
		return err
	}

	if err := h.Accounts.ResetPassword(r.Context(), r.PathValue("token"), req.Password); err != nil {
		return err
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{
		Success: true,
		Message: "Password reset successful",
	})
	return nil
}

// HandleResendVerification replaces and re-sends the verification code.
//
//	@Summary	Resend verification code
//	@Tags		Accounts
//	@Accept		json
//	@Produce	json
//	@Param		X-CSRF-Token	header		string					true	"Value of the XSRF-TOKEN cookie"
//	@Param		request			body		authsdk.EmailRequest	true	"Account email"
//	@Success	200				{object}	authsdk.MessageResponse
//	@Failure	400				{object}	authsdk.ErrorResponse	"EMAIL_REQUIRED or ALREADY_VERIFIED"
//	@Failure	404				{object}	authsdk.ErrorResponse	"USER_NOT_FOUND"
//	@Failure	500				{object}	authsdk.ErrorResponse	"EMAIL_SEND_FAILED"
//	@Router		/api/auth/resend-verification [post].
func (h *AccountHandler) HandleResendVerification(w http.ResponseWriter, r *http.Request) error {
	var req authsdk.EmailRequest
	if err := decode(r, &req); err != nil {
		return err
	}

	if err := h.Accounts.ResendVerification(r.Context(), req.Email); err != nil {
		return err
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{
		Success: true,
		Message: "Verification code sent",
	})
	return nil
}

// HandleCheckAuth returns the signed-in account.
//
//	@Summary	Current account
//	@Tags		Accounts
//	@Security	SessionCookie
//	@Produce	json
//	@Success	200	{object}	authsdk.UserResponse
//	@Failure	401	{object}	authsdk.ErrorResponse	"UNAUTHORIZED"
//	@Failure	404	{object}	authsdk.ErrorResponse	"USER_NOT_FOUND"
//	@Router		/api/auth/check-auth [get].
func (h *AccountHandler) HandleCheckAuth(w http.ResponseWriter, r *http.Request) error {
	accountID, ok := httpx.AccountIDFromContext(r.Context())
	if !ok {
		return apperr.Authorization("Unauthorized - no token provided")
	}

	account, err := h.Accounts.CheckAuth(r.Context(), accountID)
	if err != nil {
		return err
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.UserResponse{
		Success: true,
		User:    toUser(account),
	})
	return nil
}

// HandleCSRF issues a CSRF token as a cookie and in the body.
//
//	@Summary	CSRF token
//	@Tags		Accounts
//	@Produce	json
//	@Success	200	{object}	authsdk.CSRFResponse
//	@Failure	429	{object}	authsdk.ErrorResponse	"RATE_LIMIT_EXCEEDED"
//	@Router		/api/auth/csrf [get].
func (h *AccountHandler) HandleCSRF(w http.ResponseWriter, r *http.Request) error {
	token, err := h.Sessions.WriteCSRF(w)
	if err != nil {
		return err
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.CSRFResponse{Token: token})
	return nil
}
