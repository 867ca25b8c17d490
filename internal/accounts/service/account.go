// Package service holds the account workflows: signup, login, email
// verification, password reset and resend. Every failure it returns is an
// *apperr.Error.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/accounts/internal/accounts/apperr"
	"github.com/aussiebroadwan/accounts/internal/accounts/domain"
	"github.com/aussiebroadwan/accounts/internal/accounts/mail"
	"github.com/aussiebroadwan/accounts/internal/accounts/session"
	"github.com/aussiebroadwan/accounts/internal/accounts/store"
	"github.com/aussiebroadwan/accounts/pkg/cryptox"
	"github.com/aussiebroadwan/accounts/pkg/idx"
	"github.com/aussiebroadwan/accounts/pkg/slogx"
)

const (
	DefaultVerificationTTL = 24 * time.Hour
	DefaultResetTTL        = time.Hour
)

const (
	msgInvalidCredentials = "Invalid credentials"
	msgUserNotFound       = "User not found"
)

type Options struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration

	// ResetURLBase is the frontend origin reset links point at; the raw token
	// is appended as /reset-password/{token}.
	ResetURLBase string

	// Now overrides the clock, time.Now when nil.
	Now func() time.Time
}

// AuthResult is returned by the operations that start a session. The HTTP
// layer writes Session as cookies.
type AuthResult struct {
	Account domain.Account
	Session session.Session
}

type AccountService struct {
	Store    store.Store
	Hasher   *cryptox.PasswordHasher
	Sessions *session.Issuer
	Mailer   mail.Notifier

	opts Options
}

func NewAccountService(
	st store.Store,
	hasher *cryptox.PasswordHasher,
	sessions *session.Issuer,
	mailer mail.Notifier,
	opts Options,
) *AccountService {
	if opts.VerificationTTL <= 0 {
		opts.VerificationTTL = DefaultVerificationTTL
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = DefaultResetTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.ResetURLBase = strings.TrimRight(opts.ResetURLBase, "/")

	return &AccountService{
		Store:    st,
		Hasher:   hasher,
		Sessions: sessions,
		Mailer:   mailer,
		opts:     opts,
	}
}

func (s *AccountService) now() time.Time {
	return s.opts.Now().UTC().Truncate(time.Millisecond)
}

// Signup creates an unverified account, starts a session for it and mails the
// verification code. A failed mail is logged only; the code can be resent.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (AuthResult, error) {
	log := slogx.FromContext(ctx)

	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := invalid("All fields are required", in.Validate()); err != nil {
		return AuthResult{}, err
	}

	passwordHash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	code, codeHash, err := cryptox.GenerateVerificationCode()
	if err != nil {
		return AuthResult{}, fmt.Errorf("generate verification code: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(s.opts.VerificationTTL)
	account := domain.Account{
		ID:                         idx.NewAt(now),
		Email:                      in.Email,
		PasswordHash:               passwordHash,
		Name:                       in.Name,
		VerificationTokenHash:      codeHash,
		VerificationTokenExpiresAt: &expiresAt,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}

	// The unique email index decides duplicates.
	err = s.Store.Accounts().CreateAccount(ctx, account)
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		err = apperr.Conflict("User already exists")
	case err != nil:
		err = apperr.Database(err)
	}
	if err != nil {
		if apperr.IsKind(err, apperr.KindConflict) {
			log.Info("signup rejected, email taken")
		} else {
			log.Error("signup failed", slog.Any("error", err))
		}
		return AuthResult{}, err
	}

	sess, err := s.Sessions.Mint(account.ID.String())
	if err != nil {
		return AuthResult{}, fmt.Errorf("mint session: %w", err)
	}

	if err := s.Mailer.SendVerificationCode(ctx, account.Email, account.Name, code, s.opts.VerificationTTL); err != nil {
		log.Warn("verification mail failed",
			slog.String("account_id", account.ID.String()),
			slog.Any("error", err),
		)
	}

	log.Info("account created", slog.String("account_id", account.ID.String()))
	return AuthResult{Account: account, Session: sess}, nil
}

// Login checks credentials. Unknown email and wrong password produce the same
// error after the same amount of hashing work.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	log := slogx.FromContext(ctx)

	in.Email = normalizeEmail(in.Email)
	if err := invalid("Email and password are required", in.Validate()); err != nil {
		return AuthResult{}, err
	}

	account, err := s.Store.Accounts().GetAccountByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = s.Hasher.VerifyDummy(in.Password)
			log.Info("login failed")
			return AuthResult{}, apperr.Authentication(msgInvalidCredentials)
		}
		log.Error("login lookup failed", slog.Any("error", err))
		return AuthResult{}, apperr.Database(err)
	}

	if err := s.Hasher.Verify(in.Password, account.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			log.Error("stored password hash unusable",
				slog.String("account_id", account.ID.String()),
				slog.Any("error", err),
			)
		}
		log.Info("login failed")
		return AuthResult{}, apperr.Authentication(msgInvalidCredentials)
	}

	if !account.IsVerified {
		return AuthResult{}, apperr.EmailNotVerified("Please verify your email before logging in")
	}

	now := s.now()
	if err := s.Store.Accounts().UpdateLastLogin(ctx, account.ID, now); err != nil {
		log.Error("update last login failed", slog.Any("error", err))
		return AuthResult{}, apperr.Database(err)
	}
	account.LastLogin = &now
	account.UpdatedAt = now

	sess, err := s.Sessions.Mint(account.ID.String())
	if err != nil {
		return AuthResult{}, fmt.Errorf("mint session: %w", err)
	}

	log.Info("login succeeded", slog.String("account_id", account.ID.String()))
	return AuthResult{Account: account, Session: sess}, nil
}

// VerifyEmail redeems a verification code. The store clears the code in the
// same statement that marks the account verified, so a code works once.
func (s *AccountService) VerifyEmail(ctx context.Context, code string) (domain.Account, error) {
	log := slogx.FromContext(ctx)

	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Account{}, apperr.Validation("Verification code is required", map[string]string{
			"code": "cannot be blank",
		})
	}

	account, err := s.Store.Accounts().ConsumeVerificationToken(ctx, cryptox.HashToken(code), s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Account{}, apperr.TokenExpired("Invalid or expired verification code")
		}
		log.Error("consume verification token failed", slog.Any("error", err))
		return domain.Account{}, apperr.Database(err)
	}

	if err := s.Mailer.SendWelcome(ctx, account.Email, account.Name); err != nil {
		log.Warn("welcome mail failed",
			slog.String("account_id", account.ID.String()),
			slog.Any("error", err),
		)
	}

	log.Info("email verified", slog.String("account_id", account.ID.String()))
	return account, nil
}

// ForgotPassword stores a fresh reset token and mails the link. Unlike
// signup the mail is the whole point, so its failure is returned.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	log := slogx.FromContext(ctx)

	email = normalizeEmail(email)
	if email == "" {
		return apperr.Validation("Email is required", map[string]string{"email": "cannot be blank"})
	}

	account, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}

	raw, hash, err := cryptox.GenerateOpaqueToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	now := s.now()
	if err := s.Store.Accounts().SetResetToken(ctx, account.ID, hash, now.Add(s.opts.ResetTTL), now); err != nil {
		log.Error("store reset token failed", slog.Any("error", err))
		return apperr.Database(err)
	}

	if err := s.Mailer.SendPasswordReset(ctx, account.Email, s.ResetURL(raw), s.opts.ResetTTL); err != nil {
		log.Error("password reset mail failed",
			slog.String("account_id", account.ID.String()),
			slog.Any("error", err),
		)
		return apperr.EmailSend(err)
	}

	log.Info("password reset requested", slog.String("account_id", account.ID.String()))
	return nil
}

// ResetPassword redeems a reset token and swaps in the new password in one
// store call.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	log := slogx.FromContext(ctx)

	in := resetInput{Token: strings.TrimSpace(token), Password: newPassword}
	if err := invalid("Token and password are required", in.Validate()); err != nil {
		return err
	}

	passwordHash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	account, err := s.Store.Accounts().ConsumeResetToken(ctx, cryptox.HashToken(in.Token), passwordHash, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.TokenExpired("Invalid or expired reset token")
		}
		log.Error("consume reset token failed", slog.Any("error", err))
		return apperr.Database(err)
	}

	if err := s.Mailer.SendPasswordResetSuccess(ctx, account.Email); err != nil {
		log.Warn("reset confirmation mail failed",
			slog.String("account_id", account.ID.String()),
			slog.Any("error", err),
		)
	}

	log.Info("password reset", slog.String("account_id", account.ID.String()))
	return nil
}

// ResendVerification replaces the pending verification code and mails it.
func (s *AccountService) ResendVerification(ctx context.Context, email string) error {
	log := slogx.FromContext(ctx)

	email = normalizeEmail(email)
	if email == "" {
		return apperr.Validation("Email is required", nil).WithCode("EMAIL_REQUIRED")
	}

	account, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}
	if account.IsVerified {
		return apperr.AlreadyVerified("Email is already verified")
	}

	code, hash, err := cryptox.GenerateVerificationCode()
	if err != nil {
		return fmt.Errorf("generate verification code: %w", err)
	}

	now := s.now()
	if err := s.Store.Accounts().SetVerificationToken(ctx, account.ID, hash, now.Add(s.opts.VerificationTTL), now); err != nil {
		log.Error("store verification token failed", slog.Any("error", err))
		return apperr.Database(err)
	}

	if err := s.Mailer.SendVerificationCode(ctx, account.Email, account.Name, code, s.opts.VerificationTTL); err != nil {
		log.Error("verification mail failed",
			slog.String("account_id", account.ID.String()),
			slog.Any("error", err),
		)
		return apperr.EmailSend(err)
	}

	log.Info("verification code resent", slog.String("account_id", account.ID.String()))
	return nil
}

// CheckAuth loads the account behind an authenticated session.
func (s *AccountService) CheckAuth(ctx context.Context, accountID string) (domain.Account, error) {
	id, err := idx.Parse(accountID)
	if err != nil {
		return domain.Account{}, apperr.Authorization("Unauthorized")
	}

	account, err := s.Store.Accounts().GetAccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Account{}, apperr.NotFound(msgUserNotFound)
		}
		slogx.FromContext(ctx).Error("check auth lookup failed", slog.Any("error", err))
		return domain.Account{}, apperr.Database(err)
	}
	return account, nil
}

// ResetURL is the link mailed for a raw reset token.
func (s *AccountService) ResetURL(rawToken string) string {
	return s.opts.ResetURLBase + "/reset-password/" + rawToken
}

func (s *AccountService) lookup(ctx context.Context, email string) (domain.Account, error) {
	account, err := s.Store.Accounts().GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Account{}, apperr.NotFound(msgUserNotFound)
		}
		slogx.FromContext(ctx).Error("account lookup failed", slog.Any("error", err))
		return domain.Account{}, apperr.Database(err)
	}
	return account, nil
}
