package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/accounts/internal/accounts/domain"
	"github.com/aussiebroadwan/accounts/internal/accounts/store"
	"github.com/aussiebroadwan/accounts/pkg/idx"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const accountColumns = `id, email, password_hash, name, is_verified,
	verification_token_hash, verification_token_expires_at,
	reset_password_token_hash, reset_password_expires_at,
	last_login, created_at, updated_at`

type accountsRepo struct {
	db DBTX
}

func (r *accountsRepo) CreateAccount(ctx context.Context, a domain.Account) error {
	query := `INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.Email, a.PasswordHash, a.Name, a.IsVerified,
		nullString(a.VerificationTokenHash), nullTime(a.VerificationTokenExpiresAt),
		nullString(a.ResetPasswordTokenHash), nullTime(a.ResetPasswordExpiresAt),
		nullTime(a.LastLogin), a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *accountsRepo) GetAccountByID(ctx context.Context, id idx.ID) (domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *accountsRepo) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

func (r *accountsRepo) UpdateLastLogin(ctx context.Context, id idx.ID, at time.Time) error {
	query := `UPDATE accounts SET last_login = $2, updated_at = $2 WHERE id = $1`
	return r.execOne(ctx, query, id, at.UTC())
}

func (r *accountsRepo) SetVerificationToken(ctx context.Context, id idx.ID, hash string, expiresAt, now time.Time) error {
	query := `UPDATE accounts
		SET verification_token_hash = $2, verification_token_expires_at = $3, updated_at = $4
		WHERE id = $1`
	return r.execOne(ctx, query, id, hash, expiresAt.UTC(), now.UTC())
}

func (r *accountsRepo) SetResetToken(ctx context.Context, id idx.ID, hash string, expiresAt, now time.Time) error {
	query := `UPDATE accounts
		SET reset_password_token_hash = $2, reset_password_expires_at = $3, updated_at = $4
		WHERE id = $1`
	return r.execOne(ctx, query, id, hash, expiresAt.UTC(), now.UTC())
}

// ConsumeVerificationToken locks the oldest matching row; a concurrent caller
// blocks on that lock and then re-checks the predicate against the cleared
// row, so it updates nothing.
func (r *accountsRepo) ConsumeVerificationToken(ctx context.Context, hash string, now time.Time) (domain.Account, error) {
	query := `UPDATE accounts
		SET is_verified = TRUE,
		    verification_token_hash = NULL,
		    verification_token_expires_at = NULL,
		    updated_at = $2
		WHERE id = (
		    SELECT id FROM accounts
		    WHERE verification_token_hash = $1 AND verification_token_expires_at > $2
		    ORDER BY created_at, id
		    LIMIT 1
		    FOR UPDATE
		)
		AND verification_token_hash = $1
		AND verification_token_expires_at > $2
		RETURNING ` + accountColumns
	return scanAccount(r.db.QueryRowContext(ctx, query, hash, now.UTC()))
}

func (r *accountsRepo) ConsumeResetToken(ctx context.Context, hash, newPasswordHash string, now time.Time) (domain.Account, error) {
	query := `UPDATE accounts
		SET password_hash = $3,
		    reset_password_token_hash = NULL,
		    reset_password_expires_at = NULL,
		    updated_at = $2
		WHERE id = (
		    SELECT id FROM accounts
		    WHERE reset_password_token_hash = $1 AND reset_password_expires_at > $2
		    ORDER BY created_at, id
		    LIMIT 1
		    FOR UPDATE
		)
		AND reset_password_token_hash = $1
		AND reset_password_expires_at > $2
		RETURNING ` + accountColumns
	return scanAccount(r.db.QueryRowContext(ctx, query, hash, now.UTC(), newPasswordHash))
}

func (r *accountsRepo) ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE accounts
		SET verification_token_hash = CASE WHEN verification_token_expires_at <= $1 THEN NULL ELSE verification_token_hash END,
		    verification_token_expires_at = CASE WHEN verification_token_expires_at <= $1 THEN NULL ELSE verification_token_expires_at END,
		    reset_password_token_hash = CASE WHEN reset_password_expires_at <= $1 THEN NULL ELSE reset_password_token_hash END,
		    reset_password_expires_at = CASE WHEN reset_password_expires_at <= $1 THEN NULL ELSE reset_password_expires_at END,
		    updated_at = $1
		WHERE verification_token_expires_at <= $1 OR reset_password_expires_at <= $1`

	res, err := r.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func (r *accountsRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanAccount(row *sql.Row) (domain.Account, error) {
	var (
		a                     domain.Account
		verifyHash, resetHash sql.NullString
		verifyExp, resetExp   sql.NullTime
		lastLogin             sql.NullTime
	)

	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Name, &a.IsVerified,
		&verifyHash, &verifyExp,
		&resetHash, &resetExp,
		&lastLogin, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, store.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("db error: %w", err)
	}

	a.VerificationTokenHash = verifyHash.String
	a.VerificationTokenExpiresAt = timePtr(verifyExp)
	a.ResetPasswordTokenHash = resetHash.String
	a.ResetPasswordExpiresAt = timePtr(resetExp)
	a.LastLogin = timePtr(lastLogin)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
