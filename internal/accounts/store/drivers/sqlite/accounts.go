package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/aussiebroadwan/accounts/internal/accounts/domain"
	"github.com/aussiebroadwan/accounts/internal/accounts/store"
	"github.com/aussiebroadwan/accounts/pkg/idx"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const accountColumns = `id, email, password_hash, name, is_verified,
	verification_token_hash, verification_token_expires_at,
	reset_password_token_hash, reset_password_expires_at,
	last_login, created_at, updated_at`

type accountsRepo struct {
	db DBTX
}

func (r *accountsRepo) CreateAccount(ctx context.Context, a domain.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.PasswordHash, a.Name, a.IsVerified,
		nullString(a.VerificationTokenHash), nullMillis(a.VerificationTokenExpiresAt),
		nullString(a.ResetPasswordTokenHash), nullMillis(a.ResetPasswordExpiresAt),
		nullMillis(a.LastLogin), toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *accountsRepo) GetAccountByID(ctx context.Context, id idx.ID) (domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (r *accountsRepo) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)
	return scanAccount(row)
}

func (r *accountsRepo) UpdateLastLogin(ctx context.Context, id idx.ID, at time.Time) error {
	return r.execOne(ctx,
		`UPDATE accounts SET last_login = ?, updated_at = ? WHERE id = ?`,
		toMillis(at), toMillis(at), id)
}

func (r *accountsRepo) SetVerificationToken(ctx context.Context, id idx.ID, hash string, expiresAt, now time.Time) error {
	return r.execOne(ctx,
		`UPDATE accounts
		 SET verification_token_hash = ?, verification_token_expires_at = ?, updated_at = ?
		 WHERE id = ?`,
		hash, toMillis(expiresAt), toMillis(now), id)
}

func (r *accountsRepo) SetResetToken(ctx context.Context, id idx.ID, hash string, expiresAt, now time.Time) error {
	return r.execOne(ctx,
		`UPDATE accounts
		 SET reset_password_token_hash = ?, reset_password_expires_at = ?, updated_at = ?
		 WHERE id = ?`,
		hash, toMillis(expiresAt), toMillis(now), id)
}

// ConsumeVerificationToken picks the oldest account holding the live hash and
// clears it in the same statement. The outer predicate repeats the inner one
// so a concurrent winner leaves nothing for the loser to update.
func (r *accountsRepo) ConsumeVerificationToken(ctx context.Context, hash string, now time.Time) (domain.Account, error) {
	ms := toMillis(now)
	row := r.db.QueryRowContext(ctx,
		`UPDATE accounts
		 SET is_verified = 1,
		     verification_token_hash = NULL,
		     verification_token_expires_at = NULL,
		     updated_at = ?
		 WHERE id = (
		     SELECT id FROM accounts
		     WHERE verification_token_hash = ? AND verification_token_expires_at > ?
		     ORDER BY created_at, id
		     LIMIT 1
		 )
		 AND verification_token_hash = ?
		 AND verification_token_expires_at > ?
		 RETURNING `+accountColumns,
		ms, hash, ms, hash, ms)
	return scanAccount(row)
}

func (r *accountsRepo) ConsumeResetToken(ctx context.Context, hash, newPasswordHash string, now time.Time) (domain.Account, error) {
	ms := toMillis(now)
	row := r.db.QueryRowContext(ctx,
		`UPDATE accounts
		 SET password_hash = ?,
		     reset_password_token_hash = NULL,
		     reset_password_expires_at = NULL,
		     updated_at = ?
		 WHERE id = (
		     SELECT id FROM accounts
		     WHERE reset_password_token_hash = ? AND reset_password_expires_at > ?
		     ORDER BY created_at, id
		     LIMIT 1
		 )
		 AND reset_password_token_hash = ?
		 AND reset_password_expires_at > ?
		 RETURNING `+accountColumns,
		newPasswordHash, ms, hash, ms, hash, ms)
	return scanAccount(row)
}

func (r *accountsRepo) ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	ms := toMillis(now)
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET verification_token_hash = CASE WHEN verification_token_expires_at <= ? THEN NULL ELSE verification_token_hash END,
		     verification_token_expires_at = CASE WHEN verification_token_expires_at <= ? THEN NULL ELSE verification_token_expires_at END,
		     reset_password_token_hash = CASE WHEN reset_password_expires_at <= ? THEN NULL ELSE reset_password_token_hash END,
		     reset_password_expires_at = CASE WHEN reset_password_expires_at <= ? THEN NULL ELSE reset_password_expires_at END,
		     updated_at = ?
		 WHERE verification_token_expires_at <= ? OR reset_password_expires_at <= ?`,
		ms, ms, ms, ms, ms, ms, ms)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// execOne runs an update that must hit exactly one row.
func (r *accountsRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
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
		verifyExp, resetExp   sql.NullInt64
		lastLogin             sql.NullInt64
		createdAt, updatedAt  int64
	)

	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Name, &a.IsVerified,
		&verifyHash, &verifyExp,
		&resetHash, &resetExp,
		&lastLogin, &createdAt, &updatedAt,
	)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}

	a.VerificationTokenHash = verifyHash.String
	a.VerificationTokenExpiresAt = millisPtr(verifyExp)
	a.ResetPasswordTokenHash = resetHash.String
	a.ResetPasswordExpiresAt = millisPtr(resetExp)
	a.LastLogin = millisPtr(lastLogin)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return a, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// Extended result codes disabled on this connection
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func millisPtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
