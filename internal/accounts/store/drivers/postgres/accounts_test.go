package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aussiebroadwan/accounts/internal/accounts/store"
	"github.com/aussiebroadwan/accounts/internal/accounts/store/drivers/postgres"
	"github.com/aussiebroadwan/accounts/internal/accounts/store/storetest"
	"github.com/aussiebroadwan/accounts/pkg/idx"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*postgres.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return postgres.NewStoreWithDB(db), mock
}

func TestCreateAccount_UniqueViolation(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`INSERT INTO accounts`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err := s.Accounts().CreateAccount(context.Background(), storetest.NewAccount("dup@example.com"))
	require.ErrorIs(t, err, store.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAccount_OtherError(t *testing.T) {
	s, mock := newMock(t)
	boom := errors.New("connection reset")

	mock.ExpectExec(`INSERT INTO accounts`).WillReturnError(boom)

	err := s.Accounts().CreateAccount(context.Background(), storetest.NewAccount("a@example.com"))
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, store.ErrAlreadyExists)
}

func TestGetAccountByEmail_NotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE email = \$1`).
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.Accounts().GetAccountByEmail(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAccountByID_Scans(t *testing.T) {
	s, mock := newMock(t)
	id := idx.New()
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	expires := created.Add(24 * time.Hour)

	rows := sqlmock.NewRows([]string{
		"id", "email", "password_hash", "name", "is_verified",
		"verification_token_hash", "verification_token_expires_at",
		"reset_password_token_hash", "reset_password_expires_at",
		"last_login", "created_at", "updated_at",
	}).AddRow(id.String(), "a@example.com", "phc", "Alice", false,
		"vhash", expires, nil, nil, nil, created, created)

	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnRows(rows)

	a, err := s.Accounts().GetAccountByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, a.ID)
	require.Equal(t, "vhash", a.VerificationTokenHash)
	require.NotNil(t, a.VerificationTokenExpiresAt)
	require.True(t, expires.Equal(*a.VerificationTokenExpiresAt))
	require.Empty(t, a.ResetPasswordTokenHash)
	require.Nil(t, a.ResetPasswordExpiresAt)
	require.Nil(t, a.LastLogin)
}

func TestUpdateLastLogin_NoRows(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`UPDATE accounts SET last_login`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Accounts().UpdateLastLogin(context.Background(), idx.New(), time.Now())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestClearExpiredTokens_RowsAffected(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`UPDATE accounts`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.Accounts().ClearExpiredTokens(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestWithTx_RollbackOnError(t *testing.T) {
	s, mock := newMock(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(tx store.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_Commit(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE accounts SET last_login`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.Accounts().UpdateLastLogin(context.Background(), idx.New(), time.Now())
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
