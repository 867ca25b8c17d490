// Package storetest is a behavioural suite every store driver must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/accounts/internal/accounts/domain"
	"github.com/aussiebroadwan/accounts/internal/accounts/store"
	"github.com/aussiebroadwan/accounts/pkg/cryptox"
	"github.com/aussiebroadwan/accounts/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty, migrated store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

// Run executes the full suite against the driver produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"DuplicateEmail", testDuplicateEmail},
		{"NotFound", testNotFound},
		{"UpdateLastLogin", testUpdateLastLogin},
		{"ConsumeVerificationToken", testConsumeVerificationToken},
		{"VerificationTokenOverwrite", testVerificationTokenOverwrite},
		{"SetTokensStampUpdatedAt", testSetTokensStampUpdatedAt},
		{"ExpiredTokensAreNotConsumed", testExpiredTokens},
		{"ConsumeResetToken", testConsumeResetToken},
		{"HashCollisionOldestWins", testHashCollision},
		{"ConcurrentConsumeSingleWinner", testConcurrentConsume},
		{"ClearExpiredTokens", testClearExpiredTokens},
		{"WithTxRollback", testWithTxRollback},
		{"WithTxCommit", testWithTxCommit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// NewAccount returns an unverified account with a unique email.
func NewAccount(email string) domain.Account {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return domain.Account{
		ID:           idx.New(),
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		Name:         "Test User",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func mustCreate(t *testing.T, s store.Store, email string) domain.Account {
	t.Helper()
	a := NewAccount(email)
	require.NoError(t, s.Accounts().CreateAccount(context.Background(), a))
	return a
}

func testCreateAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "alice@example.com")

	byID, err := s.Accounts().GetAccountByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, a.ID, byID.ID)
	require.Equal(t, "alice@example.com", byID.Email)
	require.Equal(t, a.PasswordHash, byID.PasswordHash)
	require.False(t, byID.IsVerified)
	require.Nil(t, byID.LastLogin)
	require.Nil(t, byID.VerificationTokenExpiresAt)
	require.Empty(t, byID.VerificationTokenHash)
	require.WithinDuration(t, a.CreatedAt, byID.CreatedAt, time.Millisecond)

	byEmail, err := s.Accounts().GetAccountByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, a.ID, byEmail.ID)
}

func testDuplicateEmail(t *testing.T, s store.Store) {
	mustCreate(t, s, "dup@example.com")

	err := s.Accounts().CreateAccount(context.Background(), NewAccount("dup@example.com"))
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func testNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Accounts().GetAccountByID(ctx, idx.New())
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Accounts().GetAccountByEmail(ctx, "ghost@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	err = s.Accounts().SetVerificationToken(ctx, idx.New(), "hash", time.Now().Add(time.Hour), time.Now())
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Accounts().ConsumeVerificationToken(ctx, "nope", time.Now())
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Accounts().ConsumeResetToken(ctx, "nope", "new-hash", time.Now())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testUpdateLastLogin(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "login@example.com")

	at := time.Now().UTC()
	require.NoError(t, s.Accounts().UpdateLastLogin(ctx, a.ID, at))

	got, err := s.Accounts().GetAccountByID(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLogin)
	require.WithinDuration(t, at, *got.LastLogin, time.Millisecond)

	require.ErrorIs(t, s.Accounts().UpdateLastLogin(ctx, idx.New(), at), store.ErrNotFound)
}

func testConsumeVerificationToken(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "verify@example.com")

	raw, hash, err := cryptox.GenerateVerificationCode()
	require.NoError(t, err)
	require.NoError(t, s.Accounts().SetVerificationToken(ctx, a.ID, hash, time.Now().Add(24*time.Hour), time.Now()))

	pending, err := s.Accounts().GetAccountByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, hash, pending.VerificationTokenHash)
	require.NotEqual(t, raw, pending.VerificationTokenHash, "raw code must never be stored")

	got, err := s.Accounts().ConsumeVerificationToken(ctx, cryptox.HashToken(raw), time.Now())
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)
	require.True(t, got.IsVerified)
	require.Empty(t, got.VerificationTokenHash)
	require.Nil(t, got.VerificationTokenExpiresAt)

	_, err = s.Accounts().ConsumeVerificationToken(ctx, hash, time.Now())
	require.ErrorIs(t, err, store.ErrNotFound, "second redemption must fail")
}

func testVerificationTokenOverwrite(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "overwrite@example.com")
	exp := time.Now().Add(time.Hour)

	require.NoError(t, s.Accounts().SetVerificationToken(ctx, a.ID, cryptox.HashToken("111111"), exp, time.Now()))
	require.NoError(t, s.Accounts().SetVerificationToken(ctx, a.ID, cryptox.HashToken("222222"), exp, time.Now()))

	_, err := s.Accounts().ConsumeVerificationToken(ctx, cryptox.HashToken("111111"), time.Now())
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Accounts().ConsumeVerificationToken(ctx, cryptox.HashToken("222222"), time.Now())
	require.NoError(t, err)
}

func testSetTokensStampUpdatedAt(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "stamp@example.com")

	verifiedAt := time.Date(2031, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.Accounts().SetVerificationToken(ctx, a.ID, "vhash", verifiedAt.Add(time.Hour), verifiedAt))

	got, err := s.Accounts().GetAccountByID(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, verifiedAt.Equal(got.UpdatedAt), "updated_at %v, want %v", got.UpdatedAt, verifiedAt)

	resetAt := verifiedAt.Add(time.Minute)
	require.NoError(t, s.Accounts().SetResetToken(ctx, a.ID, "rhash", resetAt.Add(time.Hour), resetAt))

	got, err = s.Accounts().GetAccountByID(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, resetAt.Equal(got.UpdatedAt), "updated_at %v, want %v", got.UpdatedAt, resetAt)
}

func testExpiredTokens(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "expired@example.com")
	past := time.Now().Add(-time.Minute)

	require.NoError(t, s.Accounts().SetVerificationToken(ctx, a.ID, "vhash", past, time.Now()))
	require.NoError(t, s.Accounts().SetResetToken(ctx, a.ID, "rhash", past, time.Now()))

	_, err := s.Accounts().ConsumeVerificationToken(ctx, "vhash", time.Now())
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Accounts().ConsumeResetToken(ctx, "rhash", "new", time.Now())
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.Accounts().GetAccountByID(ctx, a.ID)
	require.NoError(t, err)
	require.False(t, got.IsVerified)
	require.Equal(t, a.PasswordHash, got.PasswordHash)
}

func testConsumeResetToken(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "reset@example.com")

	raw, hash, err := cryptox.GenerateOpaqueToken()
	require.NoError(t, err)
	require.NoError(t, s.Accounts().SetResetToken(ctx, a.ID, hash, time.Now().Add(time.Hour), time.Now()))

	got, err := s.Accounts().ConsumeResetToken(ctx, cryptox.HashToken(raw), "new-password-hash", time.Now())
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)
	require.Equal(t, "new-password-hash", got.PasswordHash)
	require.Empty(t, got.ResetPasswordTokenHash)
	require.Nil(t, got.ResetPasswordExpiresAt)
	require.False(t, got.IsVerified, "reset must not touch verification state")

	_, err = s.Accounts().ConsumeResetToken(ctx, hash, "other", time.Now())
	require.ErrorIs(t, err, store.ErrNotFound)
}

// Six digit codes collide across accounts. Each redemption must resolve to
// exactly one account.
func testHashCollision(t *testing.T, s store.Store) {
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	hash := cryptox.HashToken("123456")

	older := NewAccount("older@example.com")
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	require.NoError(t, s.Accounts().CreateAccount(ctx, older))
	newer := mustCreate(t, s, "newer@example.com")

	require.NoError(t, s.Accounts().SetVerificationToken(ctx, newer.ID, hash, exp, time.Now()))
	require.NoError(t, s.Accounts().SetVerificationToken(ctx, older.ID, hash, exp, time.Now()))

	first, err := s.Accounts().ConsumeVerificationToken(ctx, hash, time.Now())
	require.NoError(t, err)
	require.Equal(t, older.ID, first.ID)

	second, err := s.Accounts().ConsumeVerificationToken(ctx, hash, time.Now())
	require.NoError(t, err)
	require.Equal(t, newer.ID, second.ID)
}

func testConcurrentConsume(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "race@example.com")
	hash := cryptox.HashToken("654321")
	require.NoError(t, s.Accounts().SetVerificationToken(ctx, a.ID, hash, time.Now().Add(time.Hour), time.Now()))

	const workers = 8
	var (
		wg       sync.WaitGroup
		winners  atomic.Int32
		notFound atomic.Int32
		start    = make(chan struct{})
	)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.Accounts().ConsumeVerificationToken(ctx, hash, time.Now())
			switch {
			case err == nil:
				winners.Add(1)
			case errors.Is(err, store.ErrNotFound):
				notFound.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(1), winners.Load())
	require.Equal(t, int32(workers-1), notFound.Load())
}

func testClearExpiredTokens(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now()

	stale := mustCreate(t, s, "stale@example.com")
	live := mustCreate(t, s, "live@example.com")
	mixed := mustCreate(t, s, "mixed@example.com")
	mustCreate(t, s, "idle@example.com")

	require.NoError(t, s.Accounts().SetVerificationToken(ctx, stale.ID, "v1", now.Add(-time.Hour), time.Now()))
	require.NoError(t, s.Accounts().SetResetToken(ctx, stale.ID, "r1", now.Add(-time.Minute), time.Now()))
	require.NoError(t, s.Accounts().SetVerificationToken(ctx, live.ID, "v2", now.Add(time.Hour), time.Now()))
	require.NoError(t, s.Accounts().SetVerificationToken(ctx, mixed.ID, "v3", now.Add(time.Hour), time.Now()))
	require.NoError(t, s.Accounts().SetResetToken(ctx, mixed.ID, "r3", now.Add(-time.Hour), time.Now()))

	n, err := s.Accounts().ClearExpiredTokens(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	got, err := s.Accounts().GetAccountByID(ctx, stale.ID)
	require.NoError(t, err)
	require.Empty(t, got.VerificationTokenHash)
	require.Nil(t, got.VerificationTokenExpiresAt)
	require.Empty(t, got.ResetPasswordTokenHash)
	require.Nil(t, got.ResetPasswordExpiresAt)

	got, err = s.Accounts().GetAccountByID(ctx, live.ID)
	require.NoError(t, err)
	require.Equal(t, "v2", got.VerificationTokenHash)

	got, err = s.Accounts().GetAccountByID(ctx, mixed.ID)
	require.NoError(t, err)
	require.Equal(t, "v3", got.VerificationTokenHash)
	require.Empty(t, got.ResetPasswordTokenHash)

	n, err = s.Accounts().ClearExpiredTokens(ctx, now)
	require.NoError(t, err)
	require.Zero(t, n)
}

func testWithTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")
	a := NewAccount("rollback@example.com")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().CreateAccount(ctx, a); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Accounts().GetAccountByID(ctx, a.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testWithTxCommit(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := NewAccount("commit@example.com")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().CreateAccount(ctx, a); err != nil {
			return err
		}
		return tx.Accounts().SetVerificationToken(ctx, a.ID, "hash", time.Now().Add(time.Hour), time.Now())
	})
	require.NoError(t, err)

	got, err := s.Accounts().GetAccountByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "hash", got.VerificationTokenHash)

	// Nested transactions are refused
	err = s.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.Tx(ctx)
		return err
	})
	require.Error(t, err)
}
