package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/accounts/internal/accounts/domain"
	"github.com/aussiebroadwan/accounts/pkg/idx"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. Sub-repositories are reached through methods so a Tx hands
// out repos bound to the transaction and nobody nests transactions by
// accident.
type Store interface {
	Accounts() Accounts

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Accounts interface {
	// CreateAccount inserts a new account. ErrAlreadyExists when the email is
	// taken.
	CreateAccount(ctx context.Context, a domain.Account) error

	GetAccountByID(ctx context.Context, id idx.ID) (domain.Account, error)

	// GetAccountByEmail expects an already normalised (lower-cased) email.
	GetAccountByEmail(ctx context.Context, email string) (domain.Account, error)

	UpdateLastLogin(ctx context.Context, id idx.ID, at time.Time) error

	// SetVerificationToken overwrites any pending verification token and
	// stamps updated_at with now.
	SetVerificationToken(ctx context.Context, id idx.ID, hash string, expiresAt, now time.Time) error

	// ConsumeVerificationToken atomically finds the account holding a live
	// verification token with this hash, marks it verified and clears the
	// token. Only one of several concurrent callers can win, the rest get
	// ErrNotFound.
	ConsumeVerificationToken(ctx context.Context, hash string, now time.Time) (domain.Account, error)

	// SetResetToken overwrites any pending password reset token and stamps
	// updated_at with now.
	SetResetToken(ctx context.Context, id idx.ID, hash string, expiresAt, now time.Time) error

	// ConsumeResetToken atomically swaps in newPasswordHash and clears the live
	// reset token with this hash. Same single-winner contract as
	// ConsumeVerificationToken.
	ConsumeResetToken(ctx context.Context, hash, newPasswordHash string, now time.Time) (domain.Account, error)

	// ClearExpiredTokens nulls token fields whose expiry is at or before now
	// and returns how many accounts were touched.
	ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}
