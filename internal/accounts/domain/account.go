package domain

import (
	"time"

	"github.com/aussiebroadwan/accounts/pkg/idx"
)

// Account is a registered identity. Token fields only ever hold SHA-256
// digests; the raw values exist in memory just long enough to be mailed.
type Account struct {
	ID           idx.ID
	Email        string // lower-cased, unique
	PasswordHash string // argon2id PHC string
	Name         string
	IsVerified   bool

	VerificationTokenHash      string
	VerificationTokenExpiresAt *time.Time

	ResetPasswordTokenHash string
	ResetPasswordExpiresAt *time.Time

	LastLogin *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
