package http

import (
	"github.com/aussiebroadwan/accounts/internal/accounts/domain"
	"github.com/aussiebroadwan/accounts/pkg/authsdk"
)

// toUser strips hashes and token state from an account.
func toUser(a domain.Account) authsdk.User {
	return authsdk.User{
		ID:         a.ID.String(),
		Email:      a.Email,
		Name:       a.Name,
		IsVerified: a.IsVerified,
		LastLogin:  a.LastLogin,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}
