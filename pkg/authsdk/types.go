package authsdk

import "time"

// ============================================================================
// Request Types
// ============================================================================

type SignupRequest struct {
	Email    string `json:"email" example:"alice@example.com"`
	Password string `json:"password" example:"correct horse battery staple"`
	Name     string `json:"name" example:"Alice"`
}

type LoginRequest struct {
	Email    string `json:"email" example:"alice@example.com"`
	Password string `json:"password" example:"correct horse battery staple"`
}

type VerifyEmailRequest struct {
	Code string `json:"code" example:"482913"`
}

// EmailRequest is the body of forgot-password and resend-verification.
type EmailRequest struct {
	Email string `json:"email" example:"alice@example.com"`
}

// ResetPasswordRequest carries the new password. The reset token travels in
// the path.
type ResetPasswordRequest struct {
	Password string `json:"password" example:"a brand new password"`
}

// ============================================================================
// Response Types
// ============================================================================

// User is the public view of an account. Password and token hashes never
// leave the server.
type User struct {
	ID         string     `json:"id" example:"01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV"`
	Email      string     `json:"email" example:"alice@example.com"`
	Name       string     `json:"name" example:"Alice"`
	IsVerified bool       `json:"isVerified"`
	LastLogin  *time.Time `json:"lastLogin,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// UserResponse is returned by sign-up, login, verify-email and check-auth.
type UserResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty" example:"Logged in successfully"`
	User    User   `json:"user"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message" example:"Verification code sent"`
}

// CSRFResponse echoes the token that was also set as the XSRF-TOKEN cookie.
type CSRFResponse struct {
	Token string `json:"token" example:"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"`
}

// ErrorResponse is the single error body every failing endpoint returns.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code" example:"VALIDATION_ERROR"`
	Message string `json:"message" example:"All fields are required"`

	// Details maps field names to what is wrong with them.
	Details map[string]string `json:"details,omitempty"`

	// Timestamp is RFC 3339 in UTC.
	Timestamp string `json:"timestamp" example:"2024-01-01T00:00:00Z"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database"`
	Session  string `json:"session"`
}
