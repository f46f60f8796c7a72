package types

import "time"

// User represents an account in the system.
// It contains identity, credential, and revocation metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's unique email address.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// TokenVersion is a per-user monotonic counter embedded into refresh
	// tokens at issuance time. Incrementing it invalidates every refresh
	// token issued before the increment. It starts at 0 and is only ever
	// mutated by explicit revocation.
	TokenVersion int `json:"-" db:"token_version"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
