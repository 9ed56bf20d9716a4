package types

import "time"

// User represents an account in the system.
// Email is the login key; Username is a separate unique handle.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the user's login address. The domain part is stored
	// lowercased; the local part keeps the casing it was created with.
	Email string `json:"email" db:"email"`

	// Username is the unique display handle chosen by the user.
	Username string `json:"username" db:"username"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// IsActive reports whether the account may authenticate at all.
	IsActive bool `json:"is_active" db:"is_active"`

	// IsVerified reports whether the account's email has been confirmed.
	IsVerified bool `json:"is_verified" db:"is_verified"`

	// IsStaff grants access to operator tooling.
	IsStaff bool `json:"is_staff" db:"is_staff"`

	// IsSuperuser grants every permission.
	IsSuperuser bool `json:"is_superuser" db:"is_superuser"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UserFlags holds optional overrides for the boolean account flags.
// A nil field keeps the default for the creation path being used.
type UserFlags struct {
	IsActive    *bool
	IsVerified  *bool
	IsStaff     *bool
	IsSuperuser *bool
}

// Token is the opaque bearer credential issued to a user.
// A user owns at most one token; it is created on first login and reused.
type Token struct {
	// Key is the opaque value clients send in the Authorization header.
	Key string `json:"key" db:"key"`

	// UserID identifies the owner of the token.
	UserID int `json:"user_id" db:"user_id"`

	// CreatedAt is the timestamp when the token was issued.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
