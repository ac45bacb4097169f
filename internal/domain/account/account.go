package account

import (
	"errors"
	"time"
)

// Account is an identity provider user. Metadata holds the profile hints
// supplied at sign-up (user_type, names, phone, organization fields).
type Account struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	PasswordHash string         `json:"-"` // never expose hash in JSON
	Metadata     map[string]any `json:"user_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Update carries the fields PUT /auth/v1/user may change. Nil means keep.
type Update struct {
	Email        *string
	PasswordHash *string
	Metadata     map[string]any
}

var (
	ErrNotFound         = errors.New("account not found")
	ErrEmailAlreadyUsed = errors.New("email already in use")
)
