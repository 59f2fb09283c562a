package domain

import (
	"errors"
	"time"
)

// Account is a gradebook user. InternalID is minted by the identifier allocator.
type Account struct {
	InternalID   string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Validate validates the account for persistence. Returns an error describing the first validation failure.
func (a *Account) Validate() error {
	if a.InternalID == "" {
		return errors.New("internal id is required")
	}
	if a.Email == "" {
		return errors.New("email is required")
	}
	if a.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}
