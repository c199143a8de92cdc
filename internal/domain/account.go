package domain

import "time"

// Account represents a registered user identity.
type Account struct {
	ID                string
	Username          string
	Email             string
	PasswordHash      []byte
	Verified          bool
	VerificationToken string
	CreatedAt         time.Time
}
