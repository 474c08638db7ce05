// Package models holds the persistent and queue-borne data structures of the
// server.
package models

import "time"

// User is one authenticated principal. Email is stored normalized
// (trimmed, lowercased) and is unique. ConfirmationToken is present only
// while the email is unverified and is cleared exactly once on confirmation.
type User struct {
	ID                string
	Email             string
	PasswordHash      string
	EmailVerified     bool
	ConfirmationToken *string
	CreatedAt         time.Time
}
