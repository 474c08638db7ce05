package models

import "time"

// LinkedAccountStatus tracks the lifecycle of one external identity binding.
type LinkedAccountStatus string

const (
	LinkedAccountPending LinkedAccountStatus = "pending"
	LinkedAccountActive  LinkedAccountStatus = "active"
	LinkedAccountBanned  LinkedAccountStatus = "banned"
)

// LinkedAccount binds an external phone-based messaging identity to a User.
// (UserID, Phone) is unique. SessionString holds the encrypted resumable
// secret of the external session; it stays nil until a verification
// handshake completes or the caller sets one explicitly.
type LinkedAccount struct {
	ID            string
	UserID        string
	Phone         string
	SessionString *string
	Status        LinkedAccountStatus
	CreatedAt     time.Time
}
