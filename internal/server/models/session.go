package models

import "time"

// Session is one issued refresh-token lineage. Only the hash of the refresh
// token is stored; the session is deleted on rotation, logout, expiry
// detection, or hash mismatch.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	ExpiresAt        time.Time
	CreatedAt        time.Time
}
