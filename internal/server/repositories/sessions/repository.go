// Package sessions declares the repository contract for refresh-session
// records.
package sessions

import (
	"context"

	"github.com/dmitrijs2005/tglinker/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking
// sessions. Rotation (delete + create) runs inside a transaction at the
// service layer.
type Repository interface {
	// Create stores a new session row.
	Create(ctx context.Context, session *models.Session) error

	// Get looks up a session by its opaque id. Returns common.ErrorNotFound
	// when absent.
	Get(ctx context.Context, id string) (*models.Session, error)

	// Delete removes a session by id. Returns common.ErrorNotFound when no
	// row was deleted, so a concurrent redeemer of the same token can tell it
	// lost the rotation.
	Delete(ctx context.Context, id string) error
}
