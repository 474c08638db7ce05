// Package linkedaccounts declares the repository contract for external
// identity bindings.
package linkedaccounts

import (
	"context"

	"github.com/dmitrijs2005/tglinker/internal/server/models"
)

// Patch carries the mutable fields of an upsert/update. A nil field is left
// untouched; SessionString set to a pointer-to-nil-string is not expressible,
// so ClearSession requests an explicit reset to NULL.
type Patch struct {
	Phone         *string
	SessionString *string
	ClearSession  bool
	Status        *models.LinkedAccountStatus
}

// Repository defines persistence operations for linked accounts. Session
// strings pass through this layer already encrypted.
type Repository interface {
	// ListByUser returns the owner's accounts, newest first.
	ListByUser(ctx context.Context, userID string) ([]*models.LinkedAccount, error)

	// Create inserts a new account. A duplicate (user, phone) pair yields
	// common.ErrorAlreadyExists.
	Create(ctx context.Context, account *models.LinkedAccount) (*models.LinkedAccount, error)

	// Get returns the owner's account by id, common.ErrorNotFound otherwise.
	Get(ctx context.Context, userID, id string) (*models.LinkedAccount, error)

	// GetByUserAndPhone returns the account bound to (userID, phone), or
	// common.ErrorNotFound.
	GetByUserAndPhone(ctx context.Context, userID, phone string) (*models.LinkedAccount, error)

	// Update applies patch to the owner's account by id.
	Update(ctx context.Context, userID, id string, patch Patch) (*models.LinkedAccount, error)

	// Upsert applies patch to the (userID, phone) account, inserting a
	// pending record first when none exists. Used by the linking worker so a
	// handshake can start before the account row does.
	Upsert(ctx context.Context, userID, phone string, patch Patch) (*models.LinkedAccount, error)

	// Delete removes the owner's account by id, common.ErrorNotFound when
	// absent.
	Delete(ctx context.Context, userID, id string) error
}
