// Package users declares the repository contract for local identities.
package users

import (
	"context"

	"github.com/dmitrijs2005/tglinker/internal/server/models"
)

// Repository defines persistence operations for local identities.
type Repository interface {
	// Create inserts a new unverified user. A duplicate normalized email
	// yields common.ErrorAlreadyExists; the uniqueness check is delegated to
	// the store's own constraint so concurrent signups cannot race past it.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByEmail looks up a user by normalized email.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetByID looks up a user by id.
	GetByID(ctx context.Context, id string) (*models.User, error)

	// GetByConfirmationToken looks up the user holding the given single-use
	// confirmation token.
	GetByConfirmationToken(ctx context.Context, token string) (*models.User, error)

	// MarkEmailVerified flips the verified flag and clears the confirmation
	// token in one statement.
	MarkEmailVerified(ctx context.Context, id string) error

	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, id string, hash string) error

	// Delete removes the user. Sessions and linked accounts cascade at the
	// storage level. Returns common.ErrorNotFound when no row was deleted.
	Delete(ctx context.Context, id string) error
}
