// Package users declares the account store contract and its PostgreSQL
// implementation.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
)

// Repository persists accounts. Lookups by username and email are
// case-insensitive and return common.ErrorNotFound when nothing matches.
type Repository interface {
	// Create inserts the account and fills in ID and DateJoined. A clashing
	// username yields common.ErrAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUserName(ctx context.Context, userName string) (*models.User, error)

	// GetByEmail returns the oldest active account whose email matches.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// UserNameExists reports whether another account (not excludeID) uses userName.
	UserNameExists(ctx context.Context, userName string, excludeID string) (bool, error)

	// EmailExists reports whether an account other than excludeID owns email,
	// either as its account email or as any of its email identities.
	EmailExists(ctx context.Context, email string, excludeID string) (bool, error)

	// Update writes the profile and status fields of the account.
	Update(ctx context.Context, user *models.User) error

	SetPassword(ctx context.Context, id string, passwordHash string) error
	SetLastLogin(ctx context.Context, id string, at time.Time) error
	List(ctx context.Context) ([]*models.User, error)
}
