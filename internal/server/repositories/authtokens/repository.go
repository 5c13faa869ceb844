// Package authtokens stores the opaque API keys handed out at signup and
// login. Each account holds at most one key.
package authtokens

import (
	"context"

	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
)

type Repository interface {
	// Create stores key for userID. A second key for the same user yields
	// common.ErrAlreadyExists.
	Create(ctx context.Context, userID string, key string) (*models.AuthToken, error)

	// Find returns the token with the given key or common.ErrorNotFound.
	Find(ctx context.Context, key string) (*models.AuthToken, error)

	// FindByUser returns the user's token or common.ErrorNotFound.
	FindByUser(ctx context.Context, userID string) (*models.AuthToken, error)

	// Delete removes a token by key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteByUser removes the user's token, if any.
	DeleteByUser(ctx context.Context, userID string) error
}
