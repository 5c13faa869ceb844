// Package emailaddresses is the identity ledger: the email identities owned by
// each account together with their verified and primary flags.
package emailaddresses

import (
	"context"

	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
)

// Repository stores email identities. Email matching is case-insensitive.
// Missing rows yield common.ErrorNotFound; a second identity for the same
// (user, email) yields common.ErrAlreadyExists.
type Repository interface {
	Find(ctx context.Context, userID, email string) (*models.EmailAddress, error)
	GetByID(ctx context.Context, id string) (*models.EmailAddress, error)
	GetPrimary(ctx context.Context, userID string) (*models.EmailAddress, error)
	ListByUser(ctx context.Context, userID string) ([]*models.EmailAddress, error)

	// Create stores a new identity. A primary request is downgraded when the
	// user already has a primary identity.
	Create(ctx context.Context, userID, email string, primary, verified bool) (*models.EmailAddress, error)

	// UpdateEmail repoints an identity to a new address, leaving its flags alone.
	UpdateEmail(ctx context.Context, id, email string) error

	MarkVerified(ctx context.Context, id string) error

	// SetPrimary makes id the only primary identity of userID.
	SetPrimary(ctx context.Context, userID, id string) error
}
