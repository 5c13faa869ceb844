package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/dmitrijs2005/gophaccounts/internal/dbx"
	"github.com/dmitrijs2005/gophaccounts/internal/server/identity"
	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
)

// DetailsInput carries the editable profile fields. Nil fields are left
// unchanged by a partial update.
type DetailsInput struct {
	UserName  *string
	Email     *string
	FirstName *string
	LastName  *string
}

// UpdateDetails edits the profile of user. With partial unset the request
// replaces the profile and username becomes mandatory. An email change is
// reconciled against the identity ledger and challenged after commit.
func (s *AccountService) UpdateDetails(ctx context.Context, user *models.User, in DetailsInput, partial bool) (*models.User, error) {
	errs := &FieldErrors{}
	users := s.repomanager.Users(s.db)

	updated := *user

	if in.UserName != nil || !partial {
		if requireValue(errs, "username", in.UserName) {
			name := strings.TrimSpace(*in.UserName)
			taken, err := users.UserNameExists(ctx, name, user.ID)
			if err != nil {
				return nil, fmt.Errorf("error checking username: %w", err)
			}
			if taken {
				errs.Add("username", MsgUserNameTaken)
			}
			updated.UserName = name
		}
	}

	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		switch {
		case email == "":
			if s.cfg.EmailRequired {
				errs.Add("email", MsgBlank)
			}
		case !validEmail(email):
			errs.Add("email", MsgInvalidEmail)
		case s.cfg.UniqueEmail:
			taken, err := users.EmailExists(ctx, email, user.ID)
			if err != nil {
				return nil, fmt.Errorf("error checking email: %w", err)
			}
			if taken {
				errs.Add("email", MsgEmailTaken)
			}
		}
		updated.Email = email
	}

	if in.FirstName != nil {
		updated.FirstName = *in.FirstName
	} else if !partial {
		updated.FirstName = ""
	}
	if in.LastName != nil {
		updated.LastName = *in.LastName
	} else if !partial {
		updated.LastName = ""
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}

	var address *models.EmailAddress
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).Update(ctx, &updated); err != nil {
			if errors.Is(err, common.ErrAlreadyExists) {
				return NewValidationError("username", MsgUserNameTaken)
			}
			return fmt.Errorf("error updating user: %w", err)
		}

		previous := user.Email
		var err error
		address, err = s.reconciler.Apply(ctx, s.repomanager.EmailAddresses(tx), identity.Change{
			UserID:        updated.ID,
			PreviousEmail: &previous,
			Email:         updated.Email,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.verificationEnabled() {
		if err := s.reconciler.Challenge(ctx, address); err != nil {
			return nil, err
		}
	}

	*user = updated
	return user, nil
}
