package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/dmitrijs2005/gophaccounts/internal/cryptox"
	"github.com/dmitrijs2005/gophaccounts/internal/server/config"
	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
)

type LoginInput struct {
	UserName *string
	Email    *string
	Password *string
}

// Login checks credentials according to the configured authentication
// method and returns the account's API key.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (*models.AuthToken, error) {
	errs := &FieldErrors{}
	if !requireValue(errs, "password", in.Password) {
		return nil, errs.Err()
	}

	user, err := s.lookupLogin(ctx, in)
	if err != nil {
		return nil, err
	}

	if user == nil || !cryptox.CheckPassword(*in.Password, user.PasswordHash) {
		s.logger.Info(ctx, "login failed")
		return nil, NewValidationError(NonFieldErrors, MsgInvalidCredentials)
	}
	if !user.IsActive {
		return nil, NewValidationError(NonFieldErrors, MsgAccountDisabled)
	}

	if s.verificationMandatory() {
		verified, err := s.emailVerified(ctx, user)
		if err != nil {
			return nil, err
		}
		if !verified {
			return nil, NewValidationError(NonFieldErrors, MsgEmailNotVerified)
		}
	}

	if err := s.repomanager.Users(s.db).SetLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("error updating last login: %w", err)
	}

	token, err := s.tokenFor(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	return token, nil
}

// lookupLogin resolves the login identifier. A nil user with a nil error
// means no account matched.
func (s *AccountService) lookupLogin(ctx context.Context, in LoginInput) (*models.User, error) {
	email := strings.TrimSpace(value(in.Email))
	userName := strings.TrimSpace(value(in.UserName))
	users := s.repomanager.Users(s.db)

	var (
		user *models.User
		err  error
	)
	switch s.cfg.AuthenticationMethod {
	case config.AuthMethodEmail:
		if email == "" {
			return nil, NewValidationError(NonFieldErrors, `Must include "email" and "password".`)
		}
		user, err = users.GetByEmail(ctx, email)
	case config.AuthMethodUsername:
		if userName == "" {
			return nil, NewValidationError(NonFieldErrors, `Must include "username" and "password".`)
		}
		user, err = users.GetByUserName(ctx, userName)
	default:
		switch {
		case email != "":
			user, err = users.GetByEmail(ctx, email)
		case userName != "":
			user, err = users.GetByUserName(ctx, userName)
		default:
			return nil, NewValidationError(NonFieldErrors, `Must include either "username" or "email" and "password".`)
		}
	}

	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error searching user: %w", err)
	}
	return user, nil
}

// emailVerified reports whether the identity matching the account email is
// verified. An account without such an identity counts as unverified.
func (s *AccountService) emailVerified(ctx context.Context, user *models.User) (bool, error) {
	if user.Email == "" {
		return false, nil
	}
	address, err := s.repomanager.EmailAddresses(s.db).Find(ctx, user.ID, user.Email)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error searching email address: %w", err)
	}
	return address.Verified, nil
}
