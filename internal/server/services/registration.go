package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/dmitrijs2005/gophaccounts/internal/cryptox"
	"github.com/dmitrijs2005/gophaccounts/internal/dbx"
	"github.com/dmitrijs2005/gophaccounts/internal/server/auth"
	"github.com/dmitrijs2005/gophaccounts/internal/server/identity"
	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
	"github.com/dmitrijs2005/gophaccounts/internal/server/notify"
)

// RegisterInput is a signup request. Nil fields were absent from the request.
type RegisterInput struct {
	UserName  *string
	Email     *string
	Password1 *string
	Password2 *string
}

type RegisterResult struct {
	User *models.User
	Key  string

	// VerificationSent is true when the key is withheld until the email
	// address is confirmed.
	VerificationSent bool
}

// Register creates an account together with its primary email identity and
// API key, then mails the verification challenge.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	if !s.cfg.RegistrationOpen {
		return nil, common.ErrRegistrationClosed
	}

	userName, email, err := s.validateSignup(ctx, in)
	if err != nil {
		return nil, err
	}

	if userName == "" {
		userName, err = s.generateUserName(ctx, email)
		if err != nil {
			return nil, err
		}
	}

	hash, err := cryptox.HashPassword(*in.Password1)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	var (
		user    *models.User
		token   *models.AuthToken
		address *models.EmailAddress
	)
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		user, err = s.repomanager.Users(tx).Create(ctx, &models.User{
			UserName:     userName,
			Email:        email,
			PasswordHash: hash,
			IsActive:     true,
		})
		if err != nil {
			if errors.Is(err, common.ErrAlreadyExists) {
				return NewValidationError("username", MsgUserNameTaken)
			}
			return fmt.Errorf("error creating user: %w", err)
		}

		address, err = s.reconciler.Apply(ctx, s.repomanager.EmailAddresses(tx), identity.Change{
			UserID:  user.ID,
			Email:   user.Email,
			Created: true,
		})
		if err != nil {
			return err
		}

		token, err = s.issueToken(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID, "verification", s.cfg.EmailVerification)

	if s.verificationEnabled() {
		if err := s.reconciler.Challenge(ctx, address); err != nil {
			return nil, err
		}
	}

	return &RegisterResult{
		User:             user,
		Key:              token.Key,
		VerificationSent: s.verificationMandatory(),
	}, nil
}

func (s *AccountService) validateSignup(ctx context.Context, in RegisterInput) (string, string, error) {
	errs := &FieldErrors{}
	users := s.repomanager.Users(s.db)

	userName := strings.TrimSpace(value(in.UserName))
	if s.cfg.UsernameRequired {
		requireValue(errs, "username", in.UserName)
	}
	if userName != "" {
		taken, err := users.UserNameExists(ctx, userName, "")
		if err != nil {
			return "", "", fmt.Errorf("error checking username: %w", err)
		}
		if taken {
			errs.Add("username", MsgUserNameTaken)
		}
	}

	email := strings.TrimSpace(value(in.Email))
	if s.cfg.EmailRequired {
		requireValue(errs, "email", in.Email)
	}
	if email != "" {
		if !validEmail(email) {
			errs.Add("email", MsgInvalidEmail)
		} else if s.cfg.UniqueEmail {
			taken, err := users.EmailExists(ctx, email, "")
			if err != nil {
				return "", "", fmt.Errorf("error checking email: %w", err)
			}
			if taken {
				errs.Add("email", MsgEmailTaken)
			}
		}
	}

	checkPasswordPair(errs, in.Password1, in.Password2)

	if err := errs.Err(); err != nil {
		return "", "", err
	}
	return userName, email, nil
}

const maxUserNameAttempts = 100

// generateUserName derives a free username from the local part of email.
func (s *AccountService) generateUserName(ctx context.Context, email string) (string, error) {
	base := sanitizeUserName(email)
	users := s.repomanager.Users(s.db)

	candidate := base
	for i := 2; i < maxUserNameAttempts; i++ {
		taken, err := users.UserNameExists(ctx, candidate, "")
		if err != nil {
			return "", fmt.Errorf("error checking username: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(i)
	}

	suffix, err := common.MakeRandHexString(4)
	if err != nil {
		return "", err
	}
	return base + suffix, nil
}

func sanitizeUserName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-', r == '+':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}

// VerifyEmail confirms the identity a confirmation key was issued for. Any
// invalid, expired or stale key yields common.ErrorNotFound.
func (s *AccountService) VerifyEmail(ctx context.Context, key string) error {
	claims, err := auth.ParseKey(key, auth.PurposeEmailConfirmation, s.secret)
	if err != nil {
		return common.ErrorNotFound
	}

	address, err := s.repomanager.EmailAddresses(s.db).GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("error loading email address: %w", err)
	}
	if !claims.Matches(notify.ConfirmationState(address), s.secret) {
		return common.ErrorNotFound
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ledger := s.repomanager.EmailAddresses(tx)
		if err := ledger.MarkVerified(ctx, address.ID); err != nil {
			return fmt.Errorf("error marking email verified: %w", err)
		}

		user, err := s.repomanager.Users(tx).GetByID(ctx, address.UserID)
		if err != nil {
			return fmt.Errorf("error loading user: %w", err)
		}
		current := strings.EqualFold(user.Email, address.Email)

		// a verified primary only yields to the address the account uses now
		primary, err := ledger.GetPrimary(ctx, address.UserID)
		switch {
		case err == nil && (primary.ID == address.ID || (primary.Verified && !current)):
			return nil
		case err != nil && !errors.Is(err, common.ErrorNotFound):
			return fmt.Errorf("error loading primary email: %w", err)
		}

		if err := ledger.SetPrimary(ctx, address.UserID, address.ID); err != nil {
			return fmt.Errorf("error setting primary email: %w", err)
		}
		return s.syncUserEmail(ctx, tx, address)
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "email confirmed", "user_id", address.UserID, "identity_id", address.ID)
	return nil
}

// syncUserEmail makes the account email follow a newly primary identity.
func (s *AccountService) syncUserEmail(ctx context.Context, tx dbx.DBTX, address *models.EmailAddress) error {
	users := s.repomanager.Users(tx)
	user, err := users.GetByID(ctx, address.UserID)
	if err != nil {
		return fmt.Errorf("error loading user: %w", err)
	}
	if strings.EqualFold(user.Email, address.Email) {
		return nil
	}

	previous := user.Email
	user.Email = address.Email
	if err := users.Update(ctx, user); err != nil {
		return fmt.Errorf("error updating user: %w", err)
	}

	_, err = s.reconciler.Apply(ctx, s.repomanager.EmailAddresses(tx), identity.Change{
		UserID:        user.ID,
		PreviousEmail: &previous,
		Email:         user.Email,
	})
	return err
}

type SuperuserInput struct {
	UserName string
	Email    string
	Password string
	// NoPassword creates the account with an unusable password when
	// Password is empty.
	NoPassword bool
}

// CreateSuperuser is the privileged entry path. It writes its own verified
// primary identity and sends no mail.
func (s *AccountService) CreateSuperuser(ctx context.Context, in SuperuserInput) (*models.User, error) {
	errs := &FieldErrors{}
	in.UserName = strings.TrimSpace(in.UserName)
	in.Email = strings.TrimSpace(in.Email)

	if in.UserName == "" {
		errs.Add("username", MsgBlank)
	} else {
		taken, err := s.repomanager.Users(s.db).UserNameExists(ctx, in.UserName, "")
		if err != nil {
			return nil, fmt.Errorf("error checking username: %w", err)
		}
		if taken {
			errs.Add("username", MsgUserNameTaken)
		}
	}
	if in.Email != "" && !validEmail(in.Email) {
		errs.Add("email", MsgInvalidEmail)
	}
	if in.Password == "" && !in.NoPassword {
		errs.Add("password", MsgBlank)
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	hash := cryptox.UnusablePassword
	if in.Password != "" {
		var err error
		if hash, err = cryptox.HashPassword(in.Password); err != nil {
			return nil, fmt.Errorf("error hashing password: %w", err)
		}
	}

	var user *models.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		user, err = s.repomanager.Users(tx).Create(ctx, &models.User{
			UserName:     in.UserName,
			Email:        in.Email,
			PasswordHash: hash,
			IsActive:     true,
			IsStaff:      true,
			IsSuperuser:  true,
		})
		if err != nil {
			if errors.Is(err, common.ErrAlreadyExists) {
				return NewValidationError("username", MsgUserNameTaken)
			}
			return fmt.Errorf("error creating user: %w", err)
		}

		ledger := s.repomanager.EmailAddresses(tx)
		if user.Email != "" {
			if _, err := ledger.Create(ctx, user.ID, user.Email, true, true); err != nil {
				return fmt.Errorf("error creating email address: %w", err)
			}
		}

		if _, err := s.reconciler.Apply(ctx, ledger, identity.Change{
			UserID:  user.ID,
			Email:   user.Email,
			Created: true,
			Origin:  identity.OriginBypass,
		}); err != nil {
			return err
		}

		_, err = s.issueToken(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "superuser created", "user_id", user.ID)
	return user, nil
}
