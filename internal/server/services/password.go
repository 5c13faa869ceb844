package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/dmitrijs2005/gophaccounts/internal/cryptox"
	"github.com/dmitrijs2005/gophaccounts/internal/server/auth"
	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
	"github.com/google/uuid"
)

type ChangePasswordInput struct {
	OldPassword *string
	Password1   *string
	Password2   *string
}

func (s *AccountService) ChangePassword(ctx context.Context, user *models.User, in ChangePasswordInput) error {
	errs := &FieldErrors{}
	if s.cfg.OldPasswordFieldEnabled {
		if requireValue(errs, "old_password", in.OldPassword) && !cryptox.CheckPassword(*in.OldPassword, user.PasswordHash) {
			errs.Add("old_password", MsgInvalidPassword)
		}
	}
	checkPasswordPair(errs, in.Password1, in.Password2)
	if err := errs.Err(); err != nil {
		return err
	}

	if err := s.setPassword(ctx, user, *in.Password1); err != nil {
		return err
	}

	if s.cfg.LogoutOnPasswordChange {
		if err := s.repomanager.AuthTokens(s.db).DeleteByUser(ctx, user.ID); err != nil {
			return fmt.Errorf("error deleting token: %w", err)
		}
	}

	s.logger.Info(ctx, "password changed", "user_id", user.ID)
	return nil
}

func (s *AccountService) setPassword(ctx context.Context, user *models.User, password string) error {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}
	if err := s.repomanager.Users(s.db).SetPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("error setting password: %w", err)
	}
	user.PasswordHash = hash
	return nil
}

// resetState binds reset tokens to the password hash and last login, so a
// token stops working once it has been used or the user has logged in.
func resetState(user *models.User) string {
	var lastLogin string
	if user.LastLogin != nil {
		lastLogin = strconv.FormatInt(user.LastLogin.Unix(), 10)
	}
	return user.PasswordHash + "|" + lastLogin
}

// RequestPasswordReset mails a reset link to the account owning email.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email *string) error {
	errs := &FieldErrors{}
	if !requireValue(errs, "email", email) {
		return errs.Err()
	}
	addr := strings.TrimSpace(*email)
	if !validEmail(addr) {
		return NewValidationError("email", MsgInvalidEmail)
	}

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return NewValidationError("email", MsgEmailNotAssigned)
		}
		return fmt.Errorf("error searching user: %w", err)
	}

	token, err := auth.GenerateKey(auth.PurposePasswordReset, user.ID, resetState(user), s.secret, s.cfg.PasswordResetTimeout)
	if err != nil {
		return fmt.Errorf("error generating reset token: %w", err)
	}

	if err := s.mail.SendPasswordReset(ctx, user, auth.EncodeUID(user.ID), token); err != nil {
		return err
	}
	return nil
}

type ResetConfirmInput struct {
	UID       *string
	Token     *string
	Password1 *string
	Password2 *string
}

// ConfirmPasswordReset sets a new password given a uid/token pair from a
// reset mail.
func (s *AccountService) ConfirmPasswordReset(ctx context.Context, in ResetConfirmInput) error {
	errs := &FieldErrors{}
	requireValue(errs, "password1", in.Password1)
	requireValue(errs, "password2", in.Password2)
	requireValue(errs, "uid", in.UID)
	requireValue(errs, "token", in.Token)
	if err := errs.Err(); err != nil {
		return err
	}

	user, err := s.resetUser(ctx, *in.UID)
	if err != nil {
		return err
	}

	claims, err := auth.ParseKey(*in.Token, auth.PurposePasswordReset, s.secret)
	if err != nil || claims.Subject != user.ID || !claims.Matches(resetState(user), s.secret) {
		return NewValidationError("token", MsgInvalidValue)
	}

	if *in.Password1 != *in.Password2 {
		return NewValidationError("password2", MsgPasswordMismatch)
	}

	if err := s.setPassword(ctx, user, *in.Password1); err != nil {
		return err
	}
	s.logger.Info(ctx, "password reset", "user_id", user.ID)
	return nil
}

func (s *AccountService) resetUser(ctx context.Context, uid string) (*models.User, error) {
	id, err := auth.DecodeUID(uid)
	if err == nil {
		_, err = uuid.Parse(id)
	}
	if err != nil {
		return nil, NewValidationError("uid", MsgInvalidValue)
	}
	user, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, NewValidationError("uid", MsgInvalidValue)
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	return user, nil
}
