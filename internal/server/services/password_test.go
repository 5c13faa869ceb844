package services

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/gophaccounts/internal/cryptox"
	"github.com/dmitrijs2005/gophaccounts/internal/server/auth"
	"github.com/dmitrijs2005/gophaccounts/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "admin", "admin@email.com", "password12")

	err := f.svc.ChangePassword(ctx, u, ChangePasswordInput{Password1: ptr("password_not_same"), Password2: ptr("password_same")})
	assert.Equal(t, []string{MsgPasswordMismatch}, fieldErrors(t, err).Get("password2"))

	require.NoError(t, f.svc.ChangePassword(ctx, u, ChangePasswordInput{Password1: ptr("password_same"), Password2: ptr("password_same")}))

	stored, err := f.svc.GetDetails(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, cryptox.CheckPassword("password_same", stored.PasswordHash))
	assert.False(t, cryptox.CheckPassword("password12", stored.PasswordHash))
}

func TestChangePassword_OldPasswordField(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.OldPasswordFieldEnabled = true })
	ctx := context.Background()
	u := f.createUser(t, "admin", "admin@email.com", "password12")

	err := f.svc.ChangePassword(ctx, u, ChangePasswordInput{Password1: ptr("x"), Password2: ptr("x")})
	assert.Equal(t, []string{MsgRequired}, fieldErrors(t, err).Get("old_password"))

	err = f.svc.ChangePassword(ctx, u, ChangePasswordInput{OldPassword: ptr("wrong"), Password1: ptr("x"), Password2: ptr("x")})
	assert.Equal(t, []string{MsgInvalidPassword}, fieldErrors(t, err).Get("old_password"))

	require.NoError(t, f.svc.ChangePassword(ctx, u, ChangePasswordInput{OldPassword: ptr("password12"), Password1: ptr("x"), Password2: ptr("x")}))
}

func TestChangePassword_Logout(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.LogoutOnPasswordChange = true })
	ctx := context.Background()
	u := f.createUser(t, "admin", "admin@email.com", "password12")
	_, err := f.svc.tokenFor(ctx, u.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.ChangePassword(ctx, u, ChangePasswordInput{Password1: ptr("x"), Password2: ptr("x")}))
	assert.Empty(t, f.repo.Token(u.ID))
}

func TestPasswordReset_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "admin", "admin@email.com", "password12")

	require.NoError(t, f.svc.RequestPasswordReset(ctx, ptr("ADMIN@email.com")))
	require.Equal(t, 1, f.mailbox.Len())
	uid := f.mailbox.LinkParam(t, "uid")
	token := f.mailbox.LinkParam(t, "token")
	assert.Equal(t, auth.EncodeUID(u.ID), uid)

	in := ResetConfirmInput{UID: ptr(uid), Token: ptr(token), Password1: ptr("new_password"), Password2: ptr("new_password")}
	require.NoError(t, f.svc.ConfirmPasswordReset(ctx, in))

	_, err := f.svc.Login(ctx, LoginInput{UserName: ptr("admin"), Password: ptr("new_password")})
	require.NoError(t, err)

	// the token is bound to the old password hash
	err = f.svc.ConfirmPasswordReset(ctx, in)
	assert.Equal(t, []string{MsgInvalidValue}, fieldErrors(t, err).Get("token"))
}

func TestRequestPasswordReset_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "admin", "admin@email.com", "password12")

	err := f.svc.RequestPasswordReset(ctx, nil)
	assert.Equal(t, []string{MsgRequired}, fieldErrors(t, err).Get("email"))

	err = f.svc.RequestPasswordReset(ctx, ptr(""))
	assert.Equal(t, []string{MsgBlank}, fieldErrors(t, err).Get("email"))

	err = f.svc.RequestPasswordReset(ctx, ptr("nope"))
	assert.Equal(t, []string{MsgInvalidEmail}, fieldErrors(t, err).Get("email"))

	err = f.svc.RequestPasswordReset(ctx, ptr("ghost@email.com"))
	assert.Equal(t, []string{MsgEmailNotAssigned}, fieldErrors(t, err).Get("email"))
	assert.Zero(t, f.mailbox.Len())

	boom := errors.New("mail down")
	f.mailbox.Err = boom
	assert.ErrorIs(t, f.svc.RequestPasswordReset(ctx, ptr("admin@email.com")), boom)
}

func TestConfirmPasswordReset_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "admin", "admin@email.com", "password12")
	require.NoError(t, f.svc.RequestPasswordReset(ctx, ptr("admin@email.com")))
	uid := f.mailbox.LinkParam(t, "uid")
	token := f.mailbox.LinkParam(t, "token")

	err := f.svc.ConfirmPasswordReset(ctx, ResetConfirmInput{})
	assert.Equal(t, []string{"password1", "password2", "uid", "token"}, fieldErrors(t, err).Fields())

	err = f.svc.ConfirmPasswordReset(ctx, ResetConfirmInput{UID: ptr("!!"), Token: ptr(token), Password1: ptr("a"), Password2: ptr("a")})
	assert.Equal(t, []string{MsgInvalidValue}, fieldErrors(t, err).Get("uid"))

	err = f.svc.ConfirmPasswordReset(ctx, ResetConfirmInput{UID: ptr(auth.EncodeUID("not-a-uuid")), Token: ptr(token), Password1: ptr("a"), Password2: ptr("a")})
	assert.Equal(t, []string{MsgInvalidValue}, fieldErrors(t, err).Get("uid"))

	err = f.svc.ConfirmPasswordReset(ctx, ResetConfirmInput{UID: ptr(uid), Token: ptr("bad"), Password1: ptr("a"), Password2: ptr("a")})
	assert.Equal(t, []string{MsgInvalidValue}, fieldErrors(t, err).Get("token"))

	err = f.svc.ConfirmPasswordReset(ctx, ResetConfirmInput{UID: ptr(uid), Token: ptr(token), Password1: ptr("a"), Password2: ptr("b")})
	assert.Equal(t, []string{MsgPasswordMismatch}, fieldErrors(t, err).Get("password2"))

	stored, err := f.svc.GetDetails(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, cryptox.CheckPassword("password12", stored.PasswordHash))
}

func TestResetState_ChangesOnLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "admin", "admin@email.com", "password12")
	before := resetState(u)

	_, err := f.svc.Login(ctx, LoginInput{UserName: ptr("admin"), Password: ptr("password12")})
	require.NoError(t, err)
	after, err := f.svc.GetDetails(ctx, u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, before, resetState(after))
}
