package rest

import (
	"errors"
	"io"
	"net/http"

	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
	"github.com/dmitrijs2005/gophaccounts/internal/server/services"
	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	UserName  *string `json:"username" form:"username"`
	Email     *string `json:"email" form:"email"`
	Password1 *string `json:"password1" form:"password1"`
	Password2 *string `json:"password2" form:"password2"`
}

type verifyEmailRequest struct {
	Key *string `json:"key" form:"key"`
}

type loginRequest struct {
	UserName *string `json:"username" form:"username"`
	Email    *string `json:"email" form:"email"`
	Password *string `json:"password" form:"password"`
}

type changePasswordRequest struct {
	OldPassword *string `json:"old_password" form:"old_password"`
	Password1   *string `json:"password1" form:"password1"`
	Password2   *string `json:"password2" form:"password2"`
}

type resetRequest struct {
	Email *string `json:"email" form:"email"`
}

type resetConfirmRequest struct {
	UID       *string `json:"uid" form:"uid"`
	Token     *string `json:"token" form:"token"`
	Password1 *string `json:"password1" form:"password1"`
	Password2 *string `json:"password2" form:"password2"`
}

type detailsRequest struct {
	UserName  *string `json:"username" form:"username"`
	Email     *string `json:"email" form:"email"`
	FirstName *string `json:"first_name" form:"first_name"`
	LastName  *string `json:"last_name" form:"last_name"`
}

type userResponse struct {
	UserName  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{UserName: u.UserName, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
}

type keyResponse struct {
	Key string `json:"key"`
}

// bind decodes a JSON or form body into dst. An empty body decodes to the
// zero value. It writes the 400 response itself and returns false on
// malformed input.
func bind(c *gin.Context, dst any) bool {
	err := c.ShouldBind(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	c.JSON(http.StatusBadRequest, detail("JSON parse error - "+err.Error()))
	return false
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}
	ctx, cancel := s.ctx(c)
	defer cancel()

	res, err := s.accounts.Register(ctx, services.RegisterInput{
		UserName:  req.UserName,
		Email:     req.Email,
		Password1: req.Password1,
		Password2: req.Password2,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	if res.VerificationSent {
		c.JSON(http.StatusCreated, detail("Verification e-mail sent."))
		return
	}
	c.JSON(http.StatusCreated, keyResponse{Key: res.Key})
}

func (s *Server) verifyEmail(c *gin.Context) {
	var key *string
	if c.Request.Method == http.MethodGet {
		if v, ok := c.GetQuery("key"); ok {
			key = &v
		}
		if key == nil || *key == "" {
			c.JSON(http.StatusNotFound, detail("Not found."))
			return
		}
	} else {
		var req verifyEmailRequest
		if !bind(c, &req) {
			return
		}
		key = req.Key
		fe := &services.FieldErrors{}
		if key == nil {
			fe.Add("key", services.MsgRequired)
		} else if *key == "" {
			fe.Add("key", services.MsgBlank)
		}
		if !fe.Empty() {
			c.JSON(http.StatusBadRequest, fe)
			return
		}
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	if err := s.accounts.VerifyEmail(ctx, *key); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	ctx, cancel := s.ctx(c)
	defer cancel()

	token, err := s.accounts.Login(ctx, services.LoginInput{UserName: req.UserName, Email: req.Email, Password: req.Password})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, keyResponse{Key: token.Key})
}

func (s *Server) logout(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	if err := s.accounts.Logout(ctx, currentToken(c)); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "Successfully logged out."})
}

func (s *Server) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bind(c, &req) {
		return
	}
	ctx, cancel := s.ctx(c)
	defer cancel()

	err := s.accounts.ChangePassword(ctx, currentUser(c), services.ChangePasswordInput{
		OldPassword: req.OldPassword,
		Password1:   req.Password1,
		Password2:   req.Password2,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "New password has been saved."})
}

func (s *Server) resetPassword(c *gin.Context) {
	var req resetRequest
	if !bind(c, &req) {
		return
	}
	ctx, cancel := s.ctx(c)
	defer cancel()

	if err := s.accounts.RequestPasswordReset(ctx, req.Email); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "Password reset e-mail has been sent."})
}

func (s *Server) confirmReset(c *gin.Context) {
	var req resetConfirmRequest
	if !bind(c, &req) {
		return
	}
	ctx, cancel := s.ctx(c)
	defer cancel()

	err := s.accounts.ConfirmPasswordReset(ctx, services.ResetConfirmInput{
		UID:       req.UID,
		Token:     req.Token,
		Password1: req.Password1,
		Password2: req.Password2,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "Password has been reset with the new password."})
}

func (s *Server) userDetails(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	user, err := s.accounts.GetDetails(ctx, currentUser(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (s *Server) replaceUserDetails(c *gin.Context) {
	s.updateUserDetails(c, false)
}

func (s *Server) patchUserDetails(c *gin.Context) {
	s.updateUserDetails(c, true)
}

func (s *Server) updateUserDetails(c *gin.Context, partial bool) {
	var req detailsRequest
	if !bind(c, &req) {
		return
	}
	ctx, cancel := s.ctx(c)
	defer cancel()

	user, err := s.accounts.UpdateDetails(ctx, currentUser(c), services.DetailsInput{
		UserName:  req.UserName,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}, partial)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}
