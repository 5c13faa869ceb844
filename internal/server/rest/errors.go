package rest

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/dmitrijs2005/gophaccounts/internal/server/services"
	"github.com/gin-gonic/gin"
)

func detail(msg string) gin.H {
	return gin.H{"detail": msg}
}

// writeError maps service errors onto API responses.
func (s *Server) writeError(c *gin.Context, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, ve.Fields)
	case errors.Is(err, common.ErrRegistrationClosed):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Registration is current closed. Please try again soon."})
	case errors.Is(err, common.ErrorNotFound):
		c.JSON(http.StatusNotFound, detail("Not found."))
	default:
		s.serverError(c, err)
	}
}

func (s *Server) serverError(c *gin.Context, err error) {
	s.logger.Error(c.Request.Context(), "request failed", "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, detail("A server error occurred."))
}
