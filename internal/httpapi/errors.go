package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campusportal/internal/audit"
	"campusportal/internal/auth"
	"campusportal/internal/logger"
	"campusportal/internal/model"
	"campusportal/internal/portal"
)

// fail maps a domain error to a status. Unexpected errors are logged and
// reported as 500 without detail.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrInvalid), errors.Is(err, audit.ErrUnknownWindow):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, portal.ErrHasDependents), errors.Is(err, portal.ErrScheduleConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		logger.FromContext(c, s.log).Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}
