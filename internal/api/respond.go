package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"gigmarket/internal/lifecycle"
	"gigmarket/internal/service"
)

// respondError maps service errors onto HTTP statuses. Guard rejections are
// conflicts: the request was well-formed, the state machine refused it.
func respondError(c *gin.Context, err error) {
	var valErr *service.ValidationError
	var authErr *service.AuthorizationError

	switch {
	case errors.As(err, &valErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Msg})
	case errors.As(err, &authErr):
		c.JSON(http.StatusForbidden, gin.H{"error": authErr.Msg})
	case errors.Is(err, service.ErrNotFound), errors.Is(err, pgx.ErrNoRows):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
