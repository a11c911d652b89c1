package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/crams-api/internal/middleware"
	"github.com/noah-isme/crams-api/internal/models"
	appErrors "github.com/noah-isme/crams-api/pkg/errors"
	"github.com/noah-isme/crams-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// actorFromContext turns the verified claims into the principal passed to services.
func actorFromContext(c *gin.Context) *models.Actor {
	return models.ActorFromClaims(claimsFromContext(c), c.ClientIP(), c.GetHeader("User-Agent"))
}

func bindJSON(c *gin.Context, dest interface{}, msg string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, msg))
		return false
	}
	return true
}

// bindOptionalJSON is bindJSON for endpoints whose body may be omitted.
func bindOptionalJSON(c *gin.Context, dest interface{}, msg string) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dest); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, msg))
		return false
	}
	return true
}
