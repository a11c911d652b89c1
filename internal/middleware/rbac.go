package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/crams-api/internal/models"
	appErrors "github.com/noah-isme/crams-api/pkg/errors"
	"github.com/noah-isme/crams-api/pkg/response"
)

// RequireCapability rejects callers whose role does not grant the capability.
func RequireCapability(capability models.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		if !claims.Can(capability) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("role %s lacks %s", claims.Role, capability)))
			return
		}
		c.Next()
	}
}
