package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/denisAlshanov/audioworker/internal/config"
	"github.com/denisAlshanov/audioworker/internal/services/auth"
	"github.com/denisAlshanov/audioworker/internal/utils"
)

// AuthMiddleware requires "Authorization: Bearer <token>" where the token
// is the configured API key or, when jwtService is enabled, a token it
// signed.
func AuthMiddleware(cfg *config.APIConfig, jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortWithError(c, utils.NewMissingAuthError())
			return
		}

		token := extractToken(header)
		if token != "" && utils.SecureCompare(token, cfg.APIKey) {
			c.Set("auth_method", "api_key")
			c.Next()
			return
		}

		if token != "" && jwtService.Enabled() {
			claims, err := jwtService.ValidateToken(token)
			if err == nil {
				c.Set("auth_method", "jwt")
				c.Set("client", claims.Client)
				c.Next()
				return
			}
			utils.LogDebug(c.Request.Context(), "Rejected bearer token", utils.Fields{"reason": err.Error()})
		}

		abortWithError(c, utils.NewUnauthorizedError())
	}
}

// extractToken strips the Bearer scheme. Any other scheme yields "".
func extractToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func abortWithError(c *gin.Context, appErr *utils.AppError) {
	c.AbortWithStatusJSON(appErr.StatusCode, appErr.Body(c.GetString("request_id")))
}
