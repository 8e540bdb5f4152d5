package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/teamflux/teamflux-api/internal/models"
	"github.com/teamflux/teamflux-api/internal/service"
)

const userIDKey = "userID"

// AuthMiddleware validates JWT tokens and sets user context
func AuthMiddleware(authService service.AuthService, log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "auth").Logger()

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Debug().Str("path", c.Request.URL.Path).Msg("missing authorization header")
			abortUnauthorized(c, "authorization header required")
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			log.Debug().Str("path", c.Request.URL.Path).Msg("invalid authorization header format")
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		token, err := authService.ValidateToken(parts[1])
		if err != nil || !token.Valid {
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("invalid token")
			abortUnauthorized(c, "invalid or expired token")
			return
		}

		userID, err := authService.GetUserIDFromToken(token)
		if err != nil {
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("token without subject")
			abortUnauthorized(c, "invalid token claims")
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   models.ErrorUnauthorized,
		Message: message,
	})
}

// GetUserID extracts user ID from gin context
func GetUserID(c *gin.Context) string {
	userID, ok := c.Get(userIDKey)
	if !ok {
		return ""
	}
	s, _ := userID.(string)
	return s
}

// RequireUserID writes a 401 and returns false when no user is in context.
func RequireUserID(c *gin.Context) (string, bool) {
	userID := GetUserID(c)
	if userID == "" {
		abortUnauthorized(c, "user not authenticated")
		return "", false
	}
	return userID, true
}
