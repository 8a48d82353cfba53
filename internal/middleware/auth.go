package middleware

import (
	"context"
	"net/http"
	"strings"

	"geminichat-backend/internal/models"
	"geminichat-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

const (
	authorizationHeaderKey  = "Authorization"
	authorizationTypeBearer = "bearer"
	authorizationPayloadKey = "phone"
)

// AuthSource reports the persisted sign-in record.
type AuthSource interface {
	GetAuthData(ctx context.Context) (*models.AuthRecord, error)
}

// AuthMiddleware returns a Gin middleware that requires a valid bearer token
// whose phone matches the persisted, authenticated record.
func AuthMiddleware(source AuthSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(authorizationHeaderKey)

		if len(authHeader) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is not provided"})
			return
		}

		fields := strings.Fields(authHeader)
		if len(fields) < 2 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			return
		}

		authType := strings.ToLower(fields[0])
		if authType != authorizationTypeBearer {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unsupported authorization type, 'Bearer' required"})
			return
		}

		accessToken := fields[1]
		claims, err := utils.ValidateJWT(accessToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "details": err.Error()})
			return
		}

		if !SessionActive(c.Request.Context(), source, claims.Phone) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session has ended, please sign in again"})
			return
		}

		c.Set(authorizationPayloadKey, claims.Phone)

		c.Next()
	}
}

// SessionActive reports whether the persisted record is authenticated for
// phone. Logging out clears the record, which revokes every issued token.
func SessionActive(ctx context.Context, source AuthSource, phone string) bool {
	record, err := source.GetAuthData(ctx)
	if err != nil || record == nil {
		return false
	}
	return record.IsAuthenticated && record.Phone == phone
}
