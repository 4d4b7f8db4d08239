package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"metricwatch/internal/services"
)

// ClaimsKey is the gin context key holding the validated *services.CustomClaims.
const ClaimsKey = "claims"

// BearerToken extracts the token from an "Authorization: Bearer" header.
// When allowQuery is set the ?token= parameter is accepted as a fallback,
// which browsers need for WebSocket upgrades.
func BearerToken(c *gin.Context, allowQuery bool) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if allowQuery {
		return c.Query("token")
	}
	return ""
}

// RequireAuth rejects requests without a valid token.
func RequireAuth(auth *services.AuthService, secLog *SecurityLogger, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c, allowQuery)
		if token == "" {
			secLog.LogFailedAuth(c.ClientIP(), "missing token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		if !ValidTokenFormat(token) {
			secLog.LogFailedAuth(c.ClientIP(), "malformed token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		claims, err := auth.ValidateToken(token)
		if err != nil {
			secLog.LogFailedAuth(c.ClientIP(), "invalid token: "+err.Error())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}
