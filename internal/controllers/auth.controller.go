package controllers

import (
	"net/http"

	"emperror.dev/errors"
	"github.com/gin-gonic/gin"

	"metricwatch/internal/middleware"
	"metricwatch/internal/services"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthController struct {
	auth   *services.AuthService
	secLog *middleware.SecurityLogger
}

func NewAuthController(auth *services.AuthService, secLog *middleware.SecurityLogger) *AuthController {
	return &AuthController{auth: auth, secLog: secLog}
}

// HandleLogin exchanges the configured credentials for a token.
func (ac *AuthController) HandleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}
	if !middleware.ValidUsername(req.Username) {
		ac.secLog.LogFailedAuth(c.ClientIP(), "invalid username format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid username format"})
		return
	}

	token, expiresAt, err := ac.auth.Login(req.Username, req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		ac.secLog.LogFailedAuth(c.ClientIP(), "invalid credentials")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	ac.secLog.LogTokenGenerated(c.ClientIP(), req.Username)
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt,
	})
}

// HandleTokenStatus checks the bearer token (or ?token=) without requiring it up front.
func (ac *AuthController) HandleTokenStatus(c *gin.Context) {
	token := middleware.BearerToken(c, true)
	if token == "" {
		ac.secLog.LogFailedAuth(c.ClientIP(), "missing token in header or query")
		c.JSON(http.StatusBadRequest, gin.H{"error": "token required in Authorization header or query parameter"})
		return
	}

	claims, err := ac.auth.ValidateToken(token)
	if err != nil {
		ac.secLog.LogFailedAuth(c.ClientIP(), "invalid token: "+err.Error())
		c.JSON(http.StatusUnauthorized, gin.H{"valid": false, "error": "invalid token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":      true,
		"username":   claims.Username,
		"expires_at": claims.ExpiresAt.Time,
		"issued_at":  claims.IssuedAt.Time,
	})
}
