package routes

import (
	"github.com/gin-gonic/gin"

	"metricwatch/internal/controllers"
)

// RegisterAuthRoutes mounts the login flow. loginLimit throttles /auth/login.
func RegisterAuthRoutes(r *gin.Engine, ac *controllers.AuthController, loginLimit gin.HandlerFunc) {
	auth := r.Group("/auth")
	{
		auth.POST("/login", loginLimit, ac.HandleLogin)
		auth.GET("/status", ac.HandleTokenStatus)
	}
}

// RegisterStreamRoutes mounts the live sample WebSocket.
func RegisterStreamRoutes(r *gin.Engine, wc *controllers.WebSocketController, guard gin.HandlerFunc) {
	handlers := []gin.HandlerFunc{wc.HandleWebSocket}
	if guard != nil {
		handlers = append([]gin.HandlerFunc{guard}, handlers...)
	}
	r.GET("/ws", handlers...)
}
