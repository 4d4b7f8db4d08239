package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"metricwatch/internal/controllers"
	"metricwatch/internal/middleware"
	"metricwatch/internal/services"
)

// RouterConfig carries everything the HTTP surface needs.
type RouterConfig struct {
	Query     *services.QueryService
	Hub       *services.WebSocketHub
	Auth      *services.AuthService // nil disables authentication
	Telemetry *services.Telemetry
	Logger    zerolog.Logger

	AllowedOrigins []string
	AllowedIPs     []string
	RateLimit      float64
	RateBurst      int
}

// NewRouter builds the gin engine with middleware and every route mounted.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(cfg.Logger, cfg.Telemetry))
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.IPAllowListMiddleware(middleware.NewIPAllowList(cfg.AllowedIPs), cfg.Logger))
	if cfg.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
		r.Use(middleware.RateLimitMiddleware(limiter, cfg.Logger, cfg.Telemetry))
	}

	secLog := middleware.NewSecurityLogger(cfg.Logger)

	var metricsGuard, streamGuard gin.HandlerFunc
	if cfg.Auth != nil {
		metricsGuard = middleware.RequireAuth(cfg.Auth, secLog, false)
		streamGuard = middleware.RequireAuth(cfg.Auth, secLog, true)

		loginLimit := middleware.RateLimitMiddleware(middleware.NewLoginRateLimiter(), cfg.Logger, cfg.Telemetry)
		RegisterAuthRoutes(r, controllers.NewAuthController(cfg.Auth, secLog), loginLimit)
	}

	RegisterMonitorRoutes(r, controllers.NewMetricsController(cfg.Query), metricsGuard)
	RegisterStreamRoutes(r, controllers.NewWebSocketController(cfg.Hub, secLog, cfg.AllowedOrigins, cfg.Logger), streamGuard)

	if cfg.Telemetry != nil {
		r.GET("/prometheus", gin.WrapH(promhttp.HandlerFor(cfg.Telemetry.Registry, promhttp.HandlerOpts{})))
	}
	return r
}
