package routes

import (
	"github.com/gin-gonic/gin"

	"metricwatch/internal/controllers"
)

// RegisterMonitorRoutes mounts the metrics endpoints. guard, when non-nil,
// runs before every handler in the group.
func RegisterMonitorRoutes(r *gin.Engine, mc *controllers.MetricsController, guard gin.HandlerFunc) {
	metrics := r.Group("/metrics")
	if guard != nil {
		metrics.Use(guard)
	}
	{
		metrics.GET("/current", mc.GetCurrent)
		metrics.GET("/system", mc.GetSystem)
		metrics.GET("/stats", mc.GetStats)
	}

	r.GET("/healthz", mc.GetHealth)
}
