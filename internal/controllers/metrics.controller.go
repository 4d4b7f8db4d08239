package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"metricwatch/internal/services"
)

type MetricsController struct {
	query *services.QueryService
}

func NewMetricsController(query *services.QueryService) *MetricsController {
	return &MetricsController{query: query}
}

// GetCurrent returns the latest sample, or null before the first one.
func (mc *MetricsController) GetCurrent(c *gin.Context) {
	sample, ok := mc.query.Current()
	if !ok {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, sample)
}

// GetSystem returns history for ?duration=, newest first.
func (mc *MetricsController) GetSystem(c *gin.Context) {
	r := mc.query.ResolveRange(c.Query("duration"))
	c.JSON(http.StatusOK, mc.query.History(r))
}

func (mc *MetricsController) GetStats(c *gin.Context) {
	r := mc.query.ResolveRange(c.Query("duration"))
	c.JSON(http.StatusOK, mc.query.Stats(r))
}

func (mc *MetricsController) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"samples": mc.query.Size(),
	})
}
