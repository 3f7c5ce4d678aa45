package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/health"
)

// HealthController handles liveness, readiness and metrics requests
type HealthController struct {
	checker *health.HealthChecker
	metrics http.Handler
}

// NewHealthController creates a new health controller. metrics may be nil.
func NewHealthController(checker *health.HealthChecker, metrics http.Handler) *HealthController {
	return &HealthController{
		checker: checker,
		metrics: metrics,
	}
}

// RegisterRoutes registers the health routes with Gin
func (c *HealthController) RegisterRoutes(router *gin.Engine) {
	router.GET("/health/live", c.HealthLive)
	router.GET("/health/ready", c.HealthReady)
	if c.metrics != nil {
		router.GET("/metrics", gin.WrapH(c.metrics))
	}
}

func (c *HealthController) HealthLive(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func (c *HealthController) HealthReady(ctx *gin.Context) {
	status, ready := c.checker.GetHealthStatus(ctx.Request.Context())
	if !ready {
		ctx.JSON(http.StatusServiceUnavailable, status)
		return
	}
	ctx.JSON(http.StatusOK, status)
}
