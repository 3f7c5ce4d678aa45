package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/schedule"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/middleware"
)

// ScheduleController handles schedule entry requests
type ScheduleController struct {
	schedules      *schedule.Service
	authMiddleware *middleware.AuthMiddleware
}

// NewScheduleController creates a new schedule controller
func NewScheduleController(schedules *schedule.Service, authMiddleware *middleware.AuthMiddleware) *ScheduleController {
	return &ScheduleController{
		schedules:      schedules,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers the schedule routes with Gin
func (c *ScheduleController) RegisterRoutes(router *gin.Engine) {
	schedules := router.Group("/api/schedules", c.authMiddleware.Authenticate())
	{
		schedules.GET("", c.ListSchedules)

		// Admin only - create/delete
		schedules.POST("", c.authMiddleware.RequireAdmin(), c.CreateSchedule)
		schedules.DELETE("/:id", c.authMiddleware.RequireAdmin(), c.DeleteSchedule)
	}
}

func (c *ScheduleController) ListSchedules(ctx *gin.Context) {
	entries, err := c.schedules.List(ctx.Request.Context(), ctx.Query("device_id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"schedules": entries})
}

func (c *ScheduleController) CreateSchedule(ctx *gin.Context) {
	var req schedule.CreateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	createdBy, _ := middleware.GetUserFromGinContext(ctx)
	entry, err := c.schedules.Create(ctx.Request.Context(), req, createdBy)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, entry)
}

func (c *ScheduleController) DeleteSchedule(ctx *gin.Context) {
	if err := c.schedules.Delete(ctx.Request.Context(), ctx.Param("id")); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"deleted": true})
}
