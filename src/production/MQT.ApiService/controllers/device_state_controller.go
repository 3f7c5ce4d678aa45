package controllers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/devicestate"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/middleware"
	bitmask "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Bitmask"
	logger "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models"
	notify "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Notify"
)

const octetStream = "application/octet-stream"

// DeviceStateController serves device masks as raw 2-byte big-endian bodies
type DeviceStateController struct {
	states         *devicestate.Service
	hub            *notify.Hub
	logger         *logger.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewDeviceStateController creates a new device state controller. hub may be
// nil, in which case the stream route is not registered.
func NewDeviceStateController(states *devicestate.Service, hub *notify.Hub, logger *logger.Logger, authMiddleware *middleware.AuthMiddleware) *DeviceStateController {
	return &DeviceStateController{
		states:         states,
		hub:            hub,
		logger:         logger.WithComponent("device-state-api"),
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers the device state routes with Gin
func (c *DeviceStateController) RegisterRoutes(router *gin.Engine) {
	devices := router.Group("/api/devices", c.authMiddleware.Authenticate())
	{
		devices.GET("", c.ListStates)
		devices.GET("/:device_id/state", c.GetState)
		devices.PUT("/:device_id/state", c.SetState)
		devices.POST("/:device_id/state", c.SetState)
		devices.POST("/:device_id/pins/:pin", c.ApplyPin)
		if c.hub != nil {
			devices.GET("/:device_id/stream", c.Stream)
		}
	}
}

func (c *DeviceStateController) GetState(ctx *gin.Context) {
	state, err := c.states.GetState(ctx.Request.Context(), ctx.Param("device_id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Data(http.StatusOK, octetStream, bitmask.Encode(state.Bitmask))
}

// SetState replaces the mask with the request body, which must be exactly two bytes
func (c *DeviceStateController) SetState(ctx *gin.Context) {
	deviceID := ctx.Param("device_id")
	if err := devicestate.ValidateDeviceID(deviceID); err != nil {
		respondError(ctx, err)
		return
	}

	// One byte past the wire size is enough to detect an oversized body
	body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, bitmask.WireSize+1))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	mask, err := bitmask.Decode(body)
	if err != nil {
		respondError(ctx, err)
		return
	}

	state, err := c.states.SetState(ctx.Request.Context(), deviceID, mask, mqtmodels.SourceAPI)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Data(http.StatusOK, octetStream, bitmask.Encode(state.Bitmask))
}

type ApplyPinRequest struct {
	Action string `json:"action" binding:"required"`
}

// ApplyPin switches one pin through the same conditional update as the scheduler
func (c *DeviceStateController) ApplyPin(ctx *gin.Context) {
	pin, err := strconv.Atoi(ctx.Param("pin"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid pin"})
		return
	}

	var req ApplyPinRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	action, err := mqtmodels.ParseAction(req.Action)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := c.states.ApplyAction(ctx.Request.Context(), ctx.Param("device_id"), pin, action, mqtmodels.SourceAPI)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"device_id": result.State.DeviceID,
		"bitmask":   result.State.Bitmask,
		"changed":   result.Changed,
	})
}

func (c *DeviceStateController) ListStates(ctx *gin.Context) {
	states, err := c.states.ListStates(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"devices": states})
}

// Stream upgrades to a WebSocket that receives the mask on connect and after every change
func (c *DeviceStateController) Stream(ctx *gin.Context) {
	deviceID := ctx.Param("device_id")
	if err := devicestate.ValidateDeviceID(deviceID); err != nil {
		respondError(ctx, err)
		return
	}

	load := func(reqCtx context.Context) (*mqtmodels.DeviceState, error) {
		return c.states.GetState(reqCtx, deviceID)
	}
	// The upgrader writes its own error response
	if err := c.hub.ServeWS(ctx.Writer, ctx.Request, deviceID, load); err != nil {
		c.logger.Logger.Warn().Err(err).Str("device_id", deviceID).Msg("Stream failed")
	}
}
