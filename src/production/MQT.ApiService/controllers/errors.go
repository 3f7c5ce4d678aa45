package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	service "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/auth"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/devicestate"
	jwt "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/jwt"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/schedule"
	bitmask "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Bitmask"
	interfaces "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Repository/Interfaces"
)

// statusFor maps service and store errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, devicestate.ErrInvalidDeviceID),
		errors.Is(err, bitmask.ErrInvalidLength),
		errors.Is(err, schedule.ErrInvalidTime),
		errors.Is(err, schedule.ErrInvalidAction),
		errors.Is(err, schedule.ErrMissingPin),
		errors.Is(err, service.ErrMissingUsername),
		errors.Is(err, service.ErrPasswordTooShort),
		errors.Is(err, service.ErrInvalidRole):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, jwt.ErrInvalidToken),
		errors.Is(err, jwt.ErrUserInactive):
		return http.StatusUnauthorized
	case errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrConflict),
		errors.Is(err, service.ErrUsernameTaken):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes err as a JSON body. Internal errors are not echoed.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
