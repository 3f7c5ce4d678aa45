package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/controllers"
	container "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Container"
)

// newRouter builds the gin engine with every controller registered
func newRouter(ctr *container.ApiContainer) (*gin.Engine, error) {
	config := ctr.GetConfig()
	logger := ctr.GetLogger()

	authService, err := ctr.GetAuthService()
	if err != nil {
		return nil, err
	}
	userService, err := ctr.GetUserService()
	if err != nil {
		return nil, err
	}
	states, err := ctr.GetDeviceStateService()
	if err != nil {
		return nil, err
	}
	schedules, err := ctr.GetScheduleService()
	if err != nil {
		return nil, err
	}
	checker, err := ctr.GetHealthChecker()
	if err != nil {
		return nil, err
	}
	authMiddleware := ctr.GetAuthMiddleware()

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Configure CORS from config; cors.New panics on an empty origin list
	if len(config.CORS.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     config.CORS.AllowedOrigins,
			AllowMethods:     config.CORS.AllowedMethods,
			AllowHeaders:     config.CORS.AllowedHeaders,
			ExposeHeaders:    config.CORS.ExposedHeaders,
			AllowCredentials: config.CORS.AllowCredentials,
			MaxAge:           time.Duration(config.CORS.MaxAge) * time.Second,
		}))
	} else {
		logger.Warn("CORS disabled: no allowed origins configured")
	}

	controllers.NewAuthController(authService, config.Auth.SecureCookies).RegisterRoutes(router, authMiddleware)
	controllers.NewUserController(authService, userService).RegisterRoutes(router, authMiddleware)
	controllers.NewDeviceStateController(states, ctr.GetHub(), logger, authMiddleware).RegisterRoutes(router)
	controllers.NewScheduleController(schedules, authMiddleware).RegisterRoutes(router)
	controllers.NewHealthController(checker, ctr.GetMetrics().Handler()).RegisterRoutes(router)

	return router, nil
}
