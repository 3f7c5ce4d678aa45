package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	service "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/auth"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/middleware"
)

// UserController handles user management requests
type UserController struct {
	authService *service.AuthService
	userService *service.UserService
}

// NewUserController creates a new user controller
func NewUserController(authService *service.AuthService, userService *service.UserService) *UserController {
	return &UserController{
		authService: authService,
		userService: userService,
	}
}

// RegisterRoutes registers the user routes with Gin
func (h *UserController) RegisterRoutes(router *gin.Engine, authMiddleware *middleware.AuthMiddleware) {
	users := router.Group("/api/users", authMiddleware.Authenticate())
	{
		users.POST("", authMiddleware.RequireAdmin(), h.CreateUser)
		users.GET("", authMiddleware.RequireAdmin(), h.GetAllUsers)

		// Get user by ID - requires admin role or own user
		users.GET("/:id", authMiddleware.RequireOwnerOrAdmin("id"), h.GetUserByID)

		users.PUT("/:id/role", authMiddleware.RequireAdmin(), h.UpdateUserRole)
		users.PUT("/:id/active", authMiddleware.RequireAdmin(), h.SetActive)
		users.DELETE("/:id", authMiddleware.RequireAdmin(), h.DeleteUser)
	}
}

// CreateUser creates an operator or admin account
func (h *UserController) CreateUser(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.authService.CreateUser(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

// GetAllUsers retrieves all users
func (h *UserController) GetAllUsers(c *gin.Context) {
	users, err := h.userService.GetAllUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}

// GetUserByID retrieves a user by ID
func (h *UserController) GetUserByID(c *gin.Context) {
	user, err := h.userService.GetUserByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdateUserRole updates a user's role
func (h *UserController) UpdateUserRole(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.userService.UpdateUserRole(c.Request.Context(), c.Param("id"), req.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// SetActive enables or disables a user
func (h *UserController) SetActive(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.userService.SetActive(c.Request.Context(), c.Param("id"), *req.Active)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// DeleteUser deletes a user
func (h *UserController) DeleteUser(c *gin.Context) {
	if err := h.userService.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "user deleted successfully"})
}
