package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	service "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/auth"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/middleware"
)

const (
	accessTokenCookie  = "access_token"
	refreshTokenCookie = "refresh_token"
)

// AuthController handles authentication requests
type AuthController struct {
	authService  *service.AuthService
	secureCookie bool
}

// NewAuthController creates a new auth controller. secureCookie should be
// true whenever the API is served over HTTPS.
func NewAuthController(authService *service.AuthService, secureCookie bool) *AuthController {
	return &AuthController{
		authService:  authService,
		secureCookie: secureCookie,
	}
}

// Login handles user login
func (h *AuthController) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.setTokenCookies(c, response.AccessToken, response.ExpiresAt, response.RefreshToken, response.RefreshExpiresAt)
	c.JSON(http.StatusOK, response)
}

// RefreshTokens handles token refresh. The refresh token comes from the
// cookie or, for non-browser clients, the JSON body.
func (h *AuthController) RefreshTokens(c *gin.Context) {
	refreshToken, err := c.Cookie(refreshTokenCookie)
	if err != nil || refreshToken == "" {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if bindErr := c.ShouldBindJSON(&body); bindErr != nil || body.RefreshToken == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token not found"})
			return
		}
		refreshToken = body.RefreshToken
	}

	response, tokenPair, err := h.authService.RefreshTokens(c.Request.Context(), refreshToken)
	if err != nil {
		respondError(c, err)
		return
	}

	h.setTokenCookies(c, tokenPair.AccessToken, tokenPair.ExpiresAt, tokenPair.RefreshToken, tokenPair.RefreshExpiresAt)
	c.JSON(http.StatusOK, response)
}

// Logout clears the token cookies
func (h *AuthController) Logout(c *gin.Context) {
	c.SetCookie(accessTokenCookie, "", -1, "/", "", h.secureCookie, true)
	c.SetCookie(refreshTokenCookie, "", -1, "/", "", h.secureCookie, true)

	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// Profile retrieves the authenticated user's profile
func (h *AuthController) Profile(c *gin.Context) {
	userID, err := middleware.GetUserFromGinContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.authService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdateProfile handles updating the authenticated user's email or password
func (h *AuthController) UpdateProfile(c *gin.Context) {
	userID, err := middleware.GetUserFromGinContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req struct {
		Email    string `json:"email,omitempty"`
		Password string `json:"password,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updatedUser, err := h.authService.UpdateProfile(c.Request.Context(), userID, req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, updatedUser)
}

func (h *AuthController) setTokenCookies(c *gin.Context, access string, accessExp int64, refresh string, refreshExp int64) {
	c.SetCookie(accessTokenCookie, access, secondsUntil(accessExp), "/", "", h.secureCookie, true)
	c.SetCookie(refreshTokenCookie, refresh, secondsUntil(refreshExp), "/api/auth", "", h.secureCookie, true)
}

func secondsUntil(unix int64) int {
	return int(time.Until(time.Unix(unix, 0)).Seconds())
}

// RegisterRoutes registers the auth routes with Gin
func (h *AuthController) RegisterRoutes(router *gin.Engine, authMiddleware *middleware.AuthMiddleware) {
	// Public routes
	auth := router.Group("/api/auth")
	{
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.RefreshTokens)
		auth.POST("/logout", h.Logout)
	}

	// Protected routes
	protected := auth.Group("", authMiddleware.Authenticate())
	{
		protected.GET("/profile", h.Profile)
		protected.PATCH("/profile", h.UpdateProfile)
	}
}
