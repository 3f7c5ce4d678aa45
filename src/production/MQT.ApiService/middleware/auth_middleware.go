package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	jwt "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/jwt"
	rbac "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/rbac"
	auth_models "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models/auth"
)

// Key types for request context
type contextKey string

const (
	// Context keys
	UserIDContextKey      contextKey = "user_id"
	UserRoleContextKey    contextKey = "user_role"
	TokenIDContextKey     contextKey = "token_id"
	AuthMethodContextKey  contextKey = "auth_method"
	AccessTokenContextKey contextKey = "access_token"
)

// Authentication methods recorded in the context
const (
	AuthMethodJWT       = "jwt"
	AuthMethodDeviceKey = "device_key"
)

// DevicePrincipal is the caller ID recorded for requests using the device key
const DevicePrincipal = "device"

// AuthMiddleware provides middleware functions for authentication and authorization
type AuthMiddleware struct {
	jwtService  *jwt.Service
	rbacService *rbac.Service
	authorizer  *rbac.Authorizer
	config      Config
}

// Config holds middleware configuration
type Config struct {
	// HTTP header names for tokens
	AccessTokenHeader string

	// Cookie names for tokens (optional alternative to headers)
	AccessTokenCookie string

	// DeviceAPIKey is a shared bearer key for devices; empty disables it
	DeviceAPIKey string
}

// DefaultConfig returns a default middleware configuration
func DefaultConfig() Config {
	return Config{
		AccessTokenHeader: "Authorization",
		AccessTokenCookie: "access_token",
	}
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtService *jwt.Service, rbacService *rbac.Service, config Config) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService:  jwtService,
		rbacService: rbacService,
		authorizer:  rbac.NewAuthorizer(rbacService),
		config:      config,
	}
}

// extractToken gets a token from either header or cookie
func extractToken(r *http.Request, headerName, cookieName string) string {
	token := r.Header.Get(headerName)
	if token != "" {
		// Handle Authorization: Bearer token format
		if strings.HasPrefix(token, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
		}
		return token
	}

	if cookieName != "" {
		cookie, err := r.Cookie(cookieName)
		if err == nil {
			return cookie.Value
		}
	}

	return ""
}

// Authenticate accepts a valid access token or, when configured, the device
// key. Anything else is rejected with 401.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		accessToken := extractToken(c.Request, m.config.AccessTokenHeader, m.config.AccessTokenCookie)
		if accessToken == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		if m.isDeviceKey(accessToken) {
			c.Set(string(UserIDContextKey), DevicePrincipal)
			c.Set(string(UserRoleContextKey), auth_models.RoleUser)
			c.Set(string(AuthMethodContextKey), AuthMethodDeviceKey)
			c.Next()
			return
		}

		accessClaims, err := m.jwtService.ValidateAccessToken(accessToken)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid access token"})
			c.Abort()
			return
		}

		c.Set(string(UserIDContextKey), accessClaims.UserID)
		c.Set(string(UserRoleContextKey), accessClaims.Role)
		c.Set(string(TokenIDContextKey), accessClaims.TokenID)
		c.Set(string(AuthMethodContextKey), AuthMethodJWT)
		c.Set(string(AccessTokenContextKey), accessToken)

		c.Next()
	}
}

func (m *AuthMiddleware) isDeviceKey(token string) bool {
	key := m.config.DeviceAPIKey
	return key != "" && subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1
}

// RequireAdmin ensures the user has admin role. It must run after Authenticate.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := GetRoleFromGinContext(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		if err := m.authorizer.RequireAdmin(role); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireOwnerOrAdmin ensures the caller is admin or the user named by the
// route parameter param
func (m *AuthMiddleware) RequireOwnerOrAdmin(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := GetRoleFromGinContext(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}
		userID, _ := GetUserFromGinContext(c)

		if err := m.authorizer.RequireOwnerOrAdmin(role, userID, c.Param(param)); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireRole ensures the user has a specific role
func (m *AuthMiddleware) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, err := GetRoleFromGinContext(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		if err := m.authorizer.RequireRole(userRole, role); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient role"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetUserFromGinContext retrieves user ID from Gin context
func GetUserFromGinContext(c *gin.Context) (string, error) {
	userIDVal, exists := c.Get(string(UserIDContextKey))
	if !exists {
		return "", errors.New("user not found in context")
	}

	userID, ok := userIDVal.(string)
	if !ok {
		return "", errors.New("invalid user ID format in context")
	}

	return userID, nil
}

// GetRoleFromGinContext retrieves user role from Gin context
func GetRoleFromGinContext(c *gin.Context) (string, error) {
	roleVal, exists := c.Get(string(UserRoleContextKey))
	if !exists {
		return "", errors.New("role not found in context")
	}

	role, ok := roleVal.(string)
	if !ok {
		return "", errors.New("invalid role format in context")
	}

	return role, nil
}

// IsDeviceRequest reports whether the caller used the device key
func IsDeviceRequest(c *gin.Context) bool {
	return c.GetString(string(AuthMethodContextKey)) == AuthMethodDeviceKey
}
