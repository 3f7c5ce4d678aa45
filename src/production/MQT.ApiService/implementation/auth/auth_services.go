package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	jwt "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/jwt"
	rbac "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/rbac"
	api_models "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models/api"
	auth_models "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models/auth"
	interfaces "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Repository/Interfaces"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidRole        = errors.New("invalid role")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrMissingUsername    = errors.New("username is required")
)

// AuthService aggregates auth operations
type AuthService struct {
	userRepo          interfaces.UserRepository
	jwtService        *jwt.Service
	rbacService       *rbac.Service
	passwordMinLength int
}

// CreateUserRequest is accepted from admins only
type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenID          string `json:"token_id"`
	ExpiresAt        int64  `json:"expires_at"`
	RefreshExpiresAt int64  `json:"refresh_expires_at"`
	UserID           string `json:"user_id"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	Role             string `json:"role"`
}

type RefreshTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenID      string `json:"token_id"`
	ExpiresAt    int64  `json:"expires_at"`
}

// NewAuthService creates a new auth service
func NewAuthService(
	userRepo interfaces.UserRepository,
	jwtService *jwt.Service,
	rbacService *rbac.Service,
	passwordMinLength int,
) *AuthService {
	return &AuthService{
		userRepo:          userRepo,
		jwtService:        jwtService,
		rbacService:       rbacService,
		passwordMinLength: passwordMinLength,
	}
}

// CreateUser creates a user on behalf of an admin. Role defaults to user.
func (s *AuthService) CreateUser(ctx context.Context, req CreateUserRequest) (*auth_models.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		return nil, ErrMissingUsername
	}
	if len(req.Password) < s.passwordMinLength {
		return nil, fmt.Errorf("%w: minimum %d characters", ErrPasswordTooShort, s.passwordMinLength)
	}
	if req.Role == "" {
		req.Role = auth_models.RoleUser
	}
	if !s.rbacService.IsValidRole(req.Role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, req.Role)
	}

	hashedPassword, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.Create(ctx, auth_models.NewUser(req.Username, req.Email, hashedPassword, req.Role))
	if errors.Is(err, interfaces.ErrConflict) {
		return nil, ErrUsernameTaken
	}
	return user, err
}

// Login authenticates a user and returns tokens. Unknown users, wrong
// passwords and inactive accounts are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		return nil, ErrInvalidCredentials
	}

	tokenPair, err := s.jwtService.GenerateTokens(user.UserID, user.Role)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		AccessToken:      tokenPair.AccessToken,
		RefreshToken:     tokenPair.RefreshToken,
		TokenID:          tokenPair.TokenID,
		ExpiresAt:        tokenPair.ExpiresAt,
		RefreshExpiresAt: tokenPair.RefreshExpiresAt,
		UserID:           user.UserID,
		Username:         user.Username,
		Email:            user.Email,
		Role:             user.Role,
	}, nil
}

// RefreshTokens uses a refresh token to generate a new token pair
func (s *AuthService) RefreshTokens(ctx context.Context, refreshToken string) (*RefreshTokenResponse, *api_models.TokenPair, error) {
	tokenPair, err := s.jwtService.RefreshTokens(ctx, refreshToken, s.userRepo)
	if err != nil {
		return nil, nil, err
	}

	return &RefreshTokenResponse{
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		TokenID:      tokenPair.TokenID,
		ExpiresAt:    tokenPair.ExpiresAt,
	}, tokenPair, nil
}

// GetUserByID retrieves a user by ID
func (s *AuthService) GetUserByID(ctx context.Context, userID string) (*auth_models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// UpdateProfile changes the caller's email and, when given, password
func (s *AuthService) UpdateProfile(ctx context.Context, userID, email, password string) (*auth_models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if email != "" {
		user.Email = email
	}
	if password != "" {
		if len(password) < s.passwordMinLength {
			return nil, fmt.Errorf("%w: minimum %d characters", ErrPasswordTooShort, s.passwordMinLength)
		}
		hashed, err := HashPassword(password)
		if err != nil {
			return nil, err
		}
		user.Password = hashed
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedPassword), nil
}
