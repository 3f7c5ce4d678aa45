package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
	api_models "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models/api"
	interfaces "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Repository/Interfaces"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUserInactive = errors.New("user is inactive")
)

// Service provides JWT operations
type Service struct {
	config api_models.Config
	now    func() time.Time
}

// NewService creates a new JWT service
func NewService(config api_models.Config) *Service {
	return &Service{
		config: config,
		now:    time.Now,
	}
}

// GenerateTokens creates a new set of tokens: access and refresh
func (s *Service) GenerateTokens(userID, role string) (*api_models.TokenPair, error) {
	tokenID := uuid.New().String()
	now := s.now()
	expiresAt := now.Add(s.config.AccessTokenDuration)
	refreshExpiresAt := now.Add(s.config.RefreshTokenDuration)

	accessClaims := api_models.AccessClaims{
		RegisteredClaims: s.registered(userID, now, expiresAt),
		UserID:           userID,
		Role:             role,
		TokenID:          tokenID,
		Type:             api_models.TokenTypeAccess,
	}

	refreshClaims := api_models.RefreshClaims{
		RegisteredClaims: s.registered(userID, now, refreshExpiresAt),
		UserID:           userID,
		TokenID:          tokenID,
		Type:             api_models.TokenTypeRefresh,
	}

	accessTokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString([]byte(s.config.SecretKey))
	if err != nil {
		return nil, err
	}

	refreshTokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString([]byte(s.config.SecretKey))
	if err != nil {
		return nil, err
	}

	return &api_models.TokenPair{
		AccessToken:      accessTokenString,
		RefreshToken:     refreshTokenString,
		TokenID:          tokenID,
		ExpiresAt:        expiresAt.Unix(),
		RefreshExpiresAt: refreshExpiresAt.Unix(),
	}, nil
}

// ValidateAccessToken validates an access token and returns the claims
func (s *Service) ValidateAccessToken(tokenString string) (*api_models.AccessClaims, error) {
	claims := &api_models.AccessClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Type != api_models.TokenTypeAccess || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateRefreshToken validates a refresh token and returns the claims
func (s *Service) ValidateRefreshToken(tokenString string) (*api_models.RefreshClaims, error) {
	claims := &api_models.RefreshClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Type != api_models.TokenTypeRefresh || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RefreshTokens issues a new pair for the refresh token's user, picking up
// any role change since the last login
func (s *Service) RefreshTokens(ctx context.Context, refreshTokenString string, userRepo interfaces.UserRepository) (*api_models.TokenPair, error) {
	refreshClaims, err := s.ValidateRefreshToken(refreshTokenString)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := userRepo.GetByID(ctx, refreshClaims.UserID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.Active {
		return nil, ErrUserInactive
	}

	newTokens, err := s.GenerateTokens(user.UserID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate new tokens: %w", err)
	}

	return newTokens, nil
}

func (s *Service) registered(subject string, now, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    s.config.Issuer,
	}
}

func (s *Service) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.config.SecretKey), nil
	},
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
