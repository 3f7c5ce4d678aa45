package auth

import (
	"context"
	"fmt"

	rbac "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/rbac"
	auth_models "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models/auth"
	interfaces "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Repository/Interfaces"
)

// UserService provides user management operations for admins
type UserService struct {
	userRepo    interfaces.UserRepository
	rbacService *rbac.Service
}

// NewUserService creates a new user service
func NewUserService(userRepo interfaces.UserRepository, rbacService *rbac.Service) *UserService {
	return &UserService{
		userRepo:    userRepo,
		rbacService: rbacService,
	}
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, id string) (*auth_models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// GetAllUsers retrieves all users
func (s *UserService) GetAllUsers(ctx context.Context) ([]*auth_models.User, error) {
	return s.userRepo.GetAll(ctx)
}

// UpdateUserRole updates a user's role
func (s *UserService) UpdateUserRole(ctx context.Context, userID string, newRole string) (*auth_models.User, error) {
	if !s.rbacService.IsValidRole(newRole) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, newRole)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.Role = newRole
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetActive enables or disables a user. Disabled users cannot log in or refresh.
func (s *UserService) SetActive(ctx context.Context, userID string, active bool) (*auth_models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.Active = active
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes a user; ErrNotFound if it does not exist
func (s *UserService) DeleteUser(ctx context.Context, userID string) error {
	return s.userRepo.Delete(ctx, userID)
}
