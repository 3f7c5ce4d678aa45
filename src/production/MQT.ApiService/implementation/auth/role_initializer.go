package auth

import (
	"context"
	"fmt"

	rbac "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/rbac"
	logger "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Logger"
	api_models "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models/api"
	auth_models "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models/auth"
	interfaces "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Repository/Interfaces"
)

// RoleInitializerService seeds roles and the first admin
type RoleInitializerService struct {
	roleRepo    interfaces.RoleRepository
	userRepo    interfaces.UserRepository
	rbacService *rbac.Service
	logger      *logger.Logger
	adminConfig AdminConfig
}

// AdminConfig holds admin user configuration
type AdminConfig struct {
	Username string
	Email    string
	Password string
}

// NewRoleInitializerService creates a new role initializer service
func NewRoleInitializerService(
	roleRepo interfaces.RoleRepository,
	userRepo interfaces.UserRepository,
	rbacService *rbac.Service,
	logger *logger.Logger,
	adminConfig AdminConfig,
) *RoleInitializerService {
	return &RoleInitializerService{
		roleRepo:    roleRepo,
		userRepo:    userRepo,
		rbacService: rbacService,
		logger:      logger.WithComponent("role-initializer"),
		adminConfig: adminConfig,
	}
}

// InitializeRoles upserts the predefined roles and loads every stored role
// into the RBAC service. Safe to run on every start.
func (s *RoleInitializerService) InitializeRoles(ctx context.Context) error {
	for _, predefined := range api_models.GetPredefinedRoles() {
		if _, err := s.roleRepo.Create(ctx, auth_models.NewRole(predefined.Name, predefined.Description)); err != nil {
			return fmt.Errorf("failed to seed role %s: %w", predefined.Name, err)
		}
	}

	roles, err := s.roleRepo.FindAll(ctx)
	if err != nil {
		return err
	}
	for _, role := range roles {
		s.rbacService.AddRole(role.Name)
	}
	s.logger.Logger.Info().Int("count", len(roles)).Msg("Roles loaded")
	return nil
}

// InitializeAdminUser creates the first admin user if no admin users exist
func (s *RoleInitializerService) InitializeAdminUser(ctx context.Context) error {
	adminUsers, err := s.userRepo.GetByRole(ctx, auth_models.RoleAdmin)
	if err != nil {
		return err
	}

	if len(adminUsers) > 0 {
		s.logger.Logger.Info().Int("count", len(adminUsers)).Msg("Admin users already exist, skipping admin user creation")
		return nil
	}

	hashedPassword, err := HashPassword(s.adminConfig.Password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	adminUser := auth_models.NewUser(
		s.adminConfig.Username,
		s.adminConfig.Email,
		hashedPassword,
		auth_models.RoleAdmin,
	)
	if _, err := s.userRepo.Create(ctx, adminUser); err != nil {
		return err
	}

	s.logger.Logger.Info().Str("username", s.adminConfig.Username).Msg("First admin user created")
	s.logger.Logger.Warn().Msg("Change the admin password after first login")
	return nil
}
