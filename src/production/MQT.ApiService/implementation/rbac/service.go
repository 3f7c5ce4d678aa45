package rbac

import (
	"sort"

	auth_models "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models/auth"
)

// Service provides RBAC operations
type Service struct {
	roles map[string]bool
}

// NewService creates a new RBAC service with predefined roles
func NewService() *Service {
	return &Service{
		roles: map[string]bool{
			auth_models.RoleAdmin: true,
			auth_models.RoleUser:  true,
		},
	}
}

// IsValidRole checks if a role is valid
func (s *Service) IsValidRole(roleName string) bool {
	return s.roles[roleName]
}

// IsAdmin checks if a role is admin
func (s *Service) IsAdmin(roleName string) bool {
	return roleName == auth_models.RoleAdmin
}

// GetValidRoles returns all valid roles, sorted
func (s *Service) GetValidRoles() []string {
	roles := make([]string, 0, len(s.roles))
	for role := range s.roles {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// AddRole registers a role loaded from storage
func (s *Service) AddRole(roleName string) {
	if roleName != "" {
		s.roles[roleName] = true
	}
}
