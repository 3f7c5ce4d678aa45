package api_models

import auth_models "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models/auth"

// PredefinedRole represents a role seeded on first start
type PredefinedRole struct {
	Name        string
	Description string
}

// GetPredefinedRoles returns the roles the API knows how to authorize
func GetPredefinedRoles() []PredefinedRole {
	return []PredefinedRole{
		{
			Name:        auth_models.RoleAdmin,
			Description: "Administrator: manages schedules and users",
		},
		{
			Name:        auth_models.RoleUser,
			Description: "Operator or device: reads and writes device state, reads schedules",
		},
	}
}
