package auth_models

import (
	"time"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Role represents a role in the system
type Role struct {
	RoleID      string    `json:"role_id" bson:"_id" db:"role_id"`
	Name        string    `json:"name" bson:"name" db:"name"`
	Description string    `json:"description" bson:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at" db:"updated_at"`
}

// NewRole creates a new Role instance
func NewRole(name, description string) *Role {
	now := time.Now()
	return &Role{
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
