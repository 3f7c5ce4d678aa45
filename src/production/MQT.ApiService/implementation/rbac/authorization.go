package rbac

import (
	"errors"
)

var (
	ErrInsufficientRole = errors.New("unauthorized: insufficient role")
	ErrNotOwner         = errors.New("unauthorized: insufficient permissions")
)

// Authorizer decides on already-authenticated callers
type Authorizer struct {
	rbacService *Service
}

// NewAuthorizer creates a new authorizer
func NewAuthorizer(rbacService *Service) *Authorizer {
	return &Authorizer{rbacService: rbacService}
}

// RequireRole checks the caller's role
func (a *Authorizer) RequireRole(callerRole, requiredRole string) error {
	if !a.rbacService.IsValidRole(callerRole) || callerRole != requiredRole {
		return ErrInsufficientRole
	}
	return nil
}

// RequireAdmin checks if the caller is admin
func (a *Authorizer) RequireAdmin(callerRole string) error {
	if !a.rbacService.IsAdmin(callerRole) {
		return ErrInsufficientRole
	}
	return nil
}

// RequireOwnerOrAdmin lets admins through and everyone else only to their own resources
func (a *Authorizer) RequireOwnerOrAdmin(callerRole, callerID, resourceUserID string) error {
	if a.rbacService.IsAdmin(callerRole) {
		return nil
	}
	if callerID != "" && callerID == resourceUserID {
		return nil
	}
	return ErrNotOwner
}
