package interfaces

import (
	"context"

	auth_models "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models/auth"
)

type UserRepository interface {
	// Create inserts a user; ErrConflict when the username is taken
	Create(ctx context.Context, user *auth_models.User) (*auth_models.User, error)

	// Lookups return ErrNotFound for unknown users
	GetByID(ctx context.Context, userID string) (*auth_models.User, error)
	GetByUsername(ctx context.Context, username string) (*auth_models.User, error)
	GetAll(ctx context.Context) ([]*auth_models.User, error)
	GetByRole(ctx context.Context, role string) ([]*auth_models.User, error)

	Update(ctx context.Context, user *auth_models.User) error
	Delete(ctx context.Context, userID string) error
}
