package auth_models

import (
	"time"
)

// User is an identity allowed to call the API. Devices that authenticate with
// the shared device key have no User record.
type User struct {
	UserID    string    `json:"user_id" bson:"_id" db:"user_id"`
	Username  string    `json:"username" bson:"username" db:"username"`
	Email     string    `json:"email" bson:"email" db:"email"`
	Password  string    `json:"-" bson:"password" db:"password"`
	Role      string    `json:"role" bson:"role" db:"role"`
	Active    bool      `json:"active" bson:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at" db:"updated_at"`
}

// NewUser creates an active user; password must already be hashed
func NewUser(username, email, passwordHash, role string) *User {
	now := time.Now()
	return &User{
		Username:  username,
		Email:     email,
		Password:  passwordHash,
		Role:      role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
