package implementation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	auth_models "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models/auth"
	interfaces "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Repository/Interfaces"
)

const userColumns = `user_id, username, email, password, role, active, created_at, updated_at`

type SQLUserRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLUserRepository(db *sql.DB, dialect Dialect) *SQLUserRepository {
	return &SQLUserRepository{db: db, dialect: dialect}
}

// Create user
func (r *SQLUserRepository) Create(ctx context.Context, user *auth_models.User) (*auth_models.User, error) {
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt

	query := r.dialect.Rebind(`
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query, user.UserID, user.Username, user.Email,
		user.Password, user.Role, user.Active, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("username %q: %w", user.Username, interfaces.ErrConflict)
		}
		return nil, err
	}

	return user, nil
}

// Read users
func (r *SQLUserRepository) GetByID(ctx context.Context, userID string) (*auth_models.User, error) {
	query := r.dialect.Rebind(`SELECT ` + userColumns + ` FROM users WHERE user_id = ?`)
	return r.getOne(ctx, query, userID)
}

func (r *SQLUserRepository) GetByUsername(ctx context.Context, username string) (*auth_models.User, error) {
	query := r.dialect.Rebind(`SELECT ` + userColumns + ` FROM users WHERE username = ?`)
	return r.getOne(ctx, query, username)
}

func (r *SQLUserRepository) GetAll(ctx context.Context) ([]*auth_models.User, error) {
	return r.getMany(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
}

// GetByRole retrieves users by role
func (r *SQLUserRepository) GetByRole(ctx context.Context, role string) ([]*auth_models.User, error) {
	query := r.dialect.Rebind(`SELECT ` + userColumns + ` FROM users WHERE role = ? ORDER BY created_at DESC`)
	return r.getMany(ctx, query, role)
}

// Update user
func (r *SQLUserRepository) Update(ctx context.Context, user *auth_models.User) error {
	user.UpdatedAt = time.Now().UTC()

	query := r.dialect.Rebind(`
		UPDATE users
		SET username = ?, email = ?, password = ?, role = ?, active = ?, updated_at = ?
		WHERE user_id = ?
	`)

	result, err := r.db.ExecContext(ctx, query, user.Username, user.Email, user.Password,
		user.Role, user.Active, user.UpdatedAt, user.UserID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("username %q: %w", user.Username, interfaces.ErrConflict)
		}
		return err
	}

	return requireOneRow(result)
}

// Delete user
func (r *SQLUserRepository) Delete(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx, r.dialect.Rebind(`DELETE FROM users WHERE user_id = ?`), userID)
	if err != nil {
		return err
	}
	return requireOneRow(result)
}

func (r *SQLUserRepository) getOne(ctx context.Context, query string, arg string) (*auth_models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *SQLUserRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]*auth_models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*auth_models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func scanUser(row rowScanner) (*auth_models.User, error) {
	var user auth_models.User
	if err := row.Scan(&user.UserID, &user.Username, &user.Email, &user.Password,
		&user.Role, &user.Active, dbTime{&user.CreatedAt}, dbTime{&user.UpdatedAt}); err != nil {
		return nil, err
	}
	return &user, nil
}

func requireOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return interfaces.ErrNotFound
	}

	return nil
}
