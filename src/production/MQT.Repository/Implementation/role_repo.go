package implementation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	auth_models "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models/auth"
	interfaces "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Repository/Interfaces"
)

const roleColumns = `role_id, name, description, created_at, updated_at`

type SQLRoleRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLRoleRepository(db *sql.DB, dialect Dialect) *SQLRoleRepository {
	return &SQLRoleRepository{db: db, dialect: dialect}
}

// Create adds a role, or refreshes the description of an existing one with
// the same name
func (r *SQLRoleRepository) Create(ctx context.Context, role *auth_models.Role) (*auth_models.Role, error) {
	if role.RoleID == "" {
		role.RoleID = uuid.New().String()
	}
	role.CreatedAt = time.Now().UTC()
	role.UpdatedAt = role.CreatedAt

	query := r.dialect.Rebind(`
		INSERT INTO roles (` + roleColumns + `)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name)
		DO UPDATE SET description = excluded.description, updated_at = excluded.updated_at
	`)

	_, err := r.db.ExecContext(ctx, query, role.RoleID, role.Name,
		role.Description, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return r.FindByName(ctx, role.Name)
}

// FindByName finds a role by name
func (r *SQLRoleRepository) FindByName(ctx context.Context, name string) (*auth_models.Role, error) {
	query := r.dialect.Rebind(`SELECT ` + roleColumns + ` FROM roles WHERE name = ?`)

	role, err := scanRole(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, err
	}

	return role, nil
}

// FindAll retrieves all roles
func (r *SQLRoleRepository) FindAll(ctx context.Context) ([]*auth_models.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]*auth_models.Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return roles, nil
}

func scanRole(row rowScanner) (*auth_models.Role, error) {
	var role auth_models.Role
	if err := row.Scan(&role.RoleID, &role.Name, &role.Description,
		dbTime{&role.CreatedAt}, dbTime{&role.UpdatedAt}); err != nil {
		return nil, err
	}
	return &role, nil
}
