package implementation

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateTables creates the required tables if they don't exist
func CreateTables(ctx context.Context, db *sql.DB, dialect Dialect) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	ts := "TIMESTAMPTZ"
	if dialect == DialectSQLite {
		ts = "TIMESTAMP"
	}

	createDeviceStatesTable := `
		CREATE TABLE IF NOT EXISTS device_states (
			device_id   TEXT PRIMARY KEY,
			bitmask     INTEGER NOT NULL DEFAULT 0 CHECK (bitmask >= 0 AND bitmask <= 65535),
			version     BIGINT NOT NULL DEFAULT 0,
			created_at  ` + ts + ` NOT NULL,
			updated_at  ` + ts + ` NOT NULL
		);
	`

	createSchedulesTable := `
		CREATE TABLE IF NOT EXISTS schedules (
			id          TEXT PRIMARY KEY,
			device_id   TEXT NOT NULL,
			pin_index   INTEGER NOT NULL,
			action      TEXT NOT NULL CHECK (action IN ('ON', 'OFF')),
			fire_time   TEXT NOT NULL,
			note        TEXT NOT NULL DEFAULT '',
			created_by  TEXT NOT NULL,
			created_at  ` + ts + ` NOT NULL
		);
	`

	createUsersTable := `
		CREATE TABLE IF NOT EXISTS users (
			user_id     TEXT PRIMARY KEY,
			username    TEXT NOT NULL UNIQUE,
			email       TEXT NOT NULL,
			password    TEXT NOT NULL,
			role        TEXT NOT NULL,
			active      BOOLEAN NOT NULL DEFAULT true,
			created_at  ` + ts + ` NOT NULL,
			updated_at  ` + ts + ` NOT NULL
		);
	`

	createRolesTable := `
		CREATE TABLE IF NOT EXISTS roles (
			role_id     TEXT PRIMARY KEY,
			name        TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			created_at  ` + ts + ` NOT NULL,
			updated_at  ` + ts + ` NOT NULL
		);
	`

	queries := []string{
		createDeviceStatesTable,
		createSchedulesTable,
		createUsersTable,
		createRolesTable,
		`CREATE INDEX IF NOT EXISTS idx_schedules_fire_time ON schedules (fire_time, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_device ON schedules (device_id)`,
		`CREATE INDEX IF NOT EXISTS idx_users_role ON users (role)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}
