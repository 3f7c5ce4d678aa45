package implementation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	mqtmodels "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Repository/Interfaces"
)

const stateColumns = `device_id, bitmask, version, created_at, updated_at`

// SQLStateRepository stores device masks in the device_states table.
// Atomicity comes from single-statement upserts and version-guarded updates.
type SQLStateRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQLStateRepository(db *sql.DB, dialect Dialect) *SQLStateRepository {
	return &SQLStateRepository{db: db, dialect: dialect, now: time.Now}
}

func (r *SQLStateRepository) GetOrCreate(ctx context.Context, deviceID string) (*mqtmodels.DeviceState, error) {
	now := r.now().UTC()
	query := r.dialect.Rebind(`
		INSERT INTO device_states (device_id, bitmask, version, created_at, updated_at)
		VALUES (?, 0, 0, ?, ?)
		ON CONFLICT (device_id) DO NOTHING
	`)
	if _, err := r.db.ExecContext(ctx, query, deviceID, now, now); err != nil {
		return nil, fmt.Errorf("failed to create device state: %w", err)
	}
	return r.get(ctx, deviceID)
}

func (r *SQLStateRepository) Set(ctx context.Context, deviceID string, bitmask uint16) (*mqtmodels.DeviceState, error) {
	now := r.now().UTC()
	query := r.dialect.Rebind(`
		INSERT INTO device_states (device_id, bitmask, version, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (device_id)
		DO UPDATE SET bitmask = excluded.bitmask, version = device_states.version + 1,
		              updated_at = excluded.updated_at
		RETURNING ` + stateColumns)

	state, err := scanState(r.db.QueryRowContext(ctx, query, deviceID, int64(bitmask), now, now))
	if err != nil {
		return nil, fmt.Errorf("failed to write device state: %w", err)
	}
	return state, nil
}

func (r *SQLStateRepository) CompareAndSwap(ctx context.Context, deviceID string, expectedVersion int64, bitmask uint16) (*mqtmodels.DeviceState, error) {
	query := r.dialect.Rebind(`
		UPDATE device_states
		SET bitmask = ?, version = version + 1, updated_at = ?
		WHERE device_id = ? AND version = ?
		RETURNING ` + stateColumns)

	state, err := scanState(r.db.QueryRowContext(ctx, query, int64(bitmask), r.now().UTC(), deviceID, expectedVersion))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to swap device state: %w", err)
	}
	return state, nil
}

func (r *SQLStateRepository) List(ctx context.Context) ([]*mqtmodels.DeviceState, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+stateColumns+` FROM device_states ORDER BY device_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := make([]*mqtmodels.DeviceState, 0)
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return states, nil
}

func (r *SQLStateRepository) get(ctx context.Context, deviceID string) (*mqtmodels.DeviceState, error) {
	query := r.dialect.Rebind(`SELECT ` + stateColumns + ` FROM device_states WHERE device_id = ?`)

	state, err := scanState(r.db.QueryRowContext(ctx, query, deviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, err
	}
	return state, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanState(row rowScanner) (*mqtmodels.DeviceState, error) {
	var state mqtmodels.DeviceState
	var bitmask int64

	if err := row.Scan(&state.DeviceID, &bitmask, &state.Version,
		dbTime{&state.CreatedAt}, dbTime{&state.UpdatedAt}); err != nil {
		return nil, err
	}
	if bitmask < 0 || bitmask > 0xFFFF {
		return nil, fmt.Errorf("device %s: stored bitmask %d out of range", state.DeviceID, bitmask)
	}
	state.Bitmask = uint16(bitmask)
	return &state, nil
}
