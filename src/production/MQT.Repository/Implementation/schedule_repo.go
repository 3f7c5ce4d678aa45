package implementation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	mqtmodels "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Repository/Interfaces"
)

const scheduleColumns = `id, device_id, pin_index, action, fire_time, note, created_by, created_at`

type SQLScheduleRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLScheduleRepository(db *sql.DB, dialect Dialect) *SQLScheduleRepository {
	return &SQLScheduleRepository{db: db, dialect: dialect}
}

func (r *SQLScheduleRepository) Create(ctx context.Context, entry *mqtmodels.ScheduleEntry) error {
	query := r.dialect.Rebind(`
		INSERT INTO schedules (` + scheduleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query, entry.ID, entry.DeviceID, entry.PinIndex, string(entry.Action),
		entry.Time, entry.Note, entry.CreatedBy, entry.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("schedule %s: %w", entry.ID, interfaces.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *SQLScheduleRepository) FindByTime(ctx context.Context, hhmm string) ([]*mqtmodels.ScheduleEntry, error) {
	query := r.dialect.Rebind(`SELECT ` + scheduleColumns + ` FROM schedules WHERE fire_time = ? ORDER BY created_at, id`)
	return r.query(ctx, query, hhmm)
}

func (r *SQLScheduleRepository) List(ctx context.Context, deviceID string) ([]*mqtmodels.ScheduleEntry, error) {
	if deviceID != "" {
		query := r.dialect.Rebind(`SELECT ` + scheduleColumns + ` FROM schedules WHERE device_id = ? ORDER BY fire_time, created_at, id`)
		return r.query(ctx, query, deviceID)
	}
	return r.query(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY fire_time, created_at, id`)
}

func (r *SQLScheduleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, r.dialect.Rebind(`DELETE FROM schedules WHERE id = ?`), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return interfaces.ErrNotFound
	}

	return nil
}

func (r *SQLScheduleRepository) query(ctx context.Context, query string, args ...interface{}) ([]*mqtmodels.ScheduleEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*mqtmodels.ScheduleEntry, 0)
	for rows.Next() {
		var entry mqtmodels.ScheduleEntry
		var action string
		var createdAt time.Time

		if err := rows.Scan(&entry.ID, &entry.DeviceID, &entry.PinIndex, &action, &entry.Time,
			&entry.Note, &entry.CreatedBy, dbTime{&createdAt}); err != nil {
			return nil, err
		}
		entry.Action = mqtmodels.Action(action)
		entry.CreatedAt = createdAt
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
