package mqtmodels

import "time"

// DeviceState is the persisted pin mask of one device.
type DeviceState struct {
	DeviceID  string    `json:"device_id" bson:"_id" db:"device_id"`
	Bitmask   uint16    `json:"bitmask" bson:"bitmask" db:"bitmask"`
	Version   int64     `json:"version" bson:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at" db:"updated_at"`
}

// ChangeSource identifies who produced a state change
type ChangeSource string

const (
	SourceAPI       ChangeSource = "api"
	SourceScheduler ChangeSource = "scheduler"
)

// StateChange is emitted to notifiers after a mask change was persisted.
// Version is the stored version the change committed as; a higher version
// is always the newer state of a device.
type StateChange struct {
	DeviceID  string       `json:"device_id"`
	Bitmask   uint16       `json:"bitmask"`
	Version   int64        `json:"version"`
	Source    ChangeSource `json:"source"`
	ChangedAt time.Time    `json:"changed_at"`
}
