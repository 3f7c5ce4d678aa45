package interfaces

import (
	"context"

	mqtmodels "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models"
)

// StateRepository persists one DeviceState per device ID. Every method is
// atomic with respect to concurrent callers on the same device.
type StateRepository interface {
	// GetOrCreate returns the state, inserting a zero mask at version 0 when
	// the device was never seen.
	GetOrCreate(ctx context.Context, deviceID string) (*mqtmodels.DeviceState, error)

	// Set overwrites the mask unconditionally (creating the record if
	// needed) and bumps the version.
	Set(ctx context.Context, deviceID string, bitmask uint16) (*mqtmodels.DeviceState, error)

	// CompareAndSwap writes bitmask only if the stored version equals
	// expectedVersion and returns the state as written. It returns a nil
	// state, without error, when the version moved.
	CompareAndSwap(ctx context.Context, deviceID string, expectedVersion int64, bitmask uint16) (*mqtmodels.DeviceState, error)

	// List returns all known device states ordered by device ID
	List(ctx context.Context) ([]*mqtmodels.DeviceState, error)
}
