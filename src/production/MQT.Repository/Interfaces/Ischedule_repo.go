package interfaces

import (
	"context"

	mqtmodels "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models"
)

type ScheduleRepository interface {
	// Create stores a new entry; the ID must already be set
	Create(ctx context.Context, entry *mqtmodels.ScheduleEntry) error

	// FindByTime returns entries whose time equals hhmm exactly, in creation order
	FindByTime(ctx context.Context, hhmm string) ([]*mqtmodels.ScheduleEntry, error)

	// List returns all entries, or those of one device when deviceID is non-empty
	List(ctx context.Context, deviceID string) ([]*mqtmodels.ScheduleEntry, error)

	// Delete removes an entry; ErrNotFound if it does not exist
	Delete(ctx context.Context, id string) error
}
