package notify

import (
	"context"
	"sync"

	logger "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models"
)

// Notifier is told about every persisted mask change. Delivery is best effort.
type Notifier interface {
	Name() string
	Publish(ctx context.Context, change mqtmodels.StateChange) error
}

// Fanout forwards each change to every registered notifier. A failing
// notifier is logged and never affects the others or the caller.
type Fanout struct {
	mu        sync.RWMutex
	notifiers []Notifier
	logger    *logger.Logger
}

func NewFanout(log *logger.Logger, notifiers ...Notifier) *Fanout {
	return &Fanout{notifiers: notifiers, logger: log.WithComponent("notify")}
}

// Add registers another notifier
func (f *Fanout) Add(n Notifier) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifiers = append(f.notifiers, n)
}

func (f *Fanout) Name() string { return "fanout" }

func (f *Fanout) Publish(ctx context.Context, change mqtmodels.StateChange) error {
	if f == nil {
		return nil
	}
	f.mu.RLock()
	notifiers := f.notifiers
	f.mu.RUnlock()

	for _, n := range notifiers {
		if err := n.Publish(ctx, change); err != nil {
			f.logger.Logger.Warn().Err(err).
				Str("notifier", n.Name()).
				Str("device_id", change.DeviceID).
				Msg("Failed to publish state change")
		}
	}
	return nil
}
