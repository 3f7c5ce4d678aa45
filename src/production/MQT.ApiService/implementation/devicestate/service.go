package devicestate

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Bitmask"
	logger "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Logger"
	metrics "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Metrics"
	mqtmodels "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models"
	notify "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Notify"
	interfaces "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Repository/Interfaces"
)

// ErrInvalidDeviceID is returned for IDs that cannot be used as a key
var ErrInvalidDeviceID = errors.New("invalid device id")

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateDeviceID accepts 1-64 letters, digits, '_' or '-'
func ValidateDeviceID(deviceID string) error {
	if !deviceIDPattern.MatchString(deviceID) {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceID, deviceID)
	}
	return nil
}

// ApplyResult is the outcome of a single pin action
type ApplyResult struct {
	State   *mqtmodels.DeviceState
	Changed bool
}

// Service is the only writer of device state. Both the HTTP API and the
// scheduler go through it.
type Service struct {
	states     interfaces.StateRepository
	notifier   notify.Notifier
	metrics    *metrics.Recorder
	maxRetries int
	logger     *logger.Logger
}

// NewService creates a device state service. notifier and recorder may be nil.
func NewService(
	states interfaces.StateRepository,
	notifier notify.Notifier,
	recorder *metrics.Recorder,
	maxRetries int,
	log *logger.Logger,
) *Service {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Service{
		states:     states,
		notifier:   notifier,
		metrics:    recorder,
		maxRetries: maxRetries,
		logger:     log.WithComponent("devicestate"),
	}
}

// GetState returns the device's state, creating a zero mask on first access
func (s *Service) GetState(ctx context.Context, deviceID string) (*mqtmodels.DeviceState, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}
	return s.states.GetOrCreate(ctx, deviceID)
}

// SetState replaces the whole mask unconditionally
func (s *Service) SetState(ctx context.Context, deviceID string, mask uint16, source mqtmodels.ChangeSource) (*mqtmodels.DeviceState, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	state, err := s.states.Set(ctx, deviceID, mask)
	if err != nil {
		return nil, err
	}

	s.metrics.IncStateWrite(string(source), metrics.KindSet)
	s.publish(ctx, state, source)
	return state, nil
}

// ApplyAction switches one pin with a read-modify-write that only commits if
// nobody wrote the device in between; otherwise it re-reads and retries.
// An unchanged mask is never written.
func (s *Service) ApplyAction(ctx context.Context, deviceID string, pin int, action mqtmodels.Action, source mqtmodels.ChangeSource) (*ApplyResult, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		state, err := s.states.GetOrCreate(ctx, deviceID)
		if err != nil {
			return nil, err
		}

		newMask, changed := bitmask.Apply(state.Bitmask, pin, action)
		if !changed {
			return &ApplyResult{State: state}, nil
		}

		updated, err := s.states.CompareAndSwap(ctx, deviceID, state.Version, newMask)
		if err != nil {
			return nil, err
		}
		if updated != nil {
			s.metrics.IncStateWrite(string(source), metrics.KindApply)
			s.publish(ctx, updated, source)
			return &ApplyResult{State: updated, Changed: true}, nil
		}

		s.metrics.IncCASConflict()
		s.logger.Logger.Debug().
			Str("device_id", deviceID).
			Int("attempt", attempt).
			Int64("version", state.Version).
			Msg("Concurrent write detected, retrying")

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("device %s: %w after %d attempts", deviceID, interfaces.ErrConflict, s.maxRetries)
}

// ListStates returns every known device
func (s *Service) ListStates(ctx context.Context) ([]*mqtmodels.DeviceState, error) {
	return s.states.List(ctx)
}

func (s *Service) publish(ctx context.Context, state *mqtmodels.DeviceState, source mqtmodels.ChangeSource) {
	if s.notifier == nil {
		return
	}
	change := mqtmodels.StateChange{
		DeviceID:  state.DeviceID,
		Bitmask:   state.Bitmask,
		Version:   state.Version,
		Source:    source,
		ChangedAt: state.UpdatedAt,
	}
	if err := s.notifier.Publish(ctx, change); err != nil {
		s.logger.Logger.Warn().Err(err).Str("device_id", state.DeviceID).Msg("Failed to publish state change")
	}
}
