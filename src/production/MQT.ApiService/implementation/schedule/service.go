package schedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/devicestate"
	logger "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Repository/Interfaces"
	"gopkg.in/yaml.v3"
)

// TimeLayout is the wall-clock format of ScheduleEntry.Time
const TimeLayout = "15:04"

var (
	ErrInvalidTime   = errors.New("invalid time")
	ErrInvalidAction = errors.New("invalid action")
	ErrMissingPin    = errors.New("pin_index is required")
)

// CreateRequest is the user-supplied part of a schedule entry
type CreateRequest struct {
	DeviceID string `json:"device_id" yaml:"device_id"`
	PinIndex *int   `json:"pin_index" yaml:"pin_index"`
	Action   string `json:"action" yaml:"action"`
	Time     string `json:"time" yaml:"time"`
	Note     string `json:"note" yaml:"note"`
}

// ImportFile is the YAML document accepted by Import
type ImportFile struct {
	Schedules []CreateRequest `yaml:"schedules"`
}

// Service validates and stores schedule entries
type Service struct {
	schedules interfaces.ScheduleRepository
	clock     clockwork.Clock
	logger    *logger.Logger
}

func NewService(schedules interfaces.ScheduleRepository, clock clockwork.Clock, log *logger.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{schedules: schedules, clock: clock, logger: log.WithComponent("schedule")}
}

// NormalizeTime parses a 24h wall-clock time and returns it zero-padded,
// so "7:05" becomes "07:05".
func NormalizeTime(s string) (string, error) {
	t, err := time.Parse(TimeLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w %q (expected HH:mm)", ErrInvalidTime, s)
	}
	return t.Format(TimeLayout), nil
}

// Build validates req and turns it into an entry ready to be stored
func (s *Service) Build(req CreateRequest, createdBy string) (*mqtmodels.ScheduleEntry, error) {
	if err := devicestate.ValidateDeviceID(req.DeviceID); err != nil {
		return nil, err
	}
	if req.PinIndex == nil {
		return nil, ErrMissingPin
	}
	action, err := mqtmodels.ParseAction(req.Action)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	hhmm, err := NormalizeTime(req.Time)
	if err != nil {
		return nil, err
	}

	return &mqtmodels.ScheduleEntry{
		ID:        uuid.New().String(),
		DeviceID:  req.DeviceID,
		PinIndex:  *req.PinIndex,
		Action:    action,
		Time:      hhmm,
		Note:      strings.TrimSpace(req.Note),
		CreatedBy: createdBy,
		CreatedAt: s.clock.Now().UTC(),
	}, nil
}

// Create validates and stores one entry
func (s *Service) Create(ctx context.Context, req CreateRequest, createdBy string) (*mqtmodels.ScheduleEntry, error) {
	entry, err := s.Build(req, createdBy)
	if err != nil {
		return nil, err
	}
	if err := s.schedules.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to store schedule: %w", err)
	}

	s.logger.Logger.Info().
		Str("schedule_id", entry.ID).
		Str("device_id", entry.DeviceID).
		Int("pin_index", entry.PinIndex).
		Str("action", string(entry.Action)).
		Str("time", entry.Time).
		Str("created_by", createdBy).
		Msg("Schedule created")
	return entry, nil
}

// Delete removes an entry; interfaces.ErrNotFound when it does not exist
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.schedules.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Logger.Info().Str("schedule_id", id).Msg("Schedule deleted")
	return nil
}

// List returns all entries, or those of one device
func (s *Service) List(ctx context.Context, deviceID string) ([]*mqtmodels.ScheduleEntry, error) {
	if deviceID != "" {
		if err := devicestate.ValidateDeviceID(deviceID); err != nil {
			return nil, err
		}
	}
	return s.schedules.List(ctx, deviceID)
}

// Import reads an ImportFile and stores every entry. All entries are
// validated before the first one is written.
func (s *Service) Import(ctx context.Context, r io.Reader, createdBy string) ([]*mqtmodels.ScheduleEntry, error) {
	var file ImportFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse schedule file: %w", err)
	}

	entries := make([]*mqtmodels.ScheduleEntry, 0, len(file.Schedules))
	for i, req := range file.Schedules {
		entry, err := s.Build(req, createdBy)
		if err != nil {
			return nil, fmt.Errorf("schedules[%d]: %w", i, err)
		}
		// file order becomes creation order, at a precision every backend keeps
		entry.CreatedAt = entry.CreatedAt.Add(time.Duration(i) * time.Millisecond)
		entries = append(entries, entry)
	}

	for i, entry := range entries {
		if err := s.schedules.Create(ctx, entry); err != nil {
			return entries[:i], fmt.Errorf("schedules[%d]: failed to store: %w", i, err)
		}
	}

	s.logger.Logger.Info().Int("count", len(entries)).Str("created_by", createdBy).Msg("Schedules imported")
	return entries, nil
}
