// Package scheduler applies due schedule entries once per wall-clock minute.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.ApiService/implementation/devicestate"
	logger "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Logger"
	metrics "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Metrics"
	mqtmodels "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Repository/Interfaces"
	"golang.org/x/sync/errgroup"
)

// Zone is the wall-clock zone schedule times are written in
const Zone = "Asia/Bangkok"

const (
	minuteLayout = "15:04"
	jobName      = "pinmask-tick"
)

// Applier switches one pin of one device
type Applier interface {
	ApplyAction(ctx context.Context, deviceID string, pin int, action mqtmodels.Action, source mqtmodels.ChangeSource) (*devicestate.ApplyResult, error)
}

// Scheduler runs a single gocron job on the minute. Ticks never overlap: the
// job is in singleton mode and tick itself is serialized.
type Scheduler struct {
	cron      gocron.Scheduler
	schedules interfaces.ScheduleRepository
	applier   Applier
	clock     clockwork.Clock
	zone      *time.Location
	workers   int
	metrics   *metrics.Recorder
	logger    *logger.Logger

	tickMu   sync.Mutex
	lastTick string

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a scheduler; it does nothing until Start
func New(
	schedules interfaces.ScheduleRepository,
	applier Applier,
	recorder *metrics.Recorder,
	workers int,
	clock clockwork.Clock,
	log *logger.Logger,
) (*Scheduler, error) {
	zone, err := time.LoadLocation(Zone)
	if err != nil {
		return nil, fmt.Errorf("failed to load zone %s: %w", Zone, err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if workers < 1 {
		workers = 1
	}

	s := &Scheduler{
		schedules: schedules,
		applier:   applier,
		clock:     clock,
		zone:      zone,
		workers:   workers,
		metrics:   recorder,
		logger:    log.WithComponent("scheduler"),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	cron, err := gocron.NewScheduler(
		gocron.WithLocation(zone),
		gocron.WithClock(clock),
		gocron.WithLogger(cronLogger{s.logger}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	_, err = cron.NewJob(
		gocron.CronJob("* * * * *", false),
		gocron.NewTask(s.run),
		gocron.WithName(jobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = cron.Shutdown()
		return nil, fmt.Errorf("failed to create tick job: %w", err)
	}

	s.cron = cron
	return s, nil
}

// Start begins ticking. Ticks stop when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.logger.Logger.Info().Str("zone", Zone).Int("workers", s.workers).Msg("Starting scheduler")
	s.cron.Start()
}

// Stop waits for a running tick to finish
func (s *Scheduler) Stop() error {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	return s.cron.Shutdown()
}

func (s *Scheduler) run() {
	s.tick(s.ctx, s.clock.Now())
}

// tick applies every entry whose time equals now's minute in Zone. A minute
// is processed at most once; it is only marked done once the entries were
// fetched, so a failed query can be retried within the same minute.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	local := now.In(s.zone)
	minute := local.Format(minuteLayout)
	key := local.Format("2006-01-02 ") + minute
	log := s.logger.WithField("minute", minute)

	if key == s.lastTick {
		s.metrics.IncTick(metrics.ResultSkipped)
		log.Debug("Minute already processed")
		return
	}

	started := s.clock.Now()
	entries, err := s.schedules.FindByTime(ctx, minute)
	if err != nil {
		s.metrics.IncTick(metrics.ResultError)
		log.ErrorWithError(err, "Failed to load due schedules")
		return
	}
	s.lastTick = key

	if len(entries) == 0 {
		s.metrics.IncTick(metrics.ResultOK)
		return
	}

	var changed, unchanged, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.workers)

	for _, batch := range groupByDevice(entries) {
		batch := batch
		g.Go(func() error {
			// one device's entries apply in creation order, each on the
			// mask left by the previous one
			for _, entry := range batch {
				switch s.apply(ctx, entry) {
				case metrics.ResultChanged:
					changed.Add(1)
				case metrics.ResultUnchanged:
					unchanged.Add(1)
				default:
					failed.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.ObserveTickDuration(s.clock.Since(started))
	s.metrics.IncTick(metrics.ResultOK)
	log.Logger.Info().
		Int("entries", len(entries)).
		Int64("changed", changed.Load()).
		Int64("unchanged", unchanged.Load()).
		Int64("failed", failed.Load()).
		Msg("Applied due schedules")
}

func (s *Scheduler) apply(ctx context.Context, entry *mqtmodels.ScheduleEntry) string {
	res, err := s.applier.ApplyAction(ctx, entry.DeviceID, entry.PinIndex, entry.Action, mqtmodels.SourceScheduler)
	if err != nil {
		s.metrics.IncEntry(metrics.ResultError)
		s.logger.Logger.Error().Err(err).
			Str("schedule_id", entry.ID).
			Str("device_id", entry.DeviceID).
			Int("pin_index", entry.PinIndex).
			Msg("Failed to apply schedule")
		return metrics.ResultError
	}

	result := metrics.ResultUnchanged
	if res.Changed {
		result = metrics.ResultChanged
	}
	s.metrics.IncEntry(result)
	s.logger.Logger.Debug().
		Str("schedule_id", entry.ID).
		Str("device_id", entry.DeviceID).
		Int("pin_index", entry.PinIndex).
		Str("action", string(entry.Action)).
		Uint16("bitmask", res.State.Bitmask).
		Str("result", result).
		Msg("Schedule applied")
	return result
}

// groupByDevice splits entries per device, keeping their relative order
func groupByDevice(entries []*mqtmodels.ScheduleEntry) [][]*mqtmodels.ScheduleEntry {
	index := make(map[string]int)
	var groups [][]*mqtmodels.ScheduleEntry
	for _, e := range entries {
		i, ok := index[e.DeviceID]
		if !ok {
			i = len(groups)
			index[e.DeviceID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], e)
	}
	return groups
}

// cronLogger routes gocron's key/value logging into zerolog
type cronLogger struct {
	l *logger.Logger
}

func (c cronLogger) Debug(msg string, args ...any) { c.l.Logger.Debug().Fields(args).Msg(msg) }
func (c cronLogger) Info(msg string, args ...any)  { c.l.Logger.Debug().Fields(args).Msg(msg) }
func (c cronLogger) Warn(msg string, args ...any)  { c.l.Logger.Warn().Fields(args).Msg(msg) }
func (c cronLogger) Error(msg string, args ...any) { c.l.Logger.Error().Fields(args).Msg(msg) }
