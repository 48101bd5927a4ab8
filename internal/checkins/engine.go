package checkins

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/monocle-dev/crons/internal/models"
	"github.com/monocle-dev/crons/internal/schedule"
	"github.com/monocle-dev/crons/internal/types"
	"go.uber.org/zap"
)

// frozenStatuses are never changed by a check-in. This goes beyond the plain
// ordering guard (last_checkin <= date_added): a disabled monitor keeps its
// stored state and only collects check-in rows.
var frozenStatuses = []types.MonitorStatus{types.MonitorStatusDisabled}

// ScheduleResolver returns the schedule a monitor is expected to follow.
type ScheduleResolver func(monitor *models.Monitor) (schedule.Schedule, error)

// MonitorSchedule parses the schedule stored in the monitor's config.
func MonitorSchedule(monitor *models.Monitor) (schedule.Schedule, error) {
	cfg, err := monitor.ParseConfig()
	if err != nil {
		return nil, fmt.Errorf("monitor %d config: %w", monitor.ID, err)
	}

	s, err := schedule.Parse(cfg)
	if err != nil {
		return nil, fmt.Errorf("monitor %d schedule: %w", monitor.ID, err)
	}

	return s, nil
}

// Now is the default clock. Timestamps are truncated to milliseconds so they
// survive a round trip through every supported database unchanged.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Engine records check-ins and moves monitors between states.
type Engine struct {
	store     Store
	policy    FailurePolicy
	schedules ScheduleResolver
	now       func() time.Time
	log       *zap.Logger
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithFailurePolicy(policy FailurePolicy) Option {
	return func(e *Engine) { e.policy = policy }
}

func WithScheduleResolver(resolver ScheduleResolver) Option {
	return func(e *Engine) { e.schedules = resolver }
}

func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		schedules: MonitorSchedule,
		now:       Now,
		log:       zap.NewNop(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.policy == nil {
		e.policy = &ConsecutiveFailures{Schedules: e.schedules, Now: e.now}
	}

	return e
}

// RecordCheckIn stores a check-in for monitor and, in the same transaction,
// applies the state change it implies. The check-in is returned whether or
// not the monitor was changed. On error nothing is recorded.
func (e *Engine) RecordCheckIn(ctx context.Context, monitor *models.Monitor, projectID uint, report Report) (*models.MonitorCheckIn, error) {
	sched, err := e.schedules(monitor)
	if err != nil {
		return nil, err
	}

	var (
		checkin *models.MonitorCheckIn
		applied bool
	)

	err = e.store.Atomic(ctx, func(tx Tx) error {
		checkin = &models.MonitorCheckIn{
			GUID:      uuid.New(),
			ProjectID: projectID,
			MonitorID: monitor.ID,
			Status:    report.Status,
			Duration:  report.Duration,
			DateAdded: e.now(),
		}

		if err := tx.CreateCheckIn(ctx, checkin); err != nil {
			return persistenceError("create check-in", err)
		}

		applied, err = e.transition(ctx, tx, monitor, sched, checkin)
		return err
	})
	if err != nil {
		return nil, persistenceError("record check-in", err)
	}

	e.log.Info("check-in recorded",
		zap.Uint("monitor_id", monitor.ID),
		zap.String("checkin", checkin.GUID.String()),
		zap.String("status", string(checkin.Status)),
		zap.Bool("monitor_updated", applied),
	)

	return checkin, nil
}

func (e *Engine) transition(ctx context.Context, tx Tx, monitor *models.Monitor, sched schedule.Schedule, checkin *models.MonitorCheckIn) (bool, error) {
	at := checkin.DateAdded

	switch checkin.Status {
	case types.CheckInError:
		flipped, err := e.policy.MarkFailed(ctx, tx, monitor, &at)
		if err != nil {
			return false, persistenceError("mark monitor failed", err)
		}
		return flipped, nil

	case types.CheckInOK, types.CheckInInProgress:
		next := sched.Next(at)
		update := MonitorUpdate{LastCheckin: &at, NextCheckin: &next}

		// In-progress reports move the deadline but say nothing about health.
		if checkin.Status == types.CheckInOK {
			status := types.MonitorStatusOK
			update.Status = &status
		}

		guard := Guard{NotAfter: &at, ExcludeStatuses: frozenStatuses}

		applied, err := tx.UpdateMonitor(ctx, monitor.ID, guard, update)
		if err != nil {
			return false, persistenceError("update monitor", err)
		}
		return applied, nil

	default:
		return false, fmt.Errorf("unsupported check-in status %q", checkin.Status)
	}
}

// RecordMissed stores a missed check-in for a monitor whose deadline has
// passed and escalates it through the failure policy. The deadline in
// monitor is claimed first by moving next_checkin forward with a
// compare-and-swap; if the stored deadline no longer matches (the job
// reported, or another sweep got there) nothing is written and a nil
// check-in is returned.
func (e *Engine) RecordMissed(ctx context.Context, monitor *models.Monitor) (*models.MonitorCheckIn, error) {
	sched, err := e.schedules(monitor)
	if err != nil {
		return nil, err
	}

	var (
		checkin *models.MonitorCheckIn
		flipped bool
	)

	err = e.store.Atomic(ctx, func(tx Tx) error {
		checkin = nil
		now := e.now()
		next := sched.Next(now)
		guard := Guard{NextCheckin: monitor.NextCheckin, ExcludeStatuses: frozenStatuses}

		claimed, err := tx.UpdateMonitor(ctx, monitor.ID, guard, MonitorUpdate{NextCheckin: &next})
		if err != nil {
			return persistenceError("advance next check-in", err)
		}
		if !claimed {
			return nil
		}

		checkin = &models.MonitorCheckIn{
			GUID:      uuid.New(),
			ProjectID: monitor.ProjectID,
			MonitorID: monitor.ID,
			Status:    types.CheckInMissed,
			DateAdded: now,
		}

		if err := tx.CreateCheckIn(ctx, checkin); err != nil {
			return persistenceError("create check-in", err)
		}

		claimedMonitor := *monitor
		claimedMonitor.NextCheckin = &next

		flipped, err = e.policy.MarkFailed(ctx, tx, &claimedMonitor, nil)
		if err != nil {
			return persistenceError("mark monitor failed", err)
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError("record missed check-in", err)
	}

	if checkin == nil {
		e.log.Debug("missed check-in skipped, deadline already moved", zap.Uint("monitor_id", monitor.ID))
		return nil, nil
	}

	e.log.Warn("missed check-in",
		zap.Uint("monitor_id", monitor.ID),
		zap.String("checkin", checkin.GUID.String()),
		zap.Bool("marked_failed", flipped),
	)

	return checkin, nil
}
