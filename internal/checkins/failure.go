package checkins

import (
	"context"
	"time"

	"github.com/monocle-dev/crons/internal/models"
	"github.com/monocle-dev/crons/internal/types"
)

// FailurePolicy decides whether a failure flips a monitor to the error state.
//
// MarkFailed must be safe to call concurrently and more than once: it may
// only change the monitor through a guarded Tx.UpdateMonitor that never lets
// an older failure overwrite state written for a newer check-in. It reports
// whether the stored monitor was changed. lastCheckin is the time of the
// failing check-in, or nil when the failure is a missed deadline.
type FailurePolicy interface {
	MarkFailed(ctx context.Context, tx Tx, monitor *models.Monitor, lastCheckin *time.Time) (bool, error)
}

// ConsecutiveFailures marks a monitor as failed once its most recent
// check-ins are all failures. The run length comes from the monitor's
// failure_threshold, falling back to DefaultThreshold and then 1.
type ConsecutiveFailures struct {
	Schedules        ScheduleResolver
	Now              func() time.Time
	DefaultThreshold int
}

func (p *ConsecutiveFailures) MarkFailed(ctx context.Context, tx Tx, monitor *models.Monitor, lastCheckin *time.Time) (bool, error) {
	cfg, err := monitor.ParseConfig()
	if err != nil {
		return false, err
	}

	threshold := cfg.FailureThreshold
	if threshold < 1 {
		threshold = p.DefaultThreshold
	}

	if threshold > 1 {
		recent, err := tx.LatestCheckIns(ctx, monitor.ID, threshold)
		if err != nil {
			return false, err
		}
		if len(recent) < threshold {
			return false, nil
		}
		for _, checkin := range recent {
			if !checkin.Status.IsFailure() {
				return false, nil
			}
		}
	}

	sched, err := p.Schedules(monitor)
	if err != nil {
		return false, err
	}

	now := p.Now()
	base, last := now, now
	guard := Guard{ExcludeStatuses: frozenStatuses}

	switch {
	case lastCheckin != nil:
		base, last = *lastCheckin, *lastCheckin
	case monitor.LastCheckin != nil:
		last = *monitor.LastCheckin
	}

	if lastCheckin == nil {
		// A missed deadline only counts while the deadline is unchanged.
		guard.NextCheckin = monitor.NextCheckin
	}
	guard.NotAfter = &last

	next := sched.Next(base)
	status := types.MonitorStatusError

	return tx.UpdateMonitor(ctx, monitor.ID, guard,
		MonitorUpdate{Status: &status, LastCheckin: &last, NextCheckin: &next},
	)
}
