// Package schedule computes when a monitor's next check-in is expected.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/monocle-dev/crons/internal/types"
	"github.com/robfig/cron/v3"
)

var (
	ErrUnknownScheduleType = errors.New("unknown schedule type")
	ErrInvalidInterval     = errors.New("invalid interval")
)

// Schedule returns the deadline for the check-in following one made at after.
type Schedule interface {
	Next(after time.Time) time.Time
}

// Func adapts a plain function to Schedule.
type Func func(after time.Time) time.Time

func (f Func) Next(after time.Time) time.Time { return f(after) }

// Parse builds a Schedule from a monitor config.
func Parse(cfg types.MonitorConfig) (Schedule, error) {
	switch cfg.ScheduleType {
	case types.ScheduleCrontab:
		expr := strings.TrimSpace(cfg.Schedule)
		if expr == "" {
			return nil, fmt.Errorf("crontab schedule is empty")
		}

		parsed, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid crontab %q: %w", expr, err)
		}

		return crontab{schedule: parsed}, nil
	case types.ScheduleInterval:
		if cfg.Interval == nil {
			return nil, fmt.Errorf("%w: missing interval", ErrInvalidInterval)
		}

		return newInterval(cfg.Interval.Value, cfg.Interval.Unit)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheduleType, cfg.ScheduleType)
	}
}

type crontab struct {
	schedule cron.Schedule
}

func (c crontab) Next(after time.Time) time.Time {
	return c.schedule.Next(after.UTC().Truncate(time.Minute))
}

type interval struct {
	value int
	unit  string
}

func newInterval(value int, unit string) (Schedule, error) {
	if value <= 0 {
		return nil, fmt.Errorf("%w: value must be positive, got %d", ErrInvalidInterval, value)
	}

	unit = types.NormalizeUnit(unit)

	switch unit {
	case "minute", "hour", "day", "week", "month", "year":
	default:
		return nil, fmt.Errorf("%w: unsupported unit %q", ErrInvalidInterval, unit)
	}

	return interval{value: value, unit: unit}, nil
}

func (i interval) Next(after time.Time) time.Time {
	base := after.UTC().Truncate(time.Minute)

	switch i.unit {
	case "minute":
		return base.Add(time.Duration(i.value) * time.Minute)
	case "hour":
		return base.Add(time.Duration(i.value) * time.Hour)
	case "day":
		return base.AddDate(0, 0, i.value)
	case "week":
		return base.AddDate(0, 0, 7*i.value)
	case "month":
		return base.AddDate(0, i.value, 0)
	default:
		return base.AddDate(i.value, 0, 0)
	}
}
