package types

import "strings"

type MonitorStatus string

const (
	MonitorStatusActive   MonitorStatus = "active"
	MonitorStatusDisabled MonitorStatus = "disabled"
	MonitorStatusOK       MonitorStatus = "ok"
	MonitorStatusError    MonitorStatus = "error"
)

func (s MonitorStatus) Valid() bool {
	switch s {
	case MonitorStatusActive, MonitorStatusDisabled, MonitorStatusOK, MonitorStatusError:
		return true
	}
	return false
}

type ScheduleType string

const (
	ScheduleCrontab  ScheduleType = "crontab"
	ScheduleInterval ScheduleType = "interval"
)

// MonitorConfig is stored as JSON on the monitor row.
type MonitorConfig struct {
	ScheduleType ScheduleType `json:"schedule_type"`
	// Crontab expression, e.g. "0 * * * *". Used when ScheduleType is crontab.
	Schedule string `json:"schedule,omitempty"`
	// Interval schedule, e.g. {"value": 1, "unit": "hour"}.
	Interval *IntervalConfig `json:"interval,omitempty"`
	// Minutes of grace after next_checkin before a check-in counts as missed.
	CheckinMargin int `json:"checkin_margin,omitempty"`
	// Consecutive failures required before the monitor is marked as error.
	FailureThreshold int `json:"failure_threshold,omitempty"`
}

type IntervalConfig struct {
	Value int    `json:"value"`
	Unit  string `json:"unit"` // minute, hour, day, week, month, year
}

func NormalizeUnit(unit string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(unit)), "s")
}
