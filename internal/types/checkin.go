package types

import "strings"

// CheckInStatus is the closed set of outcomes a check-in can report.
type CheckInStatus string

const (
	CheckInOK         CheckInStatus = "ok"
	CheckInError      CheckInStatus = "error"
	CheckInInProgress CheckInStatus = "in_progress"
	// CheckInMissed is written by the sweeper, never accepted from clients.
	CheckInMissed CheckInStatus = "missed"
)

// ParseReportedStatus maps a client supplied status onto CheckInStatus.
// Matching is case-insensitive and excludes CheckInMissed.
func ParseReportedStatus(value string) (CheckInStatus, bool) {
	switch CheckInStatus(strings.ToLower(strings.TrimSpace(value))) {
	case CheckInOK:
		return CheckInOK, true
	case CheckInError:
		return CheckInError, true
	case CheckInInProgress:
		return CheckInInProgress, true
	}
	return "", false
}

func (s CheckInStatus) IsFailure() bool {
	return s == CheckInError || s == CheckInMissed
}
