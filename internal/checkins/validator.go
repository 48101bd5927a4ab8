package checkins

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/monocle-dev/crons/internal/types"
)

// RawReport is the undecoded body of a check-in request. Fields are kept raw
// so that type problems can be reported per field.
type RawReport struct {
	Status   json.RawMessage `json:"status"`
	Duration json.RawMessage `json:"duration"`
}

// Report is a validated check-in payload.
type Report struct {
	Status   types.CheckInStatus
	Duration *int
}

// Validate checks a raw report. Every field problem is collected into a
// single *ValidationError.
func Validate(raw RawReport) (Report, error) {
	var (
		report Report
		verr   ValidationError
	)

	if isAbsent(raw.Status) {
		verr.add("status", CodeRequired, "This field is required.")
	} else {
		var value string
		if err := json.Unmarshal(raw.Status, &value); err != nil {
			verr.add("status", CodeInvalidChoice, "Status must be one of ok, error, in_progress.")
		} else if status, ok := types.ParseReportedStatus(value); ok {
			report.Status = status
		} else {
			verr.add("status", CodeInvalidChoice, strconv.Quote(value)+" is not a valid choice.")
		}
	}

	if !isAbsent(raw.Duration) {
		duration, ok := parseDuration(raw.Duration)
		if ok {
			report.Duration = &duration
		} else {
			verr.add("duration", CodeInvalidType, "A non-negative integer is required.")
		}
	}

	if len(verr.Fields) > 0 {
		return Report{}, &verr
	}

	return report, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// parseDuration accepts a JSON integer or a string holding one.
func parseDuration(raw json.RawMessage) (int, bool) {
	var number json.Number

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return 0, false
	}

	switch v := value.(type) {
	case json.Number:
		number = v
	case string:
		number = json.Number(strings.TrimSpace(v))
	default:
		return 0, false
	}

	n, err := strconv.Atoi(number.String())
	if err != nil || n < 0 {
		return 0, false
	}

	return n, true
}
