package checkins

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnauthorized is returned when the caller's credential lacks the
	// scope needed for the operation.
	ErrUnauthorized = errors.New("credential is not allowed to perform this operation")

	ErrMonitorNotFound = errors.New("monitor not found")
)

const (
	CodeRequired      = "required"
	CodeInvalidChoice = "invalid_choice"
	CodeInvalidType   = "invalid_type"
)

type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError collects every problem found in a report, keyed by field.
type ValidationError struct {
	Fields map[string][]FieldError
}

func (e *ValidationError) add(field, code, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]FieldError)
	}
	e.Fields[field] = append(e.Fields[field], FieldError{Code: code, Message: message})
}

func (e *ValidationError) Has(field, code string) bool {
	for _, fe := range e.Fields[field] {
		if fe.Code == code {
			return true
		}
	}
	return false
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		for _, fe := range e.Fields[field] {
			parts = append(parts, fmt.Sprintf("%s: %s", field, fe.Message))
		}
	}

	return "invalid check-in: " + strings.Join(parts, "; ")
}

// PersistenceError wraps a store failure. The transaction it happened in was
// rolled back, so the caller may resend the request.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistenceError(op string, err error) error {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
