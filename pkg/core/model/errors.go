package model

import (
	"fmt"
	"strings"
)

// ValidationError is a locally detected problem with user input or
// entity state. It is surfaced directly to the user and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidateEvent checks the event invariants: end date not before start
// date, non-negative minimum hours, and max hours (if set) at least the
// minimum.
func ValidateEvent(e Event) error {
	if strings.TrimSpace(e.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if e.EndDate.Before(e.StartDate) {
		return &ValidationError{Field: "end_date", Reason: "must not be before start date"}
	}
	if e.MinHours < 0 {
		return &ValidationError{Field: "min_hours", Reason: "must not be negative"}
	}
	if e.MaxHours != nil && *e.MaxHours < e.MinHours {
		return &ValidationError{Field: "max_hours", Reason: "must be at least min hours"}
	}
	return nil
}

// ValidateTask checks the task invariants, including that the task lies
// within the event's inclusive date range.
func ValidateTask(t Task, e Event) error {
	if strings.TrimSpace(t.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !t.End.After(t.Start) {
		return &ValidationError{Field: "end", Reason: "must be after start"}
	}
	if t.Required < 1 {
		return &ValidationError{Field: "required", Reason: "must be at least 1"}
	}
	eventEnd := e.EndDate.AddDate(0, 0, 1)
	if t.Start.Before(e.StartDate) || t.End.After(eventEnd) {
		return &ValidationError{Field: "start", Reason: fmt.Sprintf(
			"task must fall within the event (%s to %s)",
			e.StartDate.Format("2006-01-02"), e.EndDate.Format("2006-01-02"))}
	}
	return nil
}

// ValidateVolunteerName checks the sign-in name. The name is the whole
// identity mechanism, so an empty one is meaningless.
func ValidateVolunteerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	return nil
}
