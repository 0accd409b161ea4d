// Package recurrence expands recurring task templates into concrete
// tasks within an event's date range. A template describes one shift
// ("Kitchen, every day at 09:00 for 2h, 3 volunteers") and expansion
// yields one Task per occurrence, all sharing a group key so the day
// grid renders the series as a single block per day.
package recurrence

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"github.com/openrota/openrota/pkg/core/model"
)

// Template defines a recurring task.
type Template struct {
	Name        string
	Description string
	TypeID      string
	Location    string
	StartClock  string // "15:04", local to the event timezone
	DurationMin int
	Required    int
	RRule       string // e.g. "FREQ=DAILY" or "FREQ=WEEKLY;BYDAY=SA,SU"
}

// Expand generates the concrete tasks for the template within the
// event's inclusive date range. Occurrences outside the range are
// dropped. The returned tasks carry fresh ids and the template name as
// their group key.
func Expand(tpl Template, event model.Event, loc *time.Location) ([]model.Task, error) {
	if tpl.DurationMin <= 0 {
		return nil, &model.ValidationError{Field: "duration", Reason: "must be positive"}
	}
	if tpl.Required < 1 {
		return nil, &model.ValidationError{Field: "required", Reason: "must be at least 1"}
	}

	clock, err := time.Parse("15:04", tpl.StartClock)
	if err != nil {
		return nil, &model.ValidationError{Field: "start_clock", Reason: fmt.Sprintf("invalid time %q", tpl.StartClock)}
	}

	rule, err := rrule.StrToRRule(tpl.RRule)
	if err != nil {
		return nil, &model.ValidationError{Field: "rrule", Reason: err.Error()}
	}

	first := time.Date(
		event.StartDate.Year(), event.StartDate.Month(), event.StartDate.Day(),
		clock.Hour(), clock.Minute(), 0, 0, loc,
	)
	rule.DTStart(first)

	last := time.Date(
		event.EndDate.Year(), event.EndDate.Month(), event.EndDate.Day(),
		23, 59, 59, 0, loc,
	)

	occurrences := rule.Between(first, last, true)

	tasks := make([]model.Task, 0, len(occurrences))
	for _, occ := range occurrences {
		start := occ
		end := start.Add(time.Duration(tpl.DurationMin) * time.Minute)
		tasks = append(tasks, model.Task{
			ID:          uuid.New().String(),
			EventID:     event.ID,
			TypeID:      tpl.TypeID,
			Name:        tpl.Name,
			Description: tpl.Description,
			Start:       start,
			End:         end,
			Required:    tpl.Required,
			Location:    tpl.Location,
			GroupKey:    tpl.Name,
		})
	}

	return tasks, nil
}
