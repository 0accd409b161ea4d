package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrota/openrota/pkg/core/model"
)

func testEvent() model.Event {
	return model.Event{
		ID:        "e1",
		Name:      "Festival",
		StartDate: time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC), // a Monday
		EndDate:   time.Date(2026, 7, 12, 0, 0, 0, 0, time.UTC),
	}
}

func TestExpand_Daily(t *testing.T) {
	tasks, err := Expand(Template{
		Name:        "Kitchen",
		StartClock:  "09:00",
		DurationMin: 120,
		Required:    3,
		RRule:       "FREQ=DAILY",
	}, testEvent(), time.UTC)

	require.NoError(t, err)
	require.Len(t, tasks, 7)

	first := tasks[0]
	assert.Equal(t, "Kitchen", first.Name)
	assert.Equal(t, "Kitchen", first.GroupKey)
	assert.Equal(t, "e1", first.EventID)
	assert.Equal(t, 3, first.Required)
	assert.Equal(t, time.Date(2026, 7, 6, 9, 0, 0, 0, time.UTC), first.Start)
	assert.Equal(t, time.Date(2026, 7, 6, 11, 0, 0, 0, time.UTC), first.End)
	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, tasks[0].ID, tasks[1].ID)
}

func TestExpand_WeekendsOnly(t *testing.T) {
	tasks, err := Expand(Template{
		Name:        "Gate",
		StartClock:  "08:30",
		DurationMin: 240,
		Required:    2,
		RRule:       "FREQ=WEEKLY;BYDAY=SA,SU",
	}, testEvent(), time.UTC)

	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		wd := task.Start.Weekday()
		assert.True(t, wd == time.Saturday || wd == time.Sunday)
	}
}

func TestExpand_Invalid(t *testing.T) {
	base := Template{
		Name:        "Kitchen",
		StartClock:  "09:00",
		DurationMin: 60,
		Required:    1,
		RRule:       "FREQ=DAILY",
	}

	tests := []struct {
		name   string
		mutate func(*Template)
	}{
		{"bad rrule", func(tpl *Template) { tpl.RRule = "FREQ=SOMETIMES" }},
		{"bad clock", func(tpl *Template) { tpl.StartClock = "9 o'clock" }},
		{"zero duration", func(tpl *Template) { tpl.DurationMin = 0 }},
		{"zero required", func(tpl *Template) { tpl.Required = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := base
			tt.mutate(&tpl)

			_, err := Expand(tpl, testEvent(), time.UTC)

			var verr *model.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestExpand_TasksValidateAgainstEvent(t *testing.T) {
	event := testEvent()
	tasks, err := Expand(Template{
		Name:        "Kitchen",
		StartClock:  "21:00",
		DurationMin: 180, // runs to midnight of the last day
		Required:    1,
		RRule:       "FREQ=DAILY",
	}, event, time.UTC)

	require.NoError(t, err)
	for _, task := range tasks {
		assert.NoError(t, model.ValidateTask(task, event))
	}
}
