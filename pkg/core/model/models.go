package model

import (
	"time"
)

// Event is a time-bounded happening that volunteers sign up for.
// StartDate and EndDate are inclusive calendar dates (midnight in the
// event's timezone); MaxHours, when set, caps the total hours any one
// volunteer may sign up for.
type Event struct {
	ID          string
	Name        string
	Description string
	StartDate   time.Time // date only, midnight local
	EndDate     time.Time // date only, midnight local, inclusive
	MinHours    float64
	MaxHours    *float64 // nil = no cap
}

// Days returns every calendar date of the event in order.
func (e Event) Days() []time.Time {
	var days []time.Time
	for d := e.StartDate; !d.After(e.EndDate); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// TaskType is a display category for tasks (e.g. "Setup", "Kitchen").
type TaskType struct {
	ID      string
	EventID string
	Name    string
	Color   string
}

// Task represents a time-boxed shift requiring a number of volunteers.
type Task struct {
	ID          string
	EventID     string
	TypeID      string // empty if untyped
	Name        string
	Description string
	Start       time.Time
	End         time.Time
	Required    int    // volunteers needed, >= 1
	Location    string // free text, optional
	GroupKey    string // explicit grouping for the day grid; empty = group by name
}

// Duration returns the task's wall-clock length.
func (t Task) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

// Hours returns the task's length in fractional hours.
func (t Task) Hours() float64 {
	return t.Duration().Hours()
}

// Volunteer is an anonymous participant identified only by a display
// name, unique within one event. There is no account behind it.
type Volunteer struct {
	ID      string
	EventID string
	Name    string
}

// Assignment is a volunteer's claim on one unit of a task's capacity.
type Assignment struct {
	ID          string
	TaskID      string
	VolunteerID string
}

// AssignmentRecord is an Assignment joined with its Volunteer.
type AssignmentRecord struct {
	Assignment
	Volunteer Volunteer
}

// TaskRecord is a Task joined with its type and current assignments,
// as read wholesale from the store.
type TaskRecord struct {
	Task
	Type        *TaskType
	Assignments []AssignmentRecord
}

// Assigned returns the number of claimed slots.
func (t TaskRecord) Assigned() int {
	return len(t.Assignments)
}

// Full reports whether every slot of the task is claimed.
func (t TaskRecord) Full() bool {
	return len(t.Assignments) >= t.Required
}

// HasVolunteer reports whether the given volunteer holds an assignment
// on this task.
func (t TaskRecord) HasVolunteer(volunteerID string) bool {
	for _, a := range t.Assignments {
		if a.VolunteerID == volunteerID {
			return true
		}
	}
	return false
}

// Snapshot is the client's full in-memory copy of one event's tasks,
// assignments and volunteers. It is rebuilt wholesale on every sync
// refresh and never patched incrementally.
type Snapshot struct {
	Event      Event
	Tasks      []TaskRecord
	Volunteers []Volunteer
	FetchedAt  time.Time
}

// Task returns the task record with the given id, or false if the task
// is no longer part of the snapshot.
func (s *Snapshot) Task(taskID string) (TaskRecord, bool) {
	for _, t := range s.Tasks {
		if t.ID == taskID {
			return t, true
		}
	}
	return TaskRecord{}, false
}

// AssignmentFor returns the volunteer's assignment on the given task,
// or false if none exists.
func (s *Snapshot) AssignmentFor(taskID, volunteerID string) (AssignmentRecord, bool) {
	for _, t := range s.Tasks {
		if t.ID != taskID {
			continue
		}
		for _, a := range t.Assignments {
			if a.VolunteerID == volunteerID {
				return a, true
			}
		}
	}
	return AssignmentRecord{}, false
}

// TaskIDs returns the ids of all tasks in the snapshot, in store order.
func (s *Snapshot) TaskIDs() []string {
	ids := make([]string, len(s.Tasks))
	for i, t := range s.Tasks {
		ids[i] = t.ID
	}
	return ids
}
