// Package rules enforces the assignment invariants (capacity, duplicate
// assignment, per-volunteer hour cap) against an in-memory snapshot.
// The checks run client-side before a mutation is issued; they are
// advisory, not authoritative. The store may still reject an action that
// passed here because the snapshot was stale, and callers must treat
// that rejection as a normal outcome.
package rules

import (
	"fmt"

	"github.com/openrota/openrota/pkg/core/model"
)

// DuplicateAssignmentError reports that the volunteer already holds an
// assignment on the task.
type DuplicateAssignmentError struct {
	TaskID      string
	VolunteerID string
}

func (e *DuplicateAssignmentError) Error() string {
	return "you are already signed up for this task"
}

// TaskFullError reports that every slot of the task is already claimed.
type TaskFullError struct {
	TaskID   string
	Required int
	Assigned int
}

func (e *TaskFullError) Error() string {
	return fmt.Sprintf("task is full (%d of %d slots taken)", e.Assigned, e.Required)
}

// HourCapError reports that accepting the task would push the volunteer
// past the event's hour limit. Current, Candidate and Limit are carried
// for user messaging; the check is a soft UX block and is re-run against
// the freshest snapshot at commit time.
type HourCapError struct {
	CurrentHours   float64
	CandidateHours float64
	LimitHours     float64
}

func (e *HourCapError) Error() string {
	return fmt.Sprintf("signing up would exceed the hour limit: %.1fh assigned + %.1fh task > %.1fh limit",
		e.CurrentHours, e.CandidateHours, e.LimitHours)
}

// AssignedHours computes the volunteer's current total assigned hours as
// the sum of wall-clock task durations over every task where the
// volunteer holds an assignment. Overlapping tasks are not deduplicated;
// double-booked hours simply sum.
func AssignedHours(snap *model.Snapshot, volunteerID string) float64 {
	var total float64
	for _, t := range snap.Tasks {
		if t.HasVolunteer(volunteerID) {
			total += t.Hours()
		}
	}
	return total
}

// CheckAssign validates a prospective assignment of the volunteer to the
// task against the snapshot. It returns nil when the assignment may be
// attempted, or a typed rejection: *DuplicateAssignmentError,
// *TaskFullError or *HourCapError. The hour cap only applies when the
// event defines a maximum; the boundary case (exactly reaching the cap)
// is allowed.
func CheckAssign(snap *model.Snapshot, taskID, volunteerID string) error {
	task, ok := snap.Task(taskID)
	if !ok {
		return nil // vanished task; caller treats the action as a no-op
	}

	if task.HasVolunteer(volunteerID) {
		return &DuplicateAssignmentError{TaskID: taskID, VolunteerID: volunteerID}
	}

	if task.Assigned() >= task.Required {
		return &TaskFullError{TaskID: taskID, Required: task.Required, Assigned: task.Assigned()}
	}

	if snap.Event.MaxHours != nil {
		current := AssignedHours(snap, volunteerID)
		candidate := task.Hours()
		if current+candidate > *snap.Event.MaxHours {
			return &HourCapError{
				CurrentHours:   current,
				CandidateHours: candidate,
				LimitHours:     *snap.Event.MaxHours,
			}
		}
	}

	return nil
}

// CheckUnassign looks up the volunteer's assignment on the task. The
// only precondition for unassigning is that such an assignment exists;
// ok is false when it does not, and the caller treats that as a no-op.
func CheckUnassign(snap *model.Snapshot, taskID, volunteerID string) (assignmentID string, ok bool) {
	a, found := snap.AssignmentFor(taskID, volunteerID)
	if !found {
		return "", false
	}
	return a.ID, true
}
