// Package store defines the interface the scheduling engine expects
// from its backing store: whole-entity reads joined for one event,
// constrained writes, and a change feed. Persistence, query language and
// authorization live behind these interfaces and are not part of the
// engine.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/openrota/openrota/pkg/core/model"
)

// Sentinel causes for store rejections. The engine matches on these
// with errors.Is to turn a lost race into a user message plus a
// re-sync, never a crash.
var (
	ErrNotFound            = errors.New("record not found")
	ErrTaskFull            = errors.New("task is already full")
	ErrDuplicateAssignment = errors.New("volunteer is already assigned to this task")
	ErrNameTaken           = errors.New("volunteer name is already taken")
)

// StoreError wraps a remote rejection with the operation that caused
// it. Unwrap exposes the sentinel cause.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Table identifies the record kind a change event refers to.
type Table string

const (
	TableTasks       Table = "tasks"
	TableAssignments Table = "assignments"
	TableVolunteers  Table = "volunteers"
)

// Op identifies the kind of mutation behind a change event.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// ChangeEvent is one change-feed signal. TaskID is set when the
// affected record is a task or an assignment on a known task; consumers
// only use it for noise filtering, never to patch state.
type ChangeEvent struct {
	EventID string `json:"event_id"`
	TaskID  string `json:"task_id,omitempty"`
	Table   Table  `json:"table"`
	Op      Op     `json:"op"`
}

// Subscription is a live change-feed registration. Unsubscribe is
// idempotent and safe to call multiple times; after it returns the
// Events channel is closed.
type Subscription interface {
	Events() <-chan ChangeEvent
	Unsubscribe()
}

// ChangeFeed delivers change signals for one event, optionally narrowed
// to a set of task ids.
type ChangeFeed interface {
	// Subscribe registers for every change scoped to the event.
	Subscribe(ctx context.Context, eventID string) (Subscription, error)

	// SubscribeTasks registers for changes touching the given tasks
	// only. An empty id set is invalid; callers with nothing displayed
	// simply hold no subscription.
	SubscribeTasks(ctx context.Context, eventID string, taskIDs []string) (Subscription, error)
}

// Reader is the read side of the store, sufficient for snapshot
// refreshes.
type Reader interface {
	// GetEvent returns the event, or ErrNotFound.
	GetEvent(ctx context.Context, eventID string) (model.Event, error)

	// ListTasks returns the event's tasks joined with their type and
	// assignments (each joined with its volunteer), ordered by start
	// instant then id.
	ListTasks(ctx context.Context, eventID string) ([]model.TaskRecord, error)

	// ListVolunteers returns the event's volunteers ordered by name.
	ListVolunteers(ctx context.Context, eventID string) ([]model.Volunteer, error)
}

// Store is the full contract: reads plus constrained writes. All
// mutation constraints of the backing service (end > start, capacity,
// (task, volunteer) uniqueness, (event, name) uniqueness) are enforced
// on the write path and surface as *StoreError.
type Store interface {
	Reader

	InsertEvent(ctx context.Context, e model.Event) error

	InsertTaskType(ctx context.Context, tt model.TaskType) error
	DeleteTaskType(ctx context.Context, id string) error

	InsertTask(ctx context.Context, t model.Task) error
	UpdateTask(ctx context.Context, t model.Task) error
	DeleteTask(ctx context.Context, id string) error

	// InsertAssignment claims one slot of the task for the volunteer.
	// Fails with ErrTaskFull or ErrDuplicateAssignment on a lost race.
	InsertAssignment(ctx context.Context, taskID, volunteerID string) (model.Assignment, error)
	DeleteAssignment(ctx context.Context, id string) error

	// ResolveVolunteer returns the existing volunteer with the given
	// name for the event, or creates one. Name uniqueness per event is
	// the identity mechanism, so resolve-or-create is a single store
	// operation rather than a read-then-write on the client.
	ResolveVolunteer(ctx context.Context, eventID, name string) (model.Volunteer, error)
}
