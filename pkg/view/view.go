// Package view orchestrates user actions for one event view: sign-in,
// assign/unassign against the rules engine and store, filter selection,
// and feeding the packer for rendering. It owns no state of record;
// the sync controller's snapshot is the single source of truth.
package view

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/openrota/openrota/pkg/core/model"
	"github.com/openrota/openrota/pkg/core/packer"
	"github.com/openrota/openrota/pkg/core/rules"
	"github.com/openrota/openrota/pkg/session"
	"github.com/openrota/openrota/pkg/store"
	"github.com/openrota/openrota/pkg/sync"
)

// StatusFilter narrows the visible tasks by assignment status.
type StatusFilter string

const (
	FilterAll        StatusFilter = "all"
	FilterUnassigned StatusFilter = "unassigned" // tasks with free slots
	FilterMine       StatusFilter = "mine"       // tasks the signed-in volunteer holds
)

// ErrNotSignedIn is returned by actions that require a volunteer
// identity before one has been established.
var ErrNotSignedIn = errors.New("sign in before assigning to tasks")

// ErrNoSnapshot is returned when an action arrives before the first
// sync refresh has produced a snapshot.
var ErrNoSnapshot = errors.New("event data not loaded yet")

// View is the orchestrator for one event view.
type View struct {
	eventID string
	store   store.Store
	ctrl    *sync.Controller
	session session.Store
	logger  *zap.Logger

	mu           gosync.Mutex
	identity     *session.Identity
	typeFilter   string // task type id, empty = all types
	statusFilter StatusFilter
}

// New creates a view over an already constructed sync controller and
// restores any previously persisted volunteer identity for the event.
func New(eventID string, st store.Store, ctrl *sync.Controller, sess session.Store, logger *zap.Logger) *View {
	v := &View{
		eventID:      eventID,
		store:        st,
		ctrl:         ctrl,
		session:      sess,
		logger:       logger,
		statusFilter: FilterAll,
	}
	if id, ok, err := sess.Load(eventID); err == nil && ok {
		v.identity = &id
		logger.Debug("restored volunteer identity",
			zap.String("event_id", eventID), zap.String("name", id.Name))
	}
	return v
}

// Identity returns the signed-in volunteer identity, if any.
func (v *View) Identity() (session.Identity, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.identity == nil {
		return session.Identity{}, false
	}
	return *v.identity, true
}

// SignIn resolves or creates the volunteer with the given display name
// and persists the identity for future visits. Name uniqueness per
// event is the entire identity mechanism; an existing name simply
// resumes that volunteer.
func (v *View) SignIn(ctx context.Context, name string) (model.Volunteer, error) {
	if err := model.ValidateVolunteerName(name); err != nil {
		return model.Volunteer{}, err
	}

	vol, err := v.store.ResolveVolunteer(ctx, v.eventID, name)
	if err != nil {
		return model.Volunteer{}, err
	}

	id := session.Identity{VolunteerID: vol.ID, Name: vol.Name}
	if err := v.session.Save(v.eventID, id); err != nil {
		// Losing persistence only costs continuity on the next visit.
		v.logger.Warn("failed to persist volunteer identity", zap.Error(err))
	}

	v.mu.Lock()
	v.identity = &id
	v.mu.Unlock()

	v.logger.Info("volunteer signed in",
		zap.String("event_id", v.eventID),
		zap.String("volunteer_id", vol.ID),
		zap.String("name", vol.Name))

	v.ctrl.NotifyLocalMutation()

	return vol, nil
}

// SignOut clears the local identity. The volunteer record and its
// assignments remain in the store.
func (v *View) SignOut() error {
	v.mu.Lock()
	v.identity = nil
	v.mu.Unlock()

	return v.session.Clear(v.eventID)
}

// Assign signs the current volunteer up for the task. The rules engine
// runs against the latest snapshot first; a store rejection after a
// passing check means the race was lost, so the snapshot is refreshed
// and the rejection surfaces as a normal error. A task missing from
// the snapshot is a silent no-op: it was deleted under us.
func (v *View) Assign(ctx context.Context, taskID string) error {
	id, ok := v.Identity()
	if !ok {
		return ErrNotSignedIn
	}

	snap := v.ctrl.Snapshot()
	if snap == nil {
		return ErrNoSnapshot
	}
	if _, exists := snap.Task(taskID); !exists {
		v.logger.Debug("assign on vanished task ignored", zap.String("task_id", taskID))
		return nil
	}

	if err := rules.CheckAssign(snap, taskID, id.VolunteerID); err != nil {
		return err
	}

	if _, err := v.store.InsertAssignment(ctx, taskID, id.VolunteerID); err != nil {
		// Lost a race to another client; re-sync so the UI reflects
		// reality rather than the stale optimistic state.
		v.refreshAfterConflict(ctx)
		return err
	}

	v.logger.Info("assigned",
		zap.String("task_id", taskID), zap.String("volunteer_id", id.VolunteerID))

	v.ctrl.NotifyLocalMutation()

	return nil
}

// Unassign withdraws the current volunteer from the task. A missing
// assignment (or a vanished task) is a silent no-op.
func (v *View) Unassign(ctx context.Context, taskID string) error {
	id, ok := v.Identity()
	if !ok {
		return ErrNotSignedIn
	}

	snap := v.ctrl.Snapshot()
	if snap == nil {
		return nil
	}

	assignmentID, held := rules.CheckUnassign(snap, taskID, id.VolunteerID)
	if !held {
		return nil
	}

	if err := v.store.DeleteAssignment(ctx, assignmentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Already gone; another tab or client got there first.
			v.refreshAfterConflict(ctx)
			return nil
		}
		v.refreshAfterConflict(ctx)
		return err
	}

	v.logger.Info("unassigned",
		zap.String("task_id", taskID), zap.String("volunteer_id", id.VolunteerID))

	v.ctrl.NotifyLocalMutation()

	return nil
}

func (v *View) refreshAfterConflict(ctx context.Context) {
	if err := v.ctrl.Refresh(ctx); err != nil {
		v.logger.Warn("refresh after store conflict failed", zap.Error(err))
	}
}

// SetTypeFilter narrows the visible tasks to one task type; an empty
// id shows all types. The narrow change-feed subscription follows the
// new visible set.
func (v *View) SetTypeFilter(typeID string) {
	v.mu.Lock()
	v.typeFilter = typeID
	v.mu.Unlock()
	v.syncVisible()
}

// SetStatusFilter selects the assignment-status predicate.
func (v *View) SetStatusFilter(f StatusFilter) {
	v.mu.Lock()
	v.statusFilter = f
	v.mu.Unlock()
	v.syncVisible()
}

// syncVisible points the controller's narrow subscription at the
// currently displayed task ids.
func (v *View) syncVisible() {
	visible := v.VisibleTasks()
	ids := make([]string, len(visible))
	for i, t := range visible {
		ids[i] = t.ID
	}
	v.ctrl.SetVisibleTasks(ids)
}

// VisibleTasks applies the active filters to the snapshot. Filters are
// pure predicates; they never touch the store.
func (v *View) VisibleTasks() []model.TaskRecord {
	snap := v.ctrl.Snapshot()
	if snap == nil {
		return nil
	}

	v.mu.Lock()
	typeFilter := v.typeFilter
	statusFilter := v.statusFilter
	var volunteerID string
	if v.identity != nil {
		volunteerID = v.identity.VolunteerID
	}
	v.mu.Unlock()

	var out []model.TaskRecord
	for _, t := range snap.Tasks {
		if typeFilter != "" && t.TypeID != typeFilter {
			continue
		}
		switch statusFilter {
		case FilterUnassigned:
			if t.Full() {
				continue
			}
		case FilterMine:
			if volunteerID == "" || !t.HasVolunteer(volunteerID) {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// Day lays the visible tasks out into the given day's column grid.
// Filtering happens strictly before grouping, so a fully filtered-out
// group never appears as an empty block.
func (v *View) Day(day time.Time) []packer.Block {
	return packer.Pack(day, v.VisibleTasks())
}
