package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrota/openrota/pkg/core/model"
	"github.com/openrota/openrota/pkg/store"
)

var day = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func seedEvent(t *testing.T, s *Store) model.Event {
	t.Helper()
	e := model.Event{ID: "e1", Name: "Fair", StartDate: day, EndDate: day.AddDate(0, 0, 2)}
	require.NoError(t, s.InsertEvent(context.Background(), e))
	return e
}

func seedTask(t *testing.T, s *Store, id string, startHour int, required int) model.Task {
	t.Helper()
	task := model.Task{
		ID:       id,
		EventID:  "e1",
		Name:     "Shift " + id,
		Start:    day.Add(time.Duration(startHour) * time.Hour),
		End:      day.Add(time.Duration(startHour+2) * time.Hour),
		Required: required,
	}
	require.NoError(t, s.InsertTask(context.Background(), task))
	return task
}

func TestStore_TaskValidationOnWrite(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedEvent(t, s)

	bad := model.Task{ID: "t1", EventID: "e1", Name: "x", Start: day.Add(2 * time.Hour), End: day.Add(time.Hour), Required: 1}
	err := s.InsertTask(ctx, bad)

	var serr *store.StoreError
	require.ErrorAs(t, err, &serr)
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestStore_ListTasksOrderedAndJoined(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedEvent(t, s)

	require.NoError(t, s.InsertTaskType(ctx, model.TaskType{ID: "tt1", EventID: "e1", Name: "Kitchen", Color: "#fff"}))

	late := seedTask(t, s, "late", 14, 1)
	early := seedTask(t, s, "early", 9, 1)
	typed := model.Task{
		ID: "typed", EventID: "e1", TypeID: "tt1", Name: "Typed",
		Start: day.Add(11 * time.Hour), End: day.Add(12 * time.Hour), Required: 2,
	}
	require.NoError(t, s.InsertTask(ctx, typed))

	amy, err := s.ResolveVolunteer(ctx, "e1", "Amy")
	require.NoError(t, err)
	_, err = s.InsertAssignment(ctx, "typed", amy.ID)
	require.NoError(t, err)

	records, err := s.ListTasks(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, early.ID, records[0].ID)
	assert.Equal(t, typed.ID, records[1].ID)
	assert.Equal(t, late.ID, records[2].ID)

	require.NotNil(t, records[1].Type)
	assert.Equal(t, "Kitchen", records[1].Type.Name)
	require.Len(t, records[1].Assignments, 1)
	assert.Equal(t, "Amy", records[1].Assignments[0].Volunteer.Name)
}

func TestStore_ResolveVolunteer(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedEvent(t, s)

	first, err := s.ResolveVolunteer(ctx, "e1", "Amy")
	require.NoError(t, err)

	// Same name resumes the same volunteer instead of erroring.
	again, err := s.ResolveVolunteer(ctx, "e1", "Amy")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	other, err := s.ResolveVolunteer(ctx, "e1", "Ben")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	_, err = s.ResolveVolunteer(ctx, "e1", "   ")
	assert.Error(t, err)

	vols, err := s.ListVolunteers(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, vols, 2)
	assert.Equal(t, "Amy", vols[0].Name, "volunteers ordered by name")
}

func TestStore_AssignmentConstraints(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedEvent(t, s)
	seedTask(t, s, "t1", 9, 1)

	amy, _ := s.ResolveVolunteer(ctx, "e1", "Amy")
	ben, _ := s.ResolveVolunteer(ctx, "e1", "Ben")

	_, err := s.InsertAssignment(ctx, "t1", amy.ID)
	require.NoError(t, err)

	_, err = s.InsertAssignment(ctx, "t1", amy.ID)
	assert.ErrorIs(t, err, store.ErrDuplicateAssignment)

	_, err = s.InsertAssignment(ctx, "t1", ben.ID)
	assert.ErrorIs(t, err, store.ErrTaskFull)

	_, err = s.InsertAssignment(ctx, "missing", amy.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_DeleteTaskCascades(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedEvent(t, s)
	seedTask(t, s, "t1", 9, 2)

	amy, _ := s.ResolveVolunteer(ctx, "e1", "Amy")
	a, err := s.InsertAssignment(ctx, "t1", amy.ID)
	require.NoError(t, err)

	require.NoError(t, s.DeleteTask(ctx, "t1"))

	assert.ErrorIs(t, s.DeleteAssignment(ctx, a.ID), store.ErrNotFound)

	records, err := s.ListTasks(ctx, "e1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func collectEvents(sub store.Subscription, n int, timeout time.Duration) []store.ChangeEvent {
	var out []store.ChangeEvent
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			return out
		}
	}
	return out
}

func TestFeed_EventScoped(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedEvent(t, s)

	sub, err := s.Subscribe(ctx, "e1")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	seedTask(t, s, "t1", 9, 1)
	amy, _ := s.ResolveVolunteer(ctx, "e1", "Amy")
	_, err = s.InsertAssignment(ctx, "t1", amy.ID)
	require.NoError(t, err)

	events := collectEvents(sub, 3, time.Second)
	require.Len(t, events, 3)
	assert.Equal(t, store.TableTasks, events[0].Table)
	assert.Equal(t, store.TableVolunteers, events[1].Table)
	assert.Equal(t, store.TableAssignments, events[2].Table)
	assert.Equal(t, "t1", events[2].TaskID)
}

func TestFeed_TaskScopedFiltersNoise(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedEvent(t, s)
	seedTask(t, s, "t1", 9, 1)
	seedTask(t, s, "t2", 11, 1)

	sub, err := s.SubscribeTasks(ctx, "e1", []string{"t1"})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	amy, _ := s.ResolveVolunteer(ctx, "e1", "Amy")
	_, err = s.InsertAssignment(ctx, "t2", amy.ID) // filtered out
	require.NoError(t, err)
	_, err = s.InsertAssignment(ctx, "t1", amy.ID)
	require.NoError(t, err)

	events := collectEvents(sub, 1, time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, "t1", events[0].TaskID)
}

func TestFeed_UnsubscribeIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedEvent(t, s)

	sub, err := s.Subscribe(ctx, "e1")
	require.NoError(t, err)

	sub.Unsubscribe()
	assert.NotPanics(t, sub.Unsubscribe)

	// Mutations after unsubscribe must not panic on the closed channel.
	seedTask(t, s, "t1", 9, 1)
}

func TestStore_Mirror(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedEvent(t, s)

	var mirrored []store.ChangeEvent
	s.SetMirror(func(ev store.ChangeEvent) { mirrored = append(mirrored, ev) })

	seedTask(t, s, "t1", 9, 1)
	_, err := s.ResolveVolunteer(ctx, "e1", "Amy")
	require.NoError(t, err)

	require.Len(t, mirrored, 2)
	assert.Equal(t, store.TableTasks, mirrored[0].Table)
}
