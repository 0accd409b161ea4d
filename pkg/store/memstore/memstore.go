// Package memstore is the in-memory reference implementation of the
// store contract. It enforces every server-side constraint the engine
// relies on (task capacity, assignment uniqueness, volunteer name
// uniqueness, end > start) and emits a local change feed, which makes
// it both the test double for the sync and view layers and the backend
// for the demo CLI. It is not a persistence layer.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/openrota/openrota/pkg/core/model"
	"github.com/openrota/openrota/pkg/store"
)

// Store holds all records for any number of events. All methods are
// safe for concurrent use; each mutation is atomic under one lock, so
// constraint checks and the write they guard cannot interleave.
type Store struct {
	mu          sync.Mutex
	events      map[string]model.Event
	taskTypes   map[string]model.TaskType
	tasks       map[string]model.Task
	volunteers  map[string]model.Volunteer
	assignments map[string]model.Assignment

	subs   map[int]*subscription
	nextID int

	// mirror, when set, receives every change event after local fanout,
	// letting a process republish its feed onto a shared transport.
	mirror func(store.ChangeEvent)
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		events:      make(map[string]model.Event),
		taskTypes:   make(map[string]model.TaskType),
		tasks:       make(map[string]model.Task),
		volunteers:  make(map[string]model.Volunteer),
		assignments: make(map[string]model.Assignment),
		subs:        make(map[int]*subscription),
	}
}

// SetMirror installs a hook invoked with every emitted change event.
func (s *Store) SetMirror(fn func(store.ChangeEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirror = fn
}

func (s *Store) GetEvent(_ context.Context, eventID string) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return model.Event{}, &store.StoreError{Op: "get event", Cause: store.ErrNotFound}
	}
	return e, nil
}

func (s *Store) ListTasks(_ context.Context, eventID string) ([]model.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []model.TaskRecord
	for _, t := range s.tasks {
		if t.EventID != eventID {
			continue
		}
		rec := model.TaskRecord{Task: t}
		if t.TypeID != "" {
			if tt, ok := s.taskTypes[t.TypeID]; ok {
				ttCopy := tt
				rec.Type = &ttCopy
			}
		}
		for _, a := range s.assignments {
			if a.TaskID != t.ID {
				continue
			}
			rec.Assignments = append(rec.Assignments, model.AssignmentRecord{
				Assignment: a,
				Volunteer:  s.volunteers[a.VolunteerID],
			})
		}
		sort.Slice(rec.Assignments, func(i, j int) bool {
			return rec.Assignments[i].ID < rec.Assignments[j].ID
		})
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].Start.Equal(records[j].Start) {
			return records[i].Start.Before(records[j].Start)
		}
		return records[i].ID < records[j].ID
	})

	return records, nil
}

func (s *Store) ListVolunteers(_ context.Context, eventID string) ([]model.Volunteer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var vols []model.Volunteer
	for _, v := range s.volunteers {
		if v.EventID == eventID {
			vols = append(vols, v)
		}
	}
	sort.Slice(vols, func(i, j int) bool { return vols[i].Name < vols[j].Name })

	return vols, nil
}

func (s *Store) InsertEvent(_ context.Context, e model.Event) error {
	if err := model.ValidateEvent(e); err != nil {
		return &store.StoreError{Op: "insert event", Cause: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = e

	return nil
}

func (s *Store) InsertTaskType(_ context.Context, tt model.TaskType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.taskTypes {
		if existing.EventID == tt.EventID && existing.Name == tt.Name {
			return &store.StoreError{Op: "insert task type", Cause: store.ErrNameTaken}
		}
	}
	s.taskTypes[tt.ID] = tt

	return nil
}

func (s *Store) DeleteTaskType(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.taskTypes[id]; !ok {
		return &store.StoreError{Op: "delete task type", Cause: store.ErrNotFound}
	}
	delete(s.taskTypes, id)

	// Tasks keep working untyped.
	for tid, t := range s.tasks {
		if t.TypeID == id {
			t.TypeID = ""
			s.tasks[tid] = t
		}
	}

	return nil
}

func (s *Store) InsertTask(_ context.Context, t model.Task) error {
	s.mu.Lock()
	ev, ok := s.events[t.EventID]
	s.mu.Unlock()
	if !ok {
		return &store.StoreError{Op: "insert task", Cause: store.ErrNotFound}
	}
	if err := model.ValidateTask(t, ev); err != nil {
		return &store.StoreError{Op: "insert task", Cause: err}
	}

	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()

	s.emit(store.ChangeEvent{EventID: t.EventID, TaskID: t.ID, Table: store.TableTasks, Op: store.OpInsert})

	return nil
}

func (s *Store) UpdateTask(_ context.Context, t model.Task) error {
	s.mu.Lock()
	if _, ok := s.tasks[t.ID]; !ok {
		s.mu.Unlock()
		return &store.StoreError{Op: "update task", Cause: store.ErrNotFound}
	}
	ev := s.events[t.EventID]
	s.mu.Unlock()

	if err := model.ValidateTask(t, ev); err != nil {
		return &store.StoreError{Op: "update task", Cause: err}
	}

	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()

	s.emit(store.ChangeEvent{EventID: t.EventID, TaskID: t.ID, Table: store.TableTasks, Op: store.OpUpdate})

	return nil
}

func (s *Store) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return &store.StoreError{Op: "delete task", Cause: store.ErrNotFound}
	}
	delete(s.tasks, id)
	// Deletion cascades to assignments; no soft delete anywhere.
	for aid, a := range s.assignments {
		if a.TaskID == id {
			delete(s.assignments, aid)
		}
	}
	s.mu.Unlock()

	s.emit(store.ChangeEvent{EventID: t.EventID, TaskID: id, Table: store.TableTasks, Op: store.OpDelete})

	return nil
}

func (s *Store) InsertAssignment(_ context.Context, taskID, volunteerID string) (model.Assignment, error) {
	s.mu.Lock()

	t, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return model.Assignment{}, &store.StoreError{Op: "insert assignment", Cause: store.ErrNotFound}
	}
	if _, ok := s.volunteers[volunteerID]; !ok {
		s.mu.Unlock()
		return model.Assignment{}, &store.StoreError{Op: "insert assignment", Cause: store.ErrNotFound}
	}

	count := 0
	for _, a := range s.assignments {
		if a.TaskID != taskID {
			continue
		}
		if a.VolunteerID == volunteerID {
			s.mu.Unlock()
			return model.Assignment{}, &store.StoreError{Op: "insert assignment", Cause: store.ErrDuplicateAssignment}
		}
		count++
	}
	if count >= t.Required {
		s.mu.Unlock()
		return model.Assignment{}, &store.StoreError{Op: "insert assignment", Cause: store.ErrTaskFull}
	}

	a := model.Assignment{ID: uuid.New().String(), TaskID: taskID, VolunteerID: volunteerID}
	s.assignments[a.ID] = a
	s.mu.Unlock()

	s.emit(store.ChangeEvent{EventID: t.EventID, TaskID: taskID, Table: store.TableAssignments, Op: store.OpInsert})

	return a, nil
}

func (s *Store) DeleteAssignment(_ context.Context, id string) error {
	s.mu.Lock()
	a, ok := s.assignments[id]
	if !ok {
		s.mu.Unlock()
		return &store.StoreError{Op: "delete assignment", Cause: store.ErrNotFound}
	}
	delete(s.assignments, id)
	eventID := ""
	taskID := a.TaskID
	if t, ok := s.tasks[a.TaskID]; ok {
		eventID = t.EventID
	}
	s.mu.Unlock()

	s.emit(store.ChangeEvent{EventID: eventID, TaskID: taskID, Table: store.TableAssignments, Op: store.OpDelete})

	return nil
}

func (s *Store) ResolveVolunteer(_ context.Context, eventID, name string) (model.Volunteer, error) {
	name = strings.TrimSpace(name)
	if err := model.ValidateVolunteerName(name); err != nil {
		return model.Volunteer{}, &store.StoreError{Op: "resolve volunteer", Cause: err}
	}

	s.mu.Lock()
	if _, ok := s.events[eventID]; !ok {
		s.mu.Unlock()
		return model.Volunteer{}, &store.StoreError{Op: "resolve volunteer", Cause: store.ErrNotFound}
	}

	for _, v := range s.volunteers {
		if v.EventID == eventID && v.Name == name {
			s.mu.Unlock()
			return v, nil
		}
	}

	v := model.Volunteer{ID: uuid.New().String(), EventID: eventID, Name: name}
	s.volunteers[v.ID] = v
	s.mu.Unlock()

	s.emit(store.ChangeEvent{EventID: eventID, Table: store.TableVolunteers, Op: store.OpInsert})

	return v, nil
}
