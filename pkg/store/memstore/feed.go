package memstore

import (
	"context"
	"sync"

	"github.com/openrota/openrota/pkg/store"
)

// subscription is one registered change-feed listener. Delivery is
// best effort: the channel is buffered and a full buffer drops the
// signal, which is safe because consumers refresh wholesale rather
// than applying events.
type subscription struct {
	id      int
	eventID string
	taskIDs map[string]struct{} // nil = event-scoped, no task filter
	ch      chan store.ChangeEvent

	owner *Store
	once  sync.Once
}

func (sub *subscription) Events() <-chan store.ChangeEvent {
	return sub.ch
}

func (sub *subscription) Unsubscribe() {
	sub.once.Do(func() {
		// Close under the store lock so emit can never send on a
		// closed channel.
		sub.owner.mu.Lock()
		delete(sub.owner.subs, sub.id)
		close(sub.ch)
		sub.owner.mu.Unlock()
	})
}

// Subscribe registers for all changes scoped to the event.
func (s *Store) Subscribe(_ context.Context, eventID string) (store.Subscription, error) {
	return s.subscribe(eventID, nil), nil
}

// SubscribeTasks registers for changes touching the given tasks only.
func (s *Store) SubscribeTasks(_ context.Context, eventID string, taskIDs []string) (store.Subscription, error) {
	ids := make(map[string]struct{}, len(taskIDs))
	for _, id := range taskIDs {
		ids[id] = struct{}{}
	}
	return s.subscribe(eventID, ids), nil
}

func (s *Store) subscribe(eventID string, taskIDs map[string]struct{}) *subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	sub := &subscription{
		id:      s.nextID,
		eventID: eventID,
		taskIDs: taskIDs,
		ch:      make(chan store.ChangeEvent, 32),
		owner:   s,
	}
	s.subs[sub.id] = sub

	return sub
}

// emit fans a change event out to matching subscribers and the mirror.
// Sends happen under the store lock; they never block because the
// channel send is non-blocking.
func (s *Store) emit(ev store.ChangeEvent) {
	s.mu.Lock()
	for _, sub := range s.subs {
		if sub.eventID != ev.EventID {
			continue
		}
		if sub.taskIDs != nil {
			if _, ok := sub.taskIDs[ev.TaskID]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
	mirror := s.mirror
	s.mu.Unlock()

	if mirror != nil {
		mirror(ev)
	}
}
