// Package natsbus carries the collaborative signals (change feed,
// cross-client refresh nudges, presence cursors) over NATS core
// subjects. The engine only depends on the store and presence
// interfaces; this package is the reference transport behind them.
//
// Subject layout, per event:
//
//	openrota.event.<eventID>.change.<table>          record-level change, no task
//	openrota.event.<eventID>.change.<table>.<taskID> change touching one task
//	openrota.event.<eventID>.refresh                 refresh nudge
//	openrota.event.<eventID>.cursor                  presence cursor
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/openrota/openrota/pkg/presence"
	"github.com/openrota/openrota/pkg/store"
)

// Bus is a NATS-backed signal transport. One Bus serves any number of
// events over a single connection.
type Bus struct {
	conn   *nats.Conn
	origin string // suppresses echo of this client's own refresh nudges
	logger *zap.Logger
}

// New creates a Bus on an established connection.
func New(conn *nats.Conn, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		conn:   conn,
		origin: uuid.New().String(),
		logger: logger,
	}
}

func changeSubject(ev store.ChangeEvent) string {
	if ev.TaskID == "" {
		return fmt.Sprintf("openrota.event.%s.change.%s", ev.EventID, ev.Table)
	}
	return fmt.Sprintf("openrota.event.%s.change.%s.%s", ev.EventID, ev.Table, ev.TaskID)
}

// PublishChange relays one change event onto the shared feed. Stores
// that are process-local (memstore) use this as their mirror so sibling
// processes see their mutations.
func (b *Bus) PublishChange(ev store.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode change event: %w", err)
	}
	return b.conn.Publish(changeSubject(ev), data)
}

// feedSub adapts one or more NATS subscriptions to store.Subscription.
type feedSub struct {
	subs []*nats.Subscription
	ch   chan store.ChangeEvent

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func (f *feedSub) Events() <-chan store.ChangeEvent { return f.ch }

func (f *feedSub) Unsubscribe() {
	f.once.Do(func() {
		for _, s := range f.subs {
			_ = s.Unsubscribe()
		}
		f.mu.Lock()
		f.closed = true
		close(f.ch)
		f.mu.Unlock()
	})
}

// deliver decodes and forwards a change message, dropping it when the
// consumer is slow or the subscription is already torn down.
func (f *feedSub) deliver(msg *nats.Msg) {
	var ev store.ChangeEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- ev:
	default:
	}
}

// Subscribe implements store.ChangeFeed for all changes of one event.
func (b *Bus) Subscribe(_ context.Context, eventID string) (store.Subscription, error) {
	f := &feedSub{ch: make(chan store.ChangeEvent, 32)}

	subject := fmt.Sprintf("openrota.event.%s.change.>", eventID)
	sub, err := b.conn.Subscribe(subject, f.deliver)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to change feed: %w", err)
	}
	f.subs = append(f.subs, sub)

	return f, nil
}

// SubscribeTasks implements store.ChangeFeed narrowed to a task-id
// set, one subject subscription per task.
func (b *Bus) SubscribeTasks(_ context.Context, eventID string, taskIDs []string) (store.Subscription, error) {
	if len(taskIDs) == 0 {
		return nil, fmt.Errorf("task subscription requires at least one task id")
	}

	f := &feedSub{ch: make(chan store.ChangeEvent, 32)}
	for _, taskID := range taskIDs {
		subject := fmt.Sprintf("openrota.event.%s.change.*.%s", eventID, taskID)
		sub, err := b.conn.Subscribe(subject, f.deliver)
		if err != nil {
			f.Unsubscribe()
			return nil, fmt.Errorf("failed to subscribe to task %s: %w", taskID, err)
		}
		f.subs = append(f.subs, sub)
	}

	return f, nil
}

// refreshMsg carries the origin id so a client does not refresh in
// response to its own nudge.
type refreshMsg struct {
	Origin string `json:"origin"`
}

// PublishRefresh implements sync.RefreshBus.
func (b *Bus) PublishRefresh(eventID string) error {
	data, err := json.Marshal(refreshMsg{Origin: b.origin})
	if err != nil {
		return fmt.Errorf("failed to encode refresh: %w", err)
	}
	subject := fmt.Sprintf("openrota.event.%s.refresh", eventID)
	return b.conn.Publish(subject, data)
}

// SubscribeRefresh implements sync.RefreshBus. The returned teardown
// is idempotent.
func (b *Bus) SubscribeRefresh(eventID string, fn func()) (func(), error) {
	subject := fmt.Sprintf("openrota.event.%s.refresh", eventID)
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var m refreshMsg
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			b.logger.Debug("dropping malformed refresh message", zap.Error(err))
			return
		}
		if m.Origin == b.origin {
			return
		}
		fn()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to refresh: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() { _ = sub.Unsubscribe() })
	}, nil
}

// PublishCursor implements presence.Transport.
func (b *Bus) PublishCursor(eventID string, c presence.Cursor) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode cursor: %w", err)
	}
	subject := fmt.Sprintf("openrota.event.%s.cursor", eventID)
	return b.conn.Publish(subject, data)
}

// SubscribeCursors implements presence.Transport.
func (b *Bus) SubscribeCursors(eventID string, fn func(presence.Cursor)) (func(), error) {
	subject := fmt.Sprintf("openrota.event.%s.cursor", eventID)
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var c presence.Cursor
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			b.logger.Debug("dropping malformed cursor message", zap.Error(err))
			return
		}
		fn(c)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to cursors: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() { _ = sub.Unsubscribe() })
	}, nil
}
