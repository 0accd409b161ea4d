package natsbus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openrota/openrota/pkg/presence"
	"github.com/openrota/openrota/pkg/store"
	"github.com/openrota/openrota/pkg/testutil"
)

func twoBuses(t *testing.T) (*Bus, *Bus) {
	t.Helper()
	ns, nc1 := testutil.StartEmbeddedNATS(t)
	nc2 := testutil.Conn(t, ns.ClientURL())
	return New(nc1, zap.NewNop()), New(nc2, zap.NewNop())
}

func waitEvent(t *testing.T, sub store.Subscription) store.ChangeEvent {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
		return store.ChangeEvent{}
	}
}

func TestBus_ChangeFeedRoundTrip(t *testing.T) {
	publisher, subscriber := twoBuses(t)

	sub, err := subscriber.Subscribe(context.Background(), "e1")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	sent := store.ChangeEvent{
		EventID: "e1", TaskID: "t1",
		Table: store.TableAssignments, Op: store.OpInsert,
	}
	require.NoError(t, publisher.PublishChange(sent))

	assert.Equal(t, sent, waitEvent(t, sub))
}

func TestBus_ChangeFeedIsEventScoped(t *testing.T) {
	publisher, subscriber := twoBuses(t)

	sub, err := subscriber.Subscribe(context.Background(), "e1")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, publisher.PublishChange(store.ChangeEvent{
		EventID: "other", TaskID: "t1", Table: store.TableTasks, Op: store.OpInsert,
	}))
	require.NoError(t, publisher.PublishChange(store.ChangeEvent{
		EventID: "e1", Table: store.TableVolunteers, Op: store.OpInsert,
	}))

	got := waitEvent(t, sub)
	assert.Equal(t, "e1", got.EventID)
	assert.Equal(t, store.TableVolunteers, got.Table)
}

func TestBus_TaskScopedSubscription(t *testing.T) {
	publisher, subscriber := twoBuses(t)

	sub, err := subscriber.SubscribeTasks(context.Background(), "e1", []string{"t1", "t2"})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// Noise for an undisplayed task, then a hit.
	require.NoError(t, publisher.PublishChange(store.ChangeEvent{
		EventID: "e1", TaskID: "t9", Table: store.TableAssignments, Op: store.OpInsert,
	}))
	require.NoError(t, publisher.PublishChange(store.ChangeEvent{
		EventID: "e1", TaskID: "t2", Table: store.TableAssignments, Op: store.OpDelete,
	}))

	got := waitEvent(t, sub)
	assert.Equal(t, "t2", got.TaskID)
}

func TestBus_TaskScopedRequiresIDs(t *testing.T) {
	bus, _ := twoBuses(t)
	_, err := bus.SubscribeTasks(context.Background(), "e1", nil)
	assert.Error(t, err)
}

func TestBus_RefreshSuppressesOwnEcho(t *testing.T) {
	a, b := twoBuses(t)

	var aGot, bGot atomic.Int32
	unsubA, err := a.SubscribeRefresh("e1", func() { aGot.Add(1) })
	require.NoError(t, err)
	defer unsubA()
	unsubB, err := b.SubscribeRefresh("e1", func() { bGot.Add(1) })
	require.NoError(t, err)
	defer unsubB()

	// The subscriptions ride separate connections; flush so their
	// interest is registered server-side before the nudge is sent.
	require.NoError(t, a.conn.Flush())
	require.NoError(t, b.conn.Flush())

	require.NoError(t, a.PublishRefresh("e1"))

	assert.Eventually(t, func() bool { return bGot.Load() == 1 }, 2*time.Second, 10*time.Millisecond,
		"the sibling client must be nudged")
	assert.Zero(t, aGot.Load(), "a client never refreshes off its own nudge")
}

func TestBus_CursorRoundTrip(t *testing.T) {
	a, b := twoBuses(t)

	received := make(chan presence.Cursor, 1)
	unsub, err := b.SubscribeCursors("e1", func(c presence.Cursor) { received <- c })
	require.NoError(t, err)
	defer unsub()

	sent := presence.Cursor{VolunteerID: "v1", Name: "Amy", X: 12.5, Y: 80, Color: "#3cb44b"}
	require.NoError(t, a.PublishCursor("e1", sent))

	select {
	case got := <-received:
		assert.Equal(t, sent, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cursor")
	}
}

func TestBus_UnsubscribeIdempotent(t *testing.T) {
	publisher, subscriber := twoBuses(t)

	sub, err := subscriber.Subscribe(context.Background(), "e1")
	require.NoError(t, err)

	sub.Unsubscribe()
	assert.NotPanics(t, sub.Unsubscribe)

	// Publishing after teardown must not panic anything.
	assert.NoError(t, publisher.PublishChange(store.ChangeEvent{
		EventID: "e1", Table: store.TableTasks, Op: store.OpInsert,
	}))

	unsub, err := subscriber.SubscribeRefresh("e1", func() {})
	require.NoError(t, err)
	unsub()
	assert.NotPanics(t, unsub)
}

// The bus must satisfy the engine-facing interfaces.
var (
	_ store.ChangeFeed   = (*Bus)(nil)
	_ presence.Transport = (*Bus)(nil)
)
