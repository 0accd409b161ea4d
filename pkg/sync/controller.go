// Package sync keeps one event's snapshot eventually consistent with
// the store. Three redundant signal sources (change feed, cross-client
// refresh broadcast, polling fallback) are merged into a single
// debounced wholesale refresh, so missed or duplicated signals can
// delay convergence but never corrupt state.
package sync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openrota/openrota/pkg/core/model"
	"github.com/openrota/openrota/pkg/store"
)

// RefreshBus carries best-effort "something changed, refresh now"
// signals between clients of the same event, shortening convergence
// latency compared to waiting on the change feed.
type RefreshBus interface {
	// PublishRefresh nudges every other subscribed client.
	PublishRefresh(eventID string) error

	// SubscribeRefresh registers fn to run on each incoming nudge. The
	// returned function tears the registration down and is idempotent.
	SubscribeRefresh(eventID string, fn func()) (func(), error)
}

// Controller owns the authoritative in-memory snapshot for one event
// view. Nothing else mutates the snapshot: all writes go through the
// store and come back via refresh, and the latest full store read
// always wins.
type Controller struct {
	eventID string
	reader  store.Reader
	feed    store.ChangeFeed // nil = polling only
	bus     RefreshBus       // nil = no cross-client nudges
	opts    options
	logger  *zap.Logger

	mu          sync.Mutex
	snap        *model.Snapshot
	state       State
	lastSignal  time.Time // last change-feed signal
	lastPoll    time.Time
	lastRefresh time.Time
	trailing    *time.Timer // pending coalesced refresh, nil if none

	eventSub store.Subscription
	taskSub  store.Subscription
	busUnsub func()

	runCtx   context.Context
	done     chan struct{}
	stopOnce sync.Once
	started  bool
	wg       sync.WaitGroup
}

// New creates a controller for the given event. The feed and bus may be
// nil; the controller degrades to polling-only without them.
func New(eventID string, reader store.Reader, feed store.ChangeFeed, bus RefreshBus, opts ...Option) *Controller {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Controller{
		eventID: eventID,
		reader:  reader,
		feed:    feed,
		bus:     bus,
		opts:    o,
		logger:  o.logger,
		state:   StateIdle,
		done:    make(chan struct{}),
	}
}

// Start performs the initial refresh, connects the signal sources and
// launches the watcher. Subscription failures are not errors: the
// controller silently falls back to polling, per the transport error
// policy. Start returns an error only if the initial store read fails.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.runCtx = ctx
	c.mu.Unlock()

	if err := c.Refresh(ctx); err != nil {
		return err
	}

	now := time.Now()
	c.mu.Lock()
	c.lastSignal = now
	c.lastPoll = now
	c.state = StatePolling // until the feed proves itself
	c.mu.Unlock()

	if c.feed != nil {
		sub, err := c.feed.Subscribe(ctx, c.eventID)
		if err != nil {
			c.logger.Debug("change feed unavailable, polling only",
				zap.String("event_id", c.eventID), zap.Error(err))
		} else {
			c.mu.Lock()
			c.eventSub = sub
			c.state = StateLive
			c.mu.Unlock()
			c.wg.Add(1)
			go c.consume(sub)
		}
	}

	if c.bus != nil {
		unsub, err := c.bus.SubscribeRefresh(c.eventID, c.requestRefresh)
		if err != nil {
			c.logger.Debug("refresh bus unavailable",
				zap.String("event_id", c.eventID), zap.Error(err))
		} else {
			c.mu.Lock()
			c.busUnsub = unsub
			c.mu.Unlock()
		}
	}

	c.wg.Add(1)
	go c.watch()

	return nil
}

// Stop tears down subscriptions and timers. It is idempotent and safe
// to call multiple times; in-flight store reads are not cancelled, they
// simply complete into a discarded snapshot.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		if c.trailing != nil {
			c.trailing.Stop()
			c.trailing = nil
		}
		eventSub, taskSub, busUnsub := c.eventSub, c.taskSub, c.busUnsub
		c.eventSub, c.taskSub, c.busUnsub = nil, nil, nil
		c.state = StateIdle
		c.mu.Unlock()

		if eventSub != nil {
			eventSub.Unsubscribe()
		}
		if taskSub != nil {
			taskSub.Unsubscribe()
		}
		if busUnsub != nil {
			busUnsub()
		}
	})
	c.wg.Wait()
}

// State returns the current signal-source state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the latest snapshot, or nil before the first
// successful refresh.
func (c *Controller) Snapshot() *model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Refresh rebuilds the snapshot wholesale from the store and hands it
// to the OnSnapshot hook. Partial patching from change events is
// deliberately not supported.
func (c *Controller) Refresh(ctx context.Context) error {
	event, err := c.reader.GetEvent(ctx, c.eventID)
	if err != nil {
		return err
	}
	tasks, err := c.reader.ListTasks(ctx, c.eventID)
	if err != nil {
		return err
	}
	volunteers, err := c.reader.ListVolunteers(ctx, c.eventID)
	if err != nil {
		return err
	}

	snap := &model.Snapshot{
		Event:      event,
		Tasks:      tasks,
		Volunteers: volunteers,
		FetchedAt:  time.Now(),
	}

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	if c.opts.onSnapshot != nil {
		c.opts.onSnapshot(snap)
	}

	return nil
}

// NotifyLocalMutation is called by the view layer after one of its own
// store writes succeeds. The local view refreshes immediately
// (optimistic local ordering) and other clients get nudged over the
// bus; the next feed-driven refresh reconciles everyone with the
// authoritative store state.
func (c *Controller) NotifyLocalMutation() {
	c.requestRefresh()
	if c.bus != nil {
		if err := c.bus.PublishRefresh(c.eventID); err != nil {
			c.logger.Debug("refresh broadcast failed", zap.Error(err))
		}
	}
}

// SetVisibleTasks replaces the narrow task-scoped subscription with one
// covering the given ids. Zero ids means no narrow subscription. The
// previous subscription is always torn down first.
func (c *Controller) SetVisibleTasks(taskIDs []string) {
	c.mu.Lock()
	old := c.taskSub
	c.taskSub = nil
	c.mu.Unlock()

	if old != nil {
		old.Unsubscribe()
	}

	if c.feed == nil || len(taskIDs) == 0 {
		return
	}

	c.mu.Lock()
	ctx := c.runCtx
	started := c.started
	c.mu.Unlock()
	if !started {
		return
	}

	sub, err := c.feed.SubscribeTasks(ctx, c.eventID, taskIDs)
	if err != nil {
		c.logger.Debug("task subscription unavailable",
			zap.Int("task_count", len(taskIDs)), zap.Error(err))
		return
	}

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		sub.Unsubscribe()
		return
	default:
	}
	c.taskSub = sub
	c.mu.Unlock()

	c.wg.Add(1)
	go c.consume(sub)
}

// consume drains one change-feed subscription, treating every event as
// an opaque "something changed" signal.
func (c *Controller) consume(sub store.Subscription) {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
			c.onFeedSignal()
		}
	}
}

// onFeedSignal records feed liveness, leaves polling mode if active,
// and requests a refresh.
func (c *Controller) onFeedSignal() {
	c.mu.Lock()
	c.lastSignal = time.Now()
	if c.state == StatePolling && c.eventSub != nil {
		c.state = StateLive
		c.logger.Debug("change feed resumed, polling stopped",
			zap.String("event_id", c.eventID))
	}
	c.mu.Unlock()

	c.requestRefresh()
}

// watch runs the quiet-period and poll timers on a single ticker. The
// first evaluation happens one tick after Start, which together with
// the polling-until-live initial state covers a feed that never
// delivers.
func (c *Controller) watch() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.watchTick)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		now := time.Now()
		poll := false

		c.mu.Lock()
		switch c.state {
		case StateLive:
			if now.Sub(c.lastSignal) >= c.opts.quietPeriod {
				c.state = StatePolling
				c.lastPoll = now
				poll = true
				c.logger.Debug("change feed quiet, falling back to polling",
					zap.String("event_id", c.eventID),
					zap.Duration("quiet", now.Sub(c.lastSignal)))
			}
		case StatePolling:
			if now.Sub(c.lastPoll) >= c.opts.pollInterval {
				c.lastPoll = now
				poll = true
			}
		}
		c.mu.Unlock()

		if poll {
			c.requestRefresh()
		}
	}
}

// requestRefresh coalesces refresh triggers: at most one refresh per
// cooldown window, with extra triggers folded into a single trailing
// refresh at window end.
func (c *Controller) requestRefresh() {
	c.mu.Lock()

	select {
	case <-c.done:
		c.mu.Unlock()
		return
	default:
	}

	now := time.Now()
	if c.trailing == nil && now.Sub(c.lastRefresh) >= c.opts.cooldown {
		c.lastRefresh = now
		ctx := c.runCtx
		c.mu.Unlock()
		c.refresh(ctx)
		return
	}

	// Within the window: replace any scheduled trailing refresh with
	// one at window end.
	delay := c.lastRefresh.Add(c.opts.cooldown).Sub(now)
	if delay < 0 {
		delay = 0
	}
	if c.trailing != nil {
		c.trailing.Stop()
	}
	c.trailing = time.AfterFunc(delay, c.fireTrailing)
	c.mu.Unlock()
}

func (c *Controller) fireTrailing() {
	c.mu.Lock()
	c.trailing = nil
	select {
	case <-c.done:
		c.mu.Unlock()
		return
	default:
	}
	c.lastRefresh = time.Now()
	ctx := c.runCtx
	c.mu.Unlock()

	c.refresh(ctx)
}

// refresh runs a wholesale refresh, logging failures instead of
// propagating them; the stale snapshot stays in place until the next
// signal.
func (c *Controller) refresh(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("snapshot refresh failed",
			zap.String("event_id", c.eventID), zap.Error(err))
	}
}
