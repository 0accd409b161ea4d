// Package presence shares ephemeral cursor positions between viewers
// of the same event. It is best effort and non-authoritative: it never
// touches the task/assignment snapshot, and when its transport is
// unavailable it simply goes dark.
package presence

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/zeebo/xxh3"
)

// Cursor is one viewer's pointer position as percentages of the shared
// viewing surface.
type Cursor struct {
	VolunteerID string  `json:"volunteer_id"`
	Name        string  `json:"name"`
	X           float64 `json:"x"` // 0..100
	Y           float64 `json:"y"` // 0..100
	Color       string  `json:"color"`
}

// Transport carries cursors between clients. Errors are swallowed by
// the broadcaster; a dead transport just means no shared cursors.
type Transport interface {
	PublishCursor(eventID string, c Cursor) error
	SubscribeCursors(eventID string, fn func(Cursor)) (func(), error)
}

// palette is the fixed set of cursor colors. A volunteer id always maps
// to the same color on every client.
var palette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8",
	"#f58231", "#911eb4", "#46f0f0", "#f032e6",
	"#bcf60c", "#008080", "#e6beff", "#9a6324",
}

// ColorFor returns the deterministic palette color for a volunteer id.
func ColorFor(volunteerID string) string {
	return palette[xxh3.HashString(volunteerID)%uint64(len(palette))]
}

const (
	// DefaultThrottle is the minimum gap between outgoing cursor sends.
	DefaultThrottle = 80 * time.Millisecond

	// DefaultStaleAfter is how long a cursor survives without updates.
	DefaultStaleAfter = 6 * time.Second

	// DefaultSweepEvery is the prune sweep cadence.
	DefaultSweepEvery = 2 * time.Second
)

// seen is a received cursor plus its local arrival time.
type seen struct {
	cursor Cursor
	at     time.Time
}

// Broadcaster publishes the local cursor (throttled) and tracks remote
// cursors, pruning stale ones on a periodic sweep.
type Broadcaster struct {
	eventID     string
	volunteerID string
	name        string
	transport   Transport

	throttle   time.Duration
	staleAfter time.Duration
	sweepEvery time.Duration

	cursors *xsync.Map[string, seen]

	mu       sync.Mutex
	lastSend time.Time
	unsub    func()
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBroadcaster creates a broadcaster for one viewer of one event
// using the reference timings.
func NewBroadcaster(eventID, volunteerID, name string, transport Transport) *Broadcaster {
	return &Broadcaster{
		eventID:     eventID,
		volunteerID: volunteerID,
		name:        name,
		transport:   transport,
		throttle:    DefaultThrottle,
		staleAfter:  DefaultStaleAfter,
		sweepEvery:  DefaultSweepEvery,
		cursors:     xsync.NewMap[string, seen](),
		done:        make(chan struct{}),
	}
}

// SetTimings overrides the throttle, staleness and sweep intervals.
// Must be called before Start.
func (b *Broadcaster) SetTimings(throttle, staleAfter, sweepEvery time.Duration) {
	b.throttle = throttle
	b.staleAfter = staleAfter
	b.sweepEvery = sweepEvery
}

// Start subscribes to remote cursors and launches the prune sweep. A
// failing transport subscription is silently ignored; the broadcaster
// then only prunes (an empty map).
func (b *Broadcaster) Start() {
	unsub, err := b.transport.SubscribeCursors(b.eventID, b.receive)
	if err == nil {
		b.mu.Lock()
		b.unsub = unsub
		b.mu.Unlock()
	}

	b.wg.Add(1)
	go b.sweep()
}

// Stop tears down the subscription and the sweep. Idempotent.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.mu.Lock()
		unsub := b.unsub
		b.unsub = nil
		b.mu.Unlock()
		if unsub != nil {
			unsub()
		}
	})
	b.wg.Wait()
}

// Publish sends the local cursor position, dropping sends that arrive
// inside the throttle window and swallowing transport errors.
func (b *Broadcaster) Publish(x, y float64) {
	b.mu.Lock()
	now := time.Now()
	if now.Sub(b.lastSend) < b.throttle {
		b.mu.Unlock()
		return
	}
	b.lastSend = now
	b.mu.Unlock()

	_ = b.transport.PublishCursor(b.eventID, Cursor{
		VolunteerID: b.volunteerID,
		Name:        b.name,
		X:           x,
		Y:           y,
		Color:       ColorFor(b.volunteerID),
	})
}

// Cursors returns the remote cursors currently considered live. The
// local viewer's own cursor is excluded.
func (b *Broadcaster) Cursors() []Cursor {
	var out []Cursor
	b.cursors.Range(func(_ string, v seen) bool {
		out = append(out, v.cursor)
		return true
	})
	return out
}

// receive merges an incoming cursor, stamped with the local clock.
// There is no pointer-leave handling on purpose: the last known
// position is retained until it goes stale and prunes, so cursors
// never jump to the origin.
func (b *Broadcaster) receive(c Cursor) {
	if c.VolunteerID == b.volunteerID {
		return
	}
	b.cursors.Store(c.VolunteerID, seen{cursor: c, at: time.Now()})
}

// sweep prunes stale cursors on a fixed cadence.
func (b *Broadcaster) sweep() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-b.staleAfter)
			b.cursors.Range(func(id string, v seen) bool {
				if v.at.Before(cutoff) {
					b.cursors.Delete(id)
				}
				return true
			})
		}
	}
}
