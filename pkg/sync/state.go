package sync

// State is the sync controller's signal-source state for one event
// view.
//
// Normal progression:
//
//	StateIdle → StateLive → (quiet timeout) → StatePolling → (feed signal) → StateLive
//
// A controller whose change-feed subscription could not be established
// stays in StatePolling for its whole life.
type State int

const (
	// StateIdle is the state before Start.
	StateIdle State = iota

	// StateLive indicates the change feed is connected and delivering.
	StateLive

	// StatePolling indicates the feed has gone quiet and the store is
	// being polled on a fixed interval.
	StatePolling
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLive:
		return "Live"
	case StatePolling:
		return "Polling"
	default:
		return "Unknown"
	}
}
