// Package playback coordinates the single "now playing" track across players
// and drives per-element media lifecycles.
package playback

// State represents the lifecycle state of a media element.
type State int

const (
	StateIdle      State = iota // No source assigned
	StateLoading                // Source assigned, waiting for data
	StateReady                  // Enough data to start playing
	StatePlaying                // Playing
	StatePaused                 // Paused by the user or by end of stream
	StateBuffering              // Stalled waiting for data
	StateErrored                // Load or playback failure
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// transitions lists the legal moves of the media state machine.
// Any state may return to Idle when the element is released.
var transitions = map[State][]State{
	StateIdle:      {StateLoading},
	StateLoading:   {StateReady, StateErrored},
	StateReady:     {StatePlaying, StateLoading, StateErrored},
	StatePlaying:   {StatePaused, StateBuffering, StateErrored, StateLoading},
	StatePaused:    {StatePlaying, StateLoading, StateErrored},
	StateBuffering: {StatePlaying, StatePaused, StateErrored, StateLoading},
	StateErrored:   {StateLoading},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	if from == to || to == StateIdle {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
