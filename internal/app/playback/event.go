package playback

import "github.com/sacraltrack/playcore/internal/domain/track"

// EventType represents a registry event type.
type EventType int

const (
	EventSelected         EventType = iota // A track was selected
	EventPlayStateChanged                  // Global playing flag flipped
	EventStopped                           // All playback stopped, selection kept
	EventReset                             // Registry torn down
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventSelected:
		return "selected"
	case EventPlayStateChanged:
		return "play_state_changed"
	case EventStopped:
		return "stopped"
	case EventReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent view of the registry.
type Snapshot struct {
	CurrentTrackID track.ID    `json:"current_track_id,omitempty"`
	CurrentTrack   *track.Meta `json:"current_track,omitempty"`
	IsPlaying      bool        `json:"is_playing"`
	Seq            uint64      `json:"seq"` // Increases by one per mutation
}

// IsActive reports whether id is the selected track in this snapshot.
func (s Snapshot) IsActive(id track.ID) bool {
	return s.CurrentTrackID != "" && s.CurrentTrackID == id
}

// IsPlayingTrack reports whether id is selected and playing in this snapshot.
func (s Snapshot) IsPlayingTrack(id track.ID) bool {
	return s.IsActive(id) && s.IsPlaying
}

// Event represents a registry mutation.
type Event struct {
	Type     EventType
	Snapshot Snapshot // State after the mutation
}
