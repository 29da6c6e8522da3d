package playback

import "context"

// ReadyState mirrors the readiness levels reported by a media element.
type ReadyState int

const (
	HaveNothing     ReadyState = iota // No information
	HaveMetadata                      // Duration known
	HaveCurrentData                   // Data for the current position
	HaveFutureData                    // Data for a little ahead
	HaveEnoughData                    // Can play through
)

// TimeRange is a contiguous buffered interval in seconds.
type TimeRange struct {
	Start float64
	End   float64
}

// MediaEventType represents an event emitted by a media element.
type MediaEventType int

const (
	MediaLoadedMetadata MediaEventType = iota
	MediaTimeUpdate
	MediaEnded
	MediaPlay
	MediaPause
	MediaWaiting
	MediaCanPlay
	MediaError
	MediaVolumeChange
	MediaRateChange
)

// String returns the platform event name.
func (t MediaEventType) String() string {
	switch t {
	case MediaLoadedMetadata:
		return "loadedmetadata"
	case MediaTimeUpdate:
		return "timeupdate"
	case MediaEnded:
		return "ended"
	case MediaPlay:
		return "play"
	case MediaPause:
		return "pause"
	case MediaWaiting:
		return "waiting"
	case MediaCanPlay:
		return "canplay"
	case MediaError:
		return "error"
	case MediaVolumeChange:
		return "volumechange"
	case MediaRateChange:
		return "ratechange"
	default:
		return "unknown"
	}
}

// MediaEvent is a single notification from a media element.
type MediaEvent struct {
	Type MediaEventType
	Err  error // Set for MediaError
}

// MediaElement is the platform audio element the controller drives.
// Decoding and segment fetching are the element's business.
type MediaElement interface {
	Load(src string)
	Play(ctx context.Context) error
	Pause()
	CurrentTime() float64
	SetCurrentTime(sec float64)
	Duration() float64
	Volume() float64
	SetVolume(v float64)
	PlaybackRate() float64
	SetPlaybackRate(r float64)
	Buffered() []TimeRange
	ReadyState() ReadyState
	// On registers handler for every event and returns its remover.
	On(handler func(MediaEvent)) (remove func())
	// Release frees the element. It is not used afterwards.
	Release()
}

// ElementFactory creates a fresh media element.
type ElementFactory func() MediaElement
