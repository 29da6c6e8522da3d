package playback

import (
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/sacraltrack/playcore/internal/domain/track"
)

// Registry holds the single selected track and the global playing flag
// shared by every player in one scope.
//
// Only Select, TogglePlayPause, PlayIfCurrent, PauseIfCurrent, StopAll and
// Reset write it.
// Observers are called synchronously by the mutating goroutine once the
// mutation is applied; Snapshot.Seq lets them drop views that arrive late
// when mutations race.
type Registry struct {
	mu sync.RWMutex

	currentTrackID track.ID
	currentTrack   *track.Meta
	isPlaying      bool
	seq            uint64

	observersMu sync.RWMutex
	observers   []observer
	nextID      uint64
}

type observer struct {
	id uint64
	fn func(Event)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Select makes meta the current track. The playing flag is left as is;
// playback start is a separate transition.
func (r *Registry) Select(meta track.Meta) {
	r.mu.Lock()
	m := meta
	r.currentTrackID = meta.ID
	r.currentTrack = &m
	if r.currentTrackID == "" {
		r.isPlaying = false
	}
	snap := r.commitLocked()
	r.mu.Unlock()

	zlog.Debug().Msgf("playback: selected track=%s name=%q", meta.ID, meta.Name)
	r.notify(Event{Type: EventSelected, Snapshot: snap})
}

// TogglePlayPause flips the playing flag. With nothing selected the flag
// stays false, so no session can observe a playing state.
func (r *Registry) TogglePlayPause() {
	r.mu.Lock()
	r.isPlaying = !r.isPlaying && r.currentTrackID != ""
	snap := r.commitLocked()
	r.mu.Unlock()

	r.notify(Event{Type: EventPlayStateChanged, Snapshot: snap})
}

// PlayIfCurrent sets the playing flag if id is the selected track and it is
// not already playing. It returns true if the flag was flipped.
func (r *Registry) PlayIfCurrent(id track.ID) bool {
	r.mu.Lock()
	if id == "" || r.currentTrackID != id || r.isPlaying {
		r.mu.Unlock()
		return false
	}
	r.isPlaying = true
	snap := r.commitLocked()
	r.mu.Unlock()

	r.notify(Event{Type: EventPlayStateChanged, Snapshot: snap})
	return true
}

// PauseIfCurrent clears the playing flag if id is the selected, playing
// track. It returns true if the flag was flipped.
func (r *Registry) PauseIfCurrent(id track.ID) bool {
	r.mu.Lock()
	if id == "" || r.currentTrackID != id || !r.isPlaying {
		r.mu.Unlock()
		return false
	}
	r.isPlaying = false
	snap := r.commitLocked()
	r.mu.Unlock()

	r.notify(Event{Type: EventPlayStateChanged, Snapshot: snap})
	return true
}

// StopAll pauses playback. The selection is kept so the last track stays
// visually selected.
func (r *Registry) StopAll() {
	r.mu.Lock()
	r.isPlaying = false
	snap := r.commitLocked()
	r.mu.Unlock()

	r.notify(Event{Type: EventStopped, Snapshot: snap})
}

// Reset clears the registry. Called when the owning scope is torn down.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.currentTrackID = ""
	r.currentTrack = nil
	r.isPlaying = false
	snap := r.commitLocked()
	r.mu.Unlock()

	r.notify(Event{Type: EventReset, Snapshot: snap})
}

// Snapshot returns a consistent view of the registry.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Subscribe registers fn for every mutation and returns its remover.
// Observers are called in registration order. fn must not block; it runs
// on the mutating goroutine.
func (r *Registry) Subscribe(fn func(Event)) func() {
	r.observersMu.Lock()
	defer r.observersMu.Unlock()

	id := r.nextID
	r.nextID++
	r.observers = append(r.observers, observer{id: id, fn: fn})

	return func() {
		r.observersMu.Lock()
		defer r.observersMu.Unlock()
		for i, o := range r.observers {
			if o.id == id {
				r.observers = append(r.observers[:i:i], r.observers[i+1:]...)
				return
			}
		}
	}
}

// ObserverCount returns the number of registered observers.
func (r *Registry) ObserverCount() int {
	r.observersMu.RLock()
	defer r.observersMu.RUnlock()
	return len(r.observers)
}

// commitLocked bumps the sequence number and returns the new snapshot.
// Must be called with r.mu held.
func (r *Registry) commitLocked() Snapshot {
	r.seq++
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() Snapshot {
	snap := Snapshot{
		CurrentTrackID: r.currentTrackID,
		IsPlaying:      r.isPlaying,
		Seq:            r.seq,
	}
	if r.currentTrack != nil {
		m := *r.currentTrack
		snap.CurrentTrack = &m
	}
	return snap
}

func (r *Registry) notify(e Event) {
	r.observersMu.RLock()
	fns := make([]func(Event), 0, len(r.observers))
	for _, o := range r.observers {
		fns = append(fns, o.fn)
	}
	r.observersMu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}
