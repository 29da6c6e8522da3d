package playback

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/sacraltrack/playcore/internal/app/apperr"
	"github.com/sacraltrack/playcore/internal/domain/track"
)

// DefaultStartDelay gives a freshly mounted media controller time to
// initialize before the play intent reaches it.
const DefaultStartDelay = 100 * time.Millisecond

// SessionOption configures a TrackSession.
type SessionOption func(*TrackSession)

// WithStartDelay sets the delay between selecting a new track and starting it.
func WithStartDelay(d time.Duration) SessionOption {
	return func(s *TrackSession) {
		s.startDelay = d
	}
}

// WithSessionClock sets the clock used for the start delay.
func WithSessionClock(clk clock.Clock) SessionOption {
	return func(s *TrackSession) {
		s.clock = clk
	}
}

// TrackSession binds one player instance to a track and derives its playing
// state from the shared registry.
type TrackSession struct {
	mu sync.Mutex

	registry *Registry
	meta     track.Meta
	lastURL  string // Last non-empty stream URL, survives a transient empty prop

	startDelay time.Duration
	clock      clock.Clock
	startTimer *clock.Timer

	// Attached controller
	ctrl          *MediaController
	unsubscribe   func()
	removeFailure func()
	wasPlaying    bool
	lastSeq       uint64

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewTrackSession creates a session for meta on registry.
func NewTrackSession(registry *Registry, meta track.Meta, opts ...SessionOption) *TrackSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &TrackSession{
		registry:   registry,
		meta:       meta,
		lastURL:    meta.AudioURL,
		startDelay: DefaultStartDelay,
		clock:      clock.New(),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TrackID returns the bound track id.
func (s *TrackSession) TrackID() track.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.ID
}

// Meta returns the bound metadata, with the cached stream URL filled in.
func (s *TrackSession) Meta() track.Meta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.WithAudioURL(s.streamURLLocked())
}

// StreamURL returns the stream URL to play, falling back to the last known one.
func (s *TrackSession) StreamURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamURLLocked()
}

// IsActive reports whether this session's track is the selected one.
func (s *TrackSession) IsActive() bool {
	return s.registry.Snapshot().IsActive(s.TrackID())
}

// IsPlaying reports whether this session's track is selected and playing.
func (s *TrackSession) IsPlaying() bool {
	return s.registry.Snapshot().IsPlayingTrack(s.TrackID())
}

// HandlePlay makes this session the one playing. It returns false when the
// request is ignored (no stream URL or closed session).
func (s *TrackSession) HandlePlay() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	url := s.streamURLLocked()
	if url == "" {
		id := s.meta.ID
		s.mu.Unlock()
		zlog.Warn().Msgf("playback: ignoring play request without stream url: track=%s", id)
		return false
	}
	meta := s.meta.WithAudioURL(url)
	s.stopStartTimerLocked()
	s.mu.Unlock()

	snap := s.registry.Snapshot()
	if snap.CurrentTrackID == meta.ID {
		s.registry.PlayIfCurrent(meta.ID)
		return true
	}
	if snap.CurrentTrackID != "" {
		s.registry.StopAll()
	}
	s.registry.Select(meta)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if s.startDelay <= 0 {
		s.mu.Unlock()
		s.registry.PlayIfCurrent(meta.ID)
		return true
	}
	s.startTimer = s.clock.AfterFunc(s.startDelay, func() {
		s.registry.PlayIfCurrent(meta.ID)
	})
	s.mu.Unlock()
	return true
}

// HandlePause pauses playback if this session is the one playing.
// Otherwise it only cancels a pending delayed start.
func (s *TrackSession) HandlePause() {
	s.mu.Lock()
	s.stopStartTimerLocked()
	id := s.meta.ID
	s.mu.Unlock()

	s.registry.PauseIfCurrent(id)
}

// UpdateMeta refreshes the bound metadata. An empty stream URL keeps the
// cached one; a new URL is forwarded to the attached controller.
func (s *TrackSession) UpdateMeta(meta track.Meta) {
	s.mu.Lock()
	prev := s.streamURLLocked()
	s.meta = meta
	if meta.AudioURL != "" {
		s.lastURL = meta.AudioURL
	}
	next := s.streamURLLocked()
	ctrl := s.ctrl
	s.mu.Unlock()

	if ctrl != nil && next != prev {
		ctrl.SetSource(next)
	}
}

// Attach hands ctrl to the session. The session drives it from registry
// changes and closes it with the session.
func (s *TrackSession) Attach(ctrl *MediaController) {
	s.mu.Lock()
	if s.closed || s.ctrl != nil {
		s.mu.Unlock()
		return
	}
	s.ctrl = ctrl
	url := s.streamURLLocked()
	s.mu.Unlock()

	ctrl.SetSource(url)

	removeFailure := ctrl.OnFailure(s.failed)
	unsubscribe := s.registry.Subscribe(func(e Event) {
		s.sync(e.Snapshot)
	})
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.removeFailure = removeFailure
	s.mu.Unlock()

	s.sync(s.registry.Snapshot())
}

// Controller returns the attached controller, if any.
func (s *TrackSession) Controller() *MediaController {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl
}

// Close cancels a pending start, detaches from the registry and releases
// the attached controller.
func (s *TrackSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopStartTimerLocked()
	unsubscribe := s.unsubscribe
	removeFailure := s.removeFailure
	ctrl := s.ctrl
	s.unsubscribe = nil
	s.removeFailure = nil
	s.ctrl = nil
	s.mu.Unlock()

	s.cancel()
	if unsubscribe != nil {
		unsubscribe()
	}
	if removeFailure != nil {
		removeFailure()
	}
	if ctrl != nil {
		ctrl.Close()
	}
}

// sync starts or pauses the attached controller on edges of the derived
// playing state.
func (s *TrackSession) sync(snap Snapshot) {
	s.mu.Lock()
	if s.closed || s.ctrl == nil || snap.Seq < s.lastSeq {
		s.mu.Unlock()
		return
	}
	s.lastSeq = snap.Seq
	id := s.meta.ID
	playing := snap.IsPlayingTrack(id)
	was := s.wasPlaying
	s.wasPlaying = playing
	ctrl := s.ctrl
	ctx := s.ctx
	s.mu.Unlock()

	switch {
	case playing && !was:
		go func() {
			err := ctrl.Play(ctx)
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed) ||
				errors.Is(err, errPlayAborted) || errors.Is(err, errSourceReplaced) ||
				errors.Is(err, errPlaySuperseded) || errors.Is(err, apperr.ErrPlaybackFailed) {
				// Terminal failures arrive through failed.
				return
			}
			zlog.Warn().Msgf("playback: track %s stopped after playback error: %v", id, err)
			s.registry.PauseIfCurrent(id)
		}()
	case !playing && was:
		ctrl.Pause()
	}
}

// failed clears the playing flag once the controller has given up, including
// when retries ran out after the Play call that started playback returned.
func (s *TrackSession) failed(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	id := s.meta.ID
	s.mu.Unlock()

	if s.registry.PauseIfCurrent(id) {
		zlog.Warn().Msgf("playback: track %s stopped after playback error: %v", id, err)
	}
}

func (s *TrackSession) streamURLLocked() string {
	if s.meta.AudioURL != "" {
		return s.meta.AudioURL
	}
	return s.lastURL
}

func (s *TrackSession) stopStartTimerLocked() {
	if s.startTimer != nil {
		s.startTimer.Stop()
		s.startTimer = nil
	}
}
