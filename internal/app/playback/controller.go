package playback

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	zlog "github.com/rs/zerolog/log"

	"github.com/sacraltrack/playcore/internal/app/apperr"
)

// Errors
var (
	ErrNoSource = errors.New("no media source")
	ErrClosed   = errors.New("media controller closed")

	errPlayAborted    = errors.New("play aborted by pause")
	errSourceReplaced = errors.New("media source replaced")
	errPlaySuperseded = errors.New("play superseded by retry")
)

// MediaConfig holds media controller configuration.
type MediaConfig struct {
	LoadTimeout      time.Duration `default:"10s"`   // Readiness wait before a play attempt fails
	MaxRetryAttempts int           `default:"3"`     // Automatic retries before an error is terminal
	RetryDelay       time.Duration `default:"1s"`    // Multiplied by the attempt number
	BufferLookahead  time.Duration `default:"5s"`    // Buffered-ahead time that counts as 100% health
	SampleInterval   time.Duration `default:"250ms"` // Minimum spacing of position/buffer samples
}

// MediaSnapshot is a consistent view of a controller.
type MediaSnapshot struct {
	State               State      `json:"state"`
	Source              string     `json:"source"`
	ReadyState          ReadyState `json:"ready_state"`
	Duration            float64    `json:"duration"`
	CurrentTime         float64    `json:"current_time"`
	BufferedSeconds     float64    `json:"buffered_seconds"`
	BufferHealthPercent float64    `json:"buffer_health_percent"`
	Volume              float64    `json:"volume"`
	PlaybackRate        float64    `json:"playback_rate"`
	RetryCount          int        `json:"retry_count"`
	LastError           string     `json:"last_error,omitempty"`
}

// MediaOption configures a MediaController.
type MediaOption func(*MediaController)

// WithClock sets the clock used for timeouts, retries and sampling.
func WithClock(clk clock.Clock) MediaOption {
	return func(c *MediaController) {
		c.clock = clk
	}
}

type elementEvent struct {
	gen uint64
	ev  MediaEvent
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// MediaController owns one media element and runs its lifecycle state machine.
type MediaController struct {
	mu     sync.Mutex
	playMu sync.Mutex // Serializes Play so calls never overlap on one element

	newElement     ElementFactory
	el             MediaElement
	removeListener func()
	gen            uint64 // Bumped per element; stale events are dropped
	src            string

	// Element state
	state           State
	readyState      ReadyState
	duration        float64
	currentTime     float64
	bufferedSeconds float64
	bufferHealth    float64
	volume          float64
	rate            float64
	lastSample      time.Time

	// Retry state
	retryCount int
	lastError  error
	retryTimer *clock.Timer
	wantPlay   bool // Play intent survives an automatic reload
	playActive bool // A Play call is running its attempt loop
	playAbort  chan struct{}

	// Per-load signals
	readyCh chan struct{}
	errCh   chan error

	config MediaConfig
	clock  clock.Clock

	events   chan elementEvent
	loopDone chan struct{}

	subsMu   sync.RWMutex
	subs     []subscriber[MediaSnapshot]
	failSubs []subscriber[error]
	nextSub  uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewMediaController creates a controller that builds elements with newElement.
func NewMediaController(newElement ElementFactory, config MediaConfig, opts ...MediaOption) *MediaController {
	if err := defaults.Set(&config); err != nil {
		zlog.Warn().Msgf("playback: failed to apply media config defaults: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &MediaController{
		newElement: newElement,
		state:      StateIdle,
		volume:     1,
		rate:       1,
		config:     config,
		clock:      clock.New(),
		events:     make(chan elementEvent, 256),
		loopDone:   make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.loop()
	return c
}

// SetSource assigns a stream URL. A different URL fully reinitializes the
// element; the same URL is a no-op. An empty URL releases the element.
func (c *MediaController) SetSource(src string) {
	c.mu.Lock()
	if c.ctx.Err() != nil || (src == c.src && c.el != nil) {
		c.mu.Unlock()
		return
	}

	c.teardownLocked()
	c.src = src
	if src != "" {
		c.gen++
		gen := c.gen
		c.el = c.newElement()
		c.removeListener = c.el.On(func(e MediaEvent) {
			c.enqueue(gen, e)
		})
		c.el.SetVolume(c.volume)
		c.el.SetPlaybackRate(c.rate)
		c.loadLocked()
		zlog.Debug().Msgf("playback: source assigned: src=%s", src)
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
}

// Play starts playback. It waits for a previous Play to finish, then for the
// element to become ready (bounded by LoadTimeout). Failures are retried
// with linear backoff; once MaxRetryAttempts is exhausted the error is
// terminal and marked apperr.ErrPlaybackFailed.
func (c *MediaController) Play(ctx context.Context) error {
	c.playMu.Lock()
	defer c.playMu.Unlock()

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.el == nil || c.src == "" {
		c.mu.Unlock()
		return ErrNoSource
	}
	c.wantPlay = true
	c.playActive = true
	abort := make(chan struct{})
	c.playAbort = abort
	c.stopRetryTimerLocked()
	select {
	case <-c.errCh:
	default:
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.playActive = false
		if c.playAbort == abort {
			c.playAbort = nil
		}
		c.mu.Unlock()
	}()

	for {
		err := c.attempt(ctx, abort)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrClosed) || errors.Is(err, errSourceReplaced) ||
			errors.Is(err, errPlayAborted) || errors.Is(err, errPlaySuperseded) || ctx.Err() != nil {
			return err
		}
		if !c.wantsPlay() {
			return errors.CombineErrors(errPlayAborted, err)
		}

		delay, ok := c.nextRetry(err)
		if !ok {
			zlog.Warn().Msgf("playback: giving up: src=%s retries=%d err=%v", c.source(), c.config.MaxRetryAttempts, err)
			err = c.terminal(err)
			c.notifyFailure(err)
			return err
		}
		zlog.Debug().Msgf("playback: retrying in %v: err=%v", delay, err)

		timer := c.clock.Timer(delay)
		select {
		case <-timer.C:
		case <-abort:
			timer.Stop()
			return errPlaySuperseded
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-c.ctx.Done():
			timer.Stop()
			return ErrClosed
		}

		if err := c.reload(); err != nil {
			return err
		}
	}
}

// Pause pauses playback and cancels a pending play intent.
func (c *MediaController) Pause() {
	c.mu.Lock()
	c.wantPlay = false
	if c.playActive && c.errCh != nil {
		select {
		case c.errCh <- errPlayAborted:
		default:
		}
	}
	if c.el == nil {
		c.mu.Unlock()
		return
	}
	c.el.Pause()
	if c.state == StatePlaying || c.state == StateBuffering {
		c.setStateLocked(StatePaused)
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
}

// Retry resets the retry budget and restarts the load/play sequence. A Play
// still waiting on the previous load gives way to the new one.
func (c *MediaController) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.el == nil {
		c.mu.Unlock()
		return ErrNoSource
	}
	if c.playAbort != nil {
		close(c.playAbort)
		c.playAbort = nil
	}
	c.stopRetryTimerLocked()
	c.retryCount = 0
	c.lastError = nil
	c.loadLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
	return c.Play(ctx)
}

// Seek moves the playhead, clamped to [0, duration].
func (c *MediaController) Seek(sec float64) {
	c.mu.Lock()
	if c.el == nil {
		c.mu.Unlock()
		return
	}
	v := clamp(sec, 0, c.duration)
	c.el.SetCurrentTime(v)
	c.currentTime = v
	c.bufferedSeconds = BufferedAhead(c.el.Buffered(), v)
	c.bufferHealth = HealthPercent(c.bufferedSeconds, c.config.BufferLookahead.Seconds())
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
}

// SetVolume sets the volume, clamped to [0, 1].
func (c *MediaController) SetVolume(v float64) {
	c.mu.Lock()
	if c.el == nil {
		c.mu.Unlock()
		return
	}
	c.volume = clamp(v, 0, 1)
	c.el.SetVolume(c.volume)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
}

// SetPlaybackRate sets the playback rate, clamped to [0.25, 4].
func (c *MediaController) SetPlaybackRate(r float64) {
	c.mu.Lock()
	if c.el == nil {
		c.mu.Unlock()
		return
	}
	c.rate = clamp(r, 0.25, 4)
	c.el.SetPlaybackRate(c.rate)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
}

// Snapshot returns the current controller state.
func (c *MediaController) Snapshot() MediaSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// State returns the current lifecycle state.
func (c *MediaController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every state change and returns its remover.
// Subscribers are called in registration order.
func (c *MediaController) Subscribe(fn func(MediaSnapshot)) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs = append(c.subs, subscriber[MediaSnapshot]{id: id, fn: fn})

	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		c.subs = removeSubscriber(c.subs, id)
	}
}

// OnFailure registers fn for terminal playback failures and returns its
// remover. fn receives an error marked apperr.ErrPlaybackFailed, whether the
// retry budget ran out inside Play or during an automatic reload after Play
// had returned.
func (c *MediaController) OnFailure(fn func(error)) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.failSubs = append(c.failSubs, subscriber[error]{id: id, fn: fn})

	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		c.failSubs = removeSubscriber(c.failSubs, id)
	}
}

func removeSubscriber[T any](subs []subscriber[T], id uint64) []subscriber[T] {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// Close cancels pending retries, removes element listeners and releases the
// element. The controller is unusable afterwards.
func (c *MediaController) Close() {
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.teardownLocked()
	c.src = ""
	c.mu.Unlock()

	<-c.loopDone

	c.subsMu.Lock()
	c.subs = nil
	c.failSubs = nil
	c.subsMu.Unlock()
}

// attempt is the single load/play transition: it (re)loads an errored or idle
// element, waits for readiness and issues the element's play call.
func (c *MediaController) attempt(ctx context.Context, abort <-chan struct{}) error {
	c.mu.Lock()
	if c.el == nil {
		c.mu.Unlock()
		return ErrNoSource
	}
	if c.state == StateErrored || c.state == StateIdle {
		c.loadLocked()
	}
	if c.state == StatePlaying {
		c.mu.Unlock()
		return nil
	}
	el := c.el
	readyCh, errCh := c.readyCh, c.errCh
	ready := c.readyLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)

	if !ready {
		timer := c.clock.Timer(c.config.LoadTimeout)
		select {
		case <-readyCh:
			timer.Stop()
		case err := <-errCh:
			timer.Stop()
			return err
		case <-abort:
			timer.Stop()
			return errPlaySuperseded
		case <-timer.C:
			return errors.Wrapf(apperr.ErrLoadTimeout, "media not ready within %v", c.config.LoadTimeout)
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-c.ctx.Done():
			timer.Stop()
			return ErrClosed
		}
	}

	if err := el.Play(ctx); err != nil {
		return errors.Wrap(err, "media element rejected play")
	}

	c.mu.Lock()
	if c.el != el {
		c.mu.Unlock()
		return errSourceReplaced
	}
	if !c.wantPlay {
		el.Pause()
		c.mu.Unlock()
		return errPlayAborted
	}
	c.setStateLocked(StatePlaying)
	c.retryCount = 0
	c.lastError = nil
	c.playActive = false // Later errors take the automatic reload path
	snap = c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
	return nil
}

// nextRetry records err and returns the delay before the next attempt, or
// false if the retry budget is exhausted.
func (c *MediaController) nextRetry(err error) (time.Duration, bool) {
	c.mu.Lock()
	c.lastError = err
	c.setStateLocked(StateErrored)

	if c.retryCount >= c.config.MaxRetryAttempts {
		c.wantPlay = false
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.publish(snap)
		return 0, false
	}

	c.retryCount++
	delay := c.config.RetryDelay * time.Duration(c.retryCount)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
	return delay, true
}

// reload restarts loading of the current source.
func (c *MediaController) reload() error {
	c.mu.Lock()
	if c.el == nil {
		c.mu.Unlock()
		return ErrNoSource
	}
	c.loadLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
	return nil
}

// loadLocked starts a fresh load of c.src. Must be called with c.mu held.
func (c *MediaController) loadLocked() {
	c.readyCh = make(chan struct{})
	c.errCh = make(chan error, 1)
	c.readyState = HaveNothing
	c.lastSample = time.Time{}
	c.setStateLocked(StateLoading)
	c.el.Load(c.src)
}

// teardownLocked releases the current element. Must be called with c.mu held.
func (c *MediaController) teardownLocked() {
	c.stopRetryTimerLocked()
	if c.errCh != nil {
		select {
		case c.errCh <- errSourceReplaced:
		default:
		}
	}
	if c.removeListener != nil {
		c.removeListener()
		c.removeListener = nil
	}
	if c.el != nil {
		c.el.Pause()
		c.el.Release()
		c.el = nil
	}
	c.gen++
	c.state = StateIdle
	c.readyState = HaveNothing
	c.duration = 0
	c.currentTime = 0
	c.bufferedSeconds = 0
	c.bufferHealth = 0
	c.retryCount = 0
	c.lastError = nil
	c.wantPlay = false
	c.readyCh = nil
	c.errCh = nil
}

func (c *MediaController) stopRetryTimerLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *MediaController) readyLocked() bool {
	if c.readyCh == nil {
		return false
	}
	select {
	case <-c.readyCh:
		return true
	default:
		return false
	}
}

func (c *MediaController) setStateLocked(to State) bool {
	if !CanTransition(c.state, to) {
		zlog.Debug().Msgf("playback: ignoring illegal transition %s -> %s", c.state, to)
		return false
	}
	c.state = to
	return true
}

func (c *MediaController) enqueue(gen uint64, e MediaEvent) {
	select {
	case c.events <- elementEvent{gen: gen, ev: e}:
	case <-c.ctx.Done():
	}
}

func (c *MediaController) loop() {
	defer close(c.loopDone)
	for {
		select {
		case <-c.ctx.Done():
			return
		case ee := <-c.events:
			c.handleEvent(ee)
		}
	}
}

func (c *MediaController) handleEvent(ee elementEvent) {
	c.mu.Lock()
	if ee.gen != c.gen || c.el == nil {
		c.mu.Unlock()
		return
	}

	changed := true
	var failed error
	switch ee.ev.Type {
	case MediaLoadedMetadata:
		c.duration = c.el.Duration()
		if c.readyState < HaveMetadata {
			c.readyState = HaveMetadata
		}
	case MediaCanPlay:
		c.readyState = HaveEnoughData
		if c.readyCh != nil && !c.readyLocked() {
			close(c.readyCh)
		}
		switch c.state {
		case StateLoading:
			c.setStateLocked(StateReady)
		case StateBuffering:
			c.setStateLocked(StatePlaying)
		}
	case MediaWaiting:
		if c.state == StatePlaying {
			c.setStateLocked(StateBuffering)
		}
	case MediaPlay:
		switch c.state {
		case StateReady, StatePaused, StateBuffering:
			c.setStateLocked(StatePlaying)
		}
	case MediaPause:
		if c.state == StatePlaying || c.state == StateBuffering {
			c.setStateLocked(StatePaused)
		}
	case MediaEnded:
		c.wantPlay = false
		c.el.SetCurrentTime(0)
		c.currentTime = 0
		if c.state == StatePlaying || c.state == StateBuffering {
			c.setStateLocked(StatePaused)
		}
	case MediaTimeUpdate:
		changed = c.sampleLocked()
	case MediaVolumeChange:
		c.volume = c.el.Volume()
	case MediaRateChange:
		c.rate = c.el.PlaybackRate()
	case MediaError:
		failed = c.handleErrorLocked(ee.ev.Err)
	}

	snap := c.snapshotLocked()
	c.mu.Unlock()

	if changed {
		c.publish(snap)
	}
	if failed != nil {
		c.notifyFailure(failed)
	}
}

// sampleLocked reads position and buffer at most once per SampleInterval.
// Faster updates are dropped. Must be called with c.mu held.
func (c *MediaController) sampleLocked() bool {
	now := c.clock.Now()
	if !c.lastSample.IsZero() && now.Sub(c.lastSample) < c.config.SampleInterval {
		return false
	}
	c.lastSample = now
	c.currentTime = c.el.CurrentTime()
	c.bufferedSeconds = BufferedAhead(c.el.Buffered(), c.currentTime)
	c.bufferHealth = HealthPercent(c.bufferedSeconds, c.config.BufferLookahead.Seconds())
	return true
}

// handleErrorLocked routes an element error either to the running Play loop
// or to an automatic reload. It returns the terminal error once the retry
// budget is exhausted. Must be called with c.mu held.
func (c *MediaController) handleErrorLocked(err error) error {
	if err == nil {
		err = errors.New("media element error")
	}
	c.lastError = err
	c.setStateLocked(StateErrored)

	if c.playActive {
		select {
		case c.errCh <- err:
		default:
		}
		return nil
	}

	if c.retryCount >= c.config.MaxRetryAttempts {
		zlog.Warn().Msgf("playback: media error is terminal: src=%s err=%v", c.src, err)
		c.wantPlay = false
		return c.terminal(err)
	}

	c.retryCount++
	delay := c.config.RetryDelay * time.Duration(c.retryCount)
	gen := c.gen
	c.stopRetryTimerLocked()
	c.retryTimer = c.clock.AfterFunc(delay, func() {
		c.retryFired(gen)
	})
	zlog.Debug().Msgf("playback: media error, reloading in %v: attempt=%d err=%v", delay, c.retryCount, err)
	return nil
}

func (c *MediaController) terminal(err error) error {
	return errors.Mark(
		errors.Wrapf(err, "playback failed after %d retries", c.config.MaxRetryAttempts),
		apperr.ErrPlaybackFailed,
	)
}

func (c *MediaController) notifyFailure(err error) {
	c.subsMu.RLock()
	fns := make([]func(error), 0, len(c.failSubs))
	for _, s := range c.failSubs {
		fns = append(fns, s.fn)
	}
	c.subsMu.RUnlock()

	for _, fn := range fns {
		fn(err)
	}
}

func (c *MediaController) retryFired(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.el == nil || c.state != StateErrored {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	resume := c.wantPlay
	c.loadLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)

	if resume {
		go func() {
			if err := c.Play(c.ctx); err != nil {
				zlog.Debug().Msgf("playback: resume after reload failed: %v", err)
			}
		}()
	}
}

func (c *MediaController) wantsPlay() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wantPlay
}

func (c *MediaController) source() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.src
}

func (c *MediaController) snapshotLocked() MediaSnapshot {
	snap := MediaSnapshot{
		State:               c.state,
		Source:              c.src,
		ReadyState:          c.readyState,
		Duration:            c.duration,
		CurrentTime:         c.currentTime,
		BufferedSeconds:     c.bufferedSeconds,
		BufferHealthPercent: c.bufferHealth,
		Volume:              c.volume,
		PlaybackRate:        c.rate,
		RetryCount:          c.retryCount,
	}
	if c.lastError != nil {
		snap.LastError = c.lastError.Error()
	}
	return snap
}

func (c *MediaController) publish(snap MediaSnapshot) {
	c.subsMu.RLock()
	fns := make([]func(MediaSnapshot), 0, len(c.subs))
	for _, s := range c.subs {
		fns = append(fns, s.fn)
	}
	c.subsMu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}
