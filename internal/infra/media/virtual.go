// Package media provides a headless media element for the playback controller.
package media

import (
	"bufio"
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/sacraltrack/playcore/internal/app/playback"
)

// Errors
var (
	ErrNoSource = errors.New("media: no source loaded")
	ErrReleased = errors.New("media: element released")
	ErrProbe    = errors.New("media: source probe failed")
)

const (
	defaultTick         = 250 * time.Millisecond
	defaultFetchRate    = 4.0     // Seconds of media buffered per second
	defaultBytesPerSec  = 16000.0 // 128 kbit/s
	defaultDuration     = 180.0
	canPlayAheadSeconds = 2.0
)

// Option configures a VirtualElement.
type Option func(*VirtualElement)

// WithHTTPClient sets the client used to probe sources.
func WithHTTPClient(c *http.Client) Option {
	return func(e *VirtualElement) {
		e.httpClient = c
	}
}

// WithClock sets the clock that drives playback.
func WithClock(clk clock.Clock) Option {
	return func(e *VirtualElement) {
		e.clock = clk
	}
}

// WithTickInterval sets how often the playhead advances.
func WithTickInterval(d time.Duration) Option {
	return func(e *VirtualElement) {
		if d > 0 {
			e.tick = d
		}
	}
}

// WithFetchRate sets how many seconds of media are buffered per second.
func WithFetchRate(r float64) Option {
	return func(e *VirtualElement) {
		if r > 0 {
			e.fetchRate = r
		}
	}
}

// VirtualElement is a playback.MediaElement that simulates an audio element.
// Load probes the source over HTTP; playback advances on the clock.
type VirtualElement struct {
	mu sync.Mutex

	httpClient *http.Client
	clock      clock.Clock
	tick       time.Duration
	fetchRate  float64

	src         string
	loadGen     uint64
	cancelLoad  context.CancelFunc
	stopTicker  chan struct{}
	readyState  playback.ReadyState
	duration    float64
	currentTime float64
	bufStart    float64
	bufEnd      float64
	volume      float64
	rate        float64
	playing     bool
	waiting     bool
	released    bool

	handlers    map[int]func(playback.MediaEvent)
	nextHandler int
}

var _ playback.MediaElement = (*VirtualElement)(nil)

// NewVirtualElement creates an element with nothing loaded.
func NewVirtualElement(opts ...Option) *VirtualElement {
	e := &VirtualElement{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		clock:      clock.New(),
		tick:       defaultTick,
		fetchRate:  defaultFetchRate,
		volume:     1,
		rate:       1,
		handlers:   make(map[int]func(playback.MediaEvent)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Factory returns an element factory for playback.NewMediaController.
func Factory(opts ...Option) playback.ElementFactory {
	return func() playback.MediaElement {
		return NewVirtualElement(opts...)
	}
}

// Load resets the element and probes src in the background.
func (e *VirtualElement) Load(src string) {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return
	}
	e.resetLocked()
	e.src = src
	e.loadGen++
	gen := e.loadGen
	ctx, cancel := context.WithCancel(context.Background())
	e.cancelLoad = cancel
	e.mu.Unlock()

	go e.probe(ctx, gen, src)
}

// Play starts advancing the playhead.
func (e *VirtualElement) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	switch {
	case e.released:
		e.mu.Unlock()
		return ErrReleased
	case e.src == "":
		e.mu.Unlock()
		return ErrNoSource
	case e.playing:
		e.mu.Unlock()
		return nil
	}
	e.playing = true
	if e.duration > 0 && e.currentTime >= e.duration {
		e.currentTime = 0
	}
	e.mu.Unlock()

	e.emit(playback.MediaEvent{Type: playback.MediaPlay})
	return nil
}

// Pause stops the playhead.
func (e *VirtualElement) Pause() {
	e.mu.Lock()
	if !e.playing {
		e.mu.Unlock()
		return
	}
	e.playing = false
	e.waiting = false
	e.mu.Unlock()

	e.emit(playback.MediaEvent{Type: playback.MediaPause})
}

func (e *VirtualElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTime
}

// SetCurrentTime seeks. Seeking outside the buffered range restarts buffering there.
func (e *VirtualElement) SetCurrentTime(sec float64) {
	e.mu.Lock()
	if sec < 0 {
		sec = 0
	}
	if e.duration > 0 && sec > e.duration {
		sec = e.duration
	}
	e.currentTime = sec
	if sec < e.bufStart || sec > e.bufEnd {
		e.bufStart, e.bufEnd = sec, sec
	}
	e.mu.Unlock()

	e.emit(playback.MediaEvent{Type: playback.MediaTimeUpdate})
}

func (e *VirtualElement) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

func (e *VirtualElement) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

func (e *VirtualElement) SetVolume(v float64) {
	e.mu.Lock()
	e.volume = v
	e.mu.Unlock()
	e.emit(playback.MediaEvent{Type: playback.MediaVolumeChange})
}

func (e *VirtualElement) PlaybackRate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}

func (e *VirtualElement) SetPlaybackRate(r float64) {
	e.mu.Lock()
	e.rate = r
	e.mu.Unlock()
	e.emit(playback.MediaEvent{Type: playback.MediaRateChange})
}

func (e *VirtualElement) Buffered() []playback.TimeRange {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bufEnd <= e.bufStart {
		return nil
	}
	return []playback.TimeRange{{Start: e.bufStart, End: e.bufEnd}}
}

func (e *VirtualElement) ReadyState() playback.ReadyState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readyState
}

// On registers handler for every event and returns its remover.
func (e *VirtualElement) On(handler func(playback.MediaEvent)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextHandler
	e.nextHandler++
	e.handlers[id] = handler
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers, id)
	}
}

// Release stops all background work and drops the handlers.
func (e *VirtualElement) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return
	}
	e.resetLocked()
	e.released = true
	e.handlers = make(map[int]func(playback.MediaEvent))
}

// resetLocked cancels the probe and ticker and clears playback state.
func (e *VirtualElement) resetLocked() {
	if e.cancelLoad != nil {
		e.cancelLoad()
		e.cancelLoad = nil
	}
	if e.stopTicker != nil {
		close(e.stopTicker)
		e.stopTicker = nil
	}
	e.loadGen++
	e.src = ""
	e.readyState = playback.HaveNothing
	e.duration = 0
	e.currentTime = 0
	e.bufStart, e.bufEnd = 0, 0
	e.playing = false
	e.waiting = false
}

func (e *VirtualElement) probe(ctx context.Context, gen uint64, src string) {
	duration, err := probeDuration(ctx, e.httpClient, src)

	e.mu.Lock()
	if gen != e.loadGen || e.released {
		e.mu.Unlock()
		return
	}
	if err != nil {
		e.mu.Unlock()
		zlog.Debug().Msgf("media: probe failed: src=%s err=%v", src, err)
		e.emit(playback.MediaEvent{Type: playback.MediaError, Err: errors.Mark(err, ErrProbe)})
		return
	}

	e.duration = duration
	e.bufEnd = min(canPlayAheadSeconds, duration)
	e.readyState = playback.HaveEnoughData
	stop := make(chan struct{})
	e.stopTicker = stop
	ticker := e.clock.Ticker(e.tick)
	e.mu.Unlock()

	zlog.Debug().Msgf("media: loaded src=%s duration=%.1fs", src, duration)
	e.emit(playback.MediaEvent{Type: playback.MediaLoadedMetadata})
	e.emit(playback.MediaEvent{Type: playback.MediaCanPlay})

	go e.run(ticker, stop)
}

func (e *VirtualElement) run(ticker *clock.Ticker, stop chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, ev := range e.advance(stop) {
				e.emit(ev)
			}
		}
	}
}

// advance moves the buffer and playhead forward by one tick and returns
// the events it caused.
func (e *VirtualElement) advance(stop chan struct{}) []playback.MediaEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopTicker != stop {
		return nil
	}

	dt := e.tick.Seconds()
	e.bufEnd = min(e.bufEnd+dt*e.fetchRate, e.duration)
	if !e.playing {
		return nil
	}

	var events []playback.MediaEvent
	if e.waiting {
		if e.bufEnd-e.currentTime < canPlayAheadSeconds && e.bufEnd < e.duration {
			return nil
		}
		e.waiting = false
		events = append(events, playback.MediaEvent{Type: playback.MediaCanPlay})
	}

	next := e.currentTime + dt*e.rate
	switch {
	case next >= e.duration && e.bufEnd >= e.duration:
		e.currentTime = e.duration
		e.playing = false
		return append(events,
			playback.MediaEvent{Type: playback.MediaTimeUpdate},
			playback.MediaEvent{Type: playback.MediaEnded})
	case next > e.bufEnd:
		e.currentTime = e.bufEnd
		e.waiting = true
		return append(events,
			playback.MediaEvent{Type: playback.MediaTimeUpdate},
			playback.MediaEvent{Type: playback.MediaWaiting})
	}
	e.currentTime = next
	return append(events, playback.MediaEvent{Type: playback.MediaTimeUpdate})
}

func (e *VirtualElement) emit(ev playback.MediaEvent) {
	e.mu.Lock()
	handlers := make([]func(playback.MediaEvent), 0, len(e.handlers))
	for _, h := range e.handlers {
		handlers = append(handlers, h)
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// probeDuration checks that src is reachable and estimates its duration.
// HLS manifests are fetched and their segment durations summed; other
// sources are probed with HEAD.
func probeDuration(ctx context.Context, client *http.Client, src string) (float64, error) {
	if isManifest(src) {
		return manifestDuration(ctx, client, src)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, src, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "failed to probe source")
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, errors.Newf("source returned status %d", resp.StatusCode)
	}

	if v := resp.Header.Get("X-Content-Duration"); v != "" {
		if d, err := strconv.ParseFloat(v, 64); err == nil && d > 0 {
			return d, nil
		}
	}
	if resp.ContentLength > 0 {
		return float64(resp.ContentLength) / defaultBytesPerSec, nil
	}
	return defaultDuration, nil
}

func isManifest(src string) bool {
	path := src
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.HasSuffix(strings.ToLower(path), ".m3u8")
}

// manifestDuration sums the #EXTINF durations of a media playlist.
func manifestDuration(ctx context.Context, client *http.Client, src string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "failed to fetch manifest")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, errors.Newf("manifest returned status %d", resp.StatusCode)
	}

	var total float64
	scanner := bufio.NewScanner(resp.Body)
	for i := 0; scanner.Scan(); i++ {
		line := strings.TrimSpace(scanner.Text())
		if i == 0 && line != "#EXTM3U" {
			return 0, errors.New("not an HLS manifest")
		}
		if v, ok := strings.CutPrefix(line, "#EXTINF:"); ok {
			v, _, _ = strings.Cut(v, ",")
			d, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return 0, errors.Wrapf(err, "invalid segment duration %q", v)
			}
			total += d
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, errors.Wrap(err, "failed to read manifest")
	}
	if total == 0 {
		return defaultDuration, nil
	}
	return total, nil
}
