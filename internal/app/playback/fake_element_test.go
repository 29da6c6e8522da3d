package playback

import (
	"context"
	"sync"
)

// fakeElement is a scriptable MediaElement.
type fakeElement struct {
	mu sync.Mutex

	autoReady bool    // Emit loadedmetadata+canplay on every Load
	playErrs  []error // Returned by successive Play calls, nil once drained
	duration  float64

	src         string
	loads       int
	plays       int
	pauses      int
	released    bool
	currentTime float64
	volume      float64
	rate        float64
	buffered    []TimeRange
	handlers    map[int]func(MediaEvent)
	nextHandler int
}

func newFakeElement() *fakeElement {
	return &fakeElement{
		volume:   1,
		rate:     1,
		handlers: make(map[int]func(MediaEvent)),
	}
}

func (f *fakeElement) Load(src string) {
	f.mu.Lock()
	f.src = src
	f.loads++
	auto := f.autoReady
	f.mu.Unlock()

	if auto {
		f.emit(MediaEvent{Type: MediaLoadedMetadata})
		f.emit(MediaEvent{Type: MediaCanPlay})
	}
}

func (f *fakeElement) Play(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays++
	if len(f.playErrs) > 0 {
		err := f.playErrs[0]
		f.playErrs = f.playErrs[1:]
		return err
	}
	return nil
}

func (f *fakeElement) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
}

func (f *fakeElement) CurrentTime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentTime
}

func (f *fakeElement) SetCurrentTime(sec float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentTime = sec
}

func (f *fakeElement) Duration() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration
}

func (f *fakeElement) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

func (f *fakeElement) SetVolume(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = v
}

func (f *fakeElement) PlaybackRate() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate
}

func (f *fakeElement) SetPlaybackRate(r float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = r
}

func (f *fakeElement) Buffered() []TimeRange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TimeRange(nil), f.buffered...)
}

func (f *fakeElement) ReadyState() ReadyState {
	return HaveNothing
}

func (f *fakeElement) On(handler func(MediaEvent)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextHandler
	f.nextHandler++
	f.handlers[id] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, id)
	}
}

func (f *fakeElement) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = true
}

func (f *fakeElement) emit(e MediaEvent) {
	f.mu.Lock()
	handlers := make([]func(MediaEvent), 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(e)
	}
}

func (f *fakeElement) set(fn func(f *fakeElement)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeElement) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

func (f *fakeElement) isReleased() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

func (f *fakeElement) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

// fakeFactory records every element it creates.
type fakeFactory struct {
	mu        sync.Mutex
	elements  []*fakeElement
	configure func(*fakeElement)
}

func (ff *fakeFactory) New() MediaElement {
	el := newFakeElement()
	if ff.configure != nil {
		ff.configure(el)
	}
	ff.mu.Lock()
	ff.elements = append(ff.elements, el)
	ff.mu.Unlock()
	return el
}

func (ff *fakeFactory) last() *fakeElement {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.elements) == 0 {
		return nil
	}
	return ff.elements[len(ff.elements)-1]
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.elements)
}
