package media

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacraltrack/playcore/internal/app/playback"
)

const (
	waitFor = 2 * time.Second
	poll    = 5 * time.Millisecond
	tick    = 250 * time.Millisecond
)

type recorder struct {
	mu     sync.Mutex
	events []playback.MediaEvent
}

func (r *recorder) handle(ev playback.MediaEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) has(t playback.MediaEventType) bool {
	_, ok := r.find(t)
	return ok
}

func (r *recorder) find(t playback.MediaEventType) (playback.MediaEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Type == t {
			return ev, true
		}
	}
	return playback.MediaEvent{}, false
}

// newAudioServer serves /ok.mp3 (seconds of 128 kbit/s audio), /list.m3u8
// and 404 for everything else.
func newAudioServer(t *testing.T, seconds int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok.mp3", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Content-Length", strconv.Itoa(seconds*16000))
		w.Header().Set("Content-Type", "audio/mpeg")
	})
	mux.HandleFunc("/timed.mp3", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Duration", "42.5")
	})
	mux.HandleFunc("/list.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-TARGETDURATION:4\n#EXTINF:4.0,\nseg0.ts\n#EXTINF:4.0,\nseg1.ts\n#EXTINF:2.5,\nseg2.ts\n#EXT-X-ENDLIST\n")
	})
	mux.HandleFunc("/broken.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>nope</html>")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestElement(t *testing.T, server *httptest.Server, opts ...Option) (*VirtualElement, *clock.Mock, *recorder) {
	t.Helper()
	mock := clock.NewMock()
	opts = append([]Option{WithHTTPClient(server.Client()), WithClock(mock)}, opts...)
	el := NewVirtualElement(opts...)
	rec := &recorder{}
	el.On(rec.handle)
	t.Cleanup(el.Release)
	return el, mock, rec
}

func TestVirtualElement_LoadProbes(t *testing.T) {
	server := newAudioServer(t, 10)

	tests := []struct {
		name     string
		path     string
		duration float64
	}{
		{name: "content length", path: "/ok.mp3", duration: 10},
		{name: "duration header", path: "/timed.mp3", duration: 42.5},
		{name: "hls manifest", path: "/list.m3u8?token=x", duration: 10.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el, _, rec := newTestElement(t, server)
			el.Load(server.URL + tt.path)

			require.Eventually(t, func() bool { return rec.has(playback.MediaCanPlay) }, waitFor, poll)
			assert.True(t, rec.has(playback.MediaLoadedMetadata))
			assert.InDelta(t, tt.duration, el.Duration(), 0.001)
			assert.Equal(t, playback.HaveEnoughData, el.ReadyState())
			assert.Equal(t, []playback.TimeRange{{Start: 0, End: 2}}, el.Buffered())
		})
	}
}

func TestVirtualElement_LoadErrors(t *testing.T) {
	server := newAudioServer(t, 10)

	for _, path := range []string{"/missing.mp3", "/broken.m3u8"} {
		t.Run(path, func(t *testing.T) {
			el, _, rec := newTestElement(t, server)
			el.Load(server.URL + path)

			require.Eventually(t, func() bool { return rec.has(playback.MediaError) }, waitFor, poll)
			ev, _ := rec.find(playback.MediaError)
			assert.True(t, errors.Is(ev.Err, ErrProbe))
			assert.False(t, rec.has(playback.MediaCanPlay))
			assert.Equal(t, playback.HaveNothing, el.ReadyState())
		})
	}
}

func TestVirtualElement_PlaysToEnd(t *testing.T) {
	server := newAudioServer(t, 2)
	el, mock, rec := newTestElement(t, server)

	el.Load(server.URL + "/ok.mp3")
	require.Eventually(t, func() bool { return rec.has(playback.MediaCanPlay) }, waitFor, poll)

	require.NoError(t, el.Play(context.Background()))
	assert.True(t, rec.has(playback.MediaPlay))

	require.Eventually(t, func() bool {
		mock.Add(tick)
		return rec.has(playback.MediaEnded)
	}, waitFor, poll)
	assert.InDelta(t, 2, el.CurrentTime(), 0.001)
	assert.False(t, rec.has(playback.MediaWaiting))

	// Playing again restarts from the top.
	require.NoError(t, el.Play(context.Background()))
	assert.Zero(t, el.CurrentTime())
}

func TestVirtualElement_StallsWhenBufferRunsOut(t *testing.T) {
	server := newAudioServer(t, 10)
	el, mock, rec := newTestElement(t, server, WithFetchRate(0.5))

	el.Load(server.URL + "/ok.mp3")
	require.Eventually(t, func() bool { return rec.has(playback.MediaCanPlay) }, waitFor, poll)
	rec.mu.Lock()
	rec.events = nil
	rec.mu.Unlock()

	require.NoError(t, el.Play(context.Background()))
	require.Eventually(t, func() bool {
		mock.Add(tick)
		return rec.has(playback.MediaWaiting)
	}, waitFor, poll)

	require.Eventually(t, func() bool {
		mock.Add(tick)
		return rec.has(playback.MediaCanPlay)
	}, waitFor, poll)
	assert.False(t, rec.has(playback.MediaEnded))
}

func TestVirtualElement_Pause(t *testing.T) {
	server := newAudioServer(t, 10)
	el, mock, rec := newTestElement(t, server)

	el.Load(server.URL + "/ok.mp3")
	require.Eventually(t, func() bool { return rec.has(playback.MediaCanPlay) }, waitFor, poll)

	require.NoError(t, el.Play(context.Background()))
	require.Eventually(t, func() bool {
		mock.Add(tick)
		return el.CurrentTime() >= 1
	}, waitFor, poll)

	el.Pause()
	assert.True(t, rec.has(playback.MediaPause))
	paused := el.CurrentTime()
	for i := 0; i < 4; i++ {
		mock.Add(tick)
	}
	assert.Equal(t, paused, el.CurrentTime())
}

func TestVirtualElement_Seek(t *testing.T) {
	server := newAudioServer(t, 10)
	el, _, rec := newTestElement(t, server)

	el.Load(server.URL + "/ok.mp3")
	require.Eventually(t, func() bool { return rec.has(playback.MediaCanPlay) }, waitFor, poll)

	el.SetCurrentTime(1.5)
	assert.Equal(t, []playback.TimeRange{{Start: 0, End: 2}}, el.Buffered())

	el.SetCurrentTime(8)
	assert.Equal(t, 8.0, el.CurrentTime())
	assert.Empty(t, el.Buffered())

	el.SetCurrentTime(99)
	assert.Equal(t, 10.0, el.CurrentTime())
}

func TestVirtualElement_VolumeAndRate(t *testing.T) {
	server := newAudioServer(t, 10)
	el, _, rec := newTestElement(t, server)

	el.SetVolume(0.4)
	el.SetPlaybackRate(1.5)
	assert.Equal(t, 0.4, el.Volume())
	assert.Equal(t, 1.5, el.PlaybackRate())
	assert.True(t, rec.has(playback.MediaVolumeChange))
	assert.True(t, rec.has(playback.MediaRateChange))
}

func TestVirtualElement_Release(t *testing.T) {
	server := newAudioServer(t, 10)
	el, _, rec := newTestElement(t, server)

	assert.ErrorIs(t, el.Play(context.Background()), ErrNoSource)

	el.Release()
	el.Load(server.URL + "/ok.mp3")
	assert.ErrorIs(t, el.Play(context.Background()), ErrReleased)

	time.Sleep(20 * time.Millisecond)
	assert.False(t, rec.has(playback.MediaCanPlay))
}

func TestVirtualElement_DrivesController(t *testing.T) {
	server := newAudioServer(t, 10)
	mock := clock.NewMock()

	ctrl := playback.NewMediaController(
		Factory(WithHTTPClient(server.Client()), WithClock(mock)),
		playback.MediaConfig{},
		playback.WithClock(mock),
	)
	t.Cleanup(ctrl.Close)

	ctrl.SetSource(server.URL + "/ok.mp3")
	require.NoError(t, ctrl.Play(context.Background()))

	require.Eventually(t, func() bool { return ctrl.State() == playback.StatePlaying }, waitFor, poll)

	require.Eventually(t, func() bool {
		mock.Add(tick)
		return ctrl.Snapshot().CurrentTime >= 1
	}, waitFor, poll)

	snap := ctrl.Snapshot()
	assert.Equal(t, 10.0, snap.Duration)
	assert.Greater(t, snap.BufferedSeconds, 0.0)
	assert.Empty(t, snap.LastError)
}
