package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"

	"github.com/sacraltrack/playcore/internal/domain/track"
)

const fullTrackJSON = `{
	"id": "4uLU6hMCjMI75M1A2tKUQC",
	"name": "Night Drive",
	"artists": [{"id": "a1", "name": "Sacral"}, {"id": "a2", "name": "Guest"}],
	"album": {"name": "Vibes", "images": [{"url": "https://i.scdn.co/image/large", "height": 640, "width": 640}]},
	"preview_url": "https://p.scdn.co/mp3-preview/abc",
	"duration_ms": 215000
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := newClient(server.Client(), "", spotify.WithBaseURL(server.URL+"/"))
	c.retryDelay = time.Millisecond
	return c
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{ClientID: "id"})
	assert.Error(t, err)
}

func TestGetTrackMeta(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tracks/4uLU6hMCjMI75M1A2tKUQC", r.URL.Path)
		assert.Equal(t, "JP", r.URL.Query().Get("market"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, fullTrackJSON)
	})

	meta, err := c.GetTrackMeta(context.Background(), "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=x")
	require.NoError(t, err)
	assert.Equal(t, track.Meta{
		ID:       "4uLU6hMCjMI75M1A2tKUQC",
		AudioURL: "https://p.scdn.co/mp3-preview/abc",
		ImageURL: "https://i.scdn.co/image/large",
		Name:     "Night Drive",
		Artist:   "Sacral",
	}, meta)
}

func TestGetTrackMeta_NoPreview(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "t1", "name": "Silent", "artists": [], "album": {"name": "", "images": []}, "preview_url": ""}`)
	})

	meta, err := c.GetTrackMeta(context.Background(), "t1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoPreview))
	assert.Equal(t, "Silent", meta.Name)
	assert.Empty(t, meta.Artist)
}

func TestGetTrackMeta_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error": {"status": 503, "message": "503 Service Unavailable"}}`)
			return
		}
		fmt.Fprint(w, fullTrackJSON)
	})

	meta, err := c.GetTrackMeta(context.Background(), "spotify:track:4uLU6hMCjMI75M1A2tKUQC")
	require.NoError(t, err)
	assert.Equal(t, "Night Drive", meta.Name)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetTrackMeta_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": {"status": 404, "message": "Non existing id"}}`)
	})

	_, err := c.GetTrackMeta(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetTrackMeta_EmptyID(t *testing.T) {
	c := newClient(http.DefaultClient, "US")
	_, err := c.GetTrackMeta(context.Background(), "  ")
	assert.True(t, errors.Is(err, track.ErrEmptyID))
}

func TestExtractTrackID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Spotify URI format",
			input:    "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
			expected: "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:     "Spotify URL format",
			input:    "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC",
			expected: "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:     "Localized URL with query params",
			input:    "https://open.spotify.com/intl-ja/track/4uLU6hMCjMI75M1A2tKUQC?si=abc123",
			expected: "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:     "Plain track ID",
			input:    " 4uLU6hMCjMI75M1A2tKUQC ",
			expected: "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractTrackID(tt.input))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "api error 429",
			err:      spotify.Error{Status: http.StatusTooManyRequests, Message: "API rate limit exceeded"},
			expected: true,
		},
		{
			name:     "api error 502",
			err:      spotify.Error{Status: http.StatusBadGateway, Message: "Bad gateway"},
			expected: true,
		},
		{
			name:     "api error 404",
			err:      spotify.Error{Status: http.StatusNotFound, Message: "Non existing id"},
			expected: false,
		},
		{
			name:     "rate limit text",
			err:      errors.New("rate limit exceeded"),
			expected: true,
		},
		{
			name:     "server error 504",
			err:      errors.New("504 Gateway Timeout"),
			expected: true,
		},
		{
			name:     "client error 400",
			err:      errors.New("400 Bad Request"),
			expected: false,
		},
		{
			name:     "generic error",
			err:      errors.New("something went wrong"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryable(tt.err))
		})
	}
}
