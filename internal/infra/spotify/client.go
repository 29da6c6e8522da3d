// Package spotify provides a track metadata catalog backed by the Spotify API.
package spotify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/sacraltrack/playcore/internal/domain/track"
)

// ErrNoPreview is returned when a catalog track has no streamable preview.
var ErrNoPreview = errors.New("track has no preview stream")

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
	)

	// The HTTP client refreshes the access token on demand.
	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}
	return newClient(auth.Client(ctx, token), cfg.Market), nil
}

func newClient(httpClient *http.Client, market string, opts ...spotify.ClientOption) *Client {
	if market == "" {
		market = "JP"
	}
	return &Client{
		client:     spotify.New(httpClient, opts...),
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// GetTrackMeta resolves a track ID, URL, or URI into playable metadata.
// The 30s preview is used as the stream URL.
func (c *Client) GetTrackMeta(ctx context.Context, trackID string) (track.Meta, error) {
	id := extractTrackID(trackID)
	if id == "" {
		return track.Meta{}, track.ErrEmptyID
	}

	var result *spotify.FullTrack
	err := c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return track.Meta{}, errors.Wrapf(err, "failed to get track %s", id)
	}

	meta := convertTrack(result)
	if !meta.Playable() {
		zlog.Debug().Msgf("spotify: track has no preview: id=%s", id)
		return meta, errors.Mark(errors.Newf("track %s has no preview", id), ErrNoPreview)
	}
	return meta, nil
}

// convertTrack converts a Spotify FullTrack to track metadata.
func convertTrack(t *spotify.FullTrack) track.Meta {
	var artist string
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}

	var image string
	if len(t.Album.Images) > 0 {
		image = t.Album.Images[0].URL
	}

	return track.Meta{
		ID:       track.ID(t.ID),
		AudioURL: t.PreviewURL,
		ImageURL: image,
		Name:     t.Name,
		Artist:   artist,
	}
}

// retry retries an operation with linear backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			zlog.Debug().Msgf("spotify: retrying after error: attempt=%d err=%v", i+1, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr spotify.Error
	if errors.As(err, &apiErr) && apiErr.Status != 0 {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}

	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
func extractTrackID(input string) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:track:TRACK_ID
	if strings.HasPrefix(input, "spotify:track:") {
		return strings.TrimPrefix(input, "spotify:track:")
	}

	// Handle URL format: https://open.spotify.com/track/TRACK_ID or https://open.spotify.com/intl-XX/track/TRACK_ID
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/track/") {
		parts := strings.Split(input, "/track/")
		if len(parts) >= 2 {
			id := strings.Split(parts[len(parts)-1], "?")[0]
			id = strings.TrimRight(id, "/")
			return id
		}
	}

	// Assume it's already a track ID
	return input
}
