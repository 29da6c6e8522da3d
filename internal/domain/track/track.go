// Package track provides the Track domain entity.
package track

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ID identifies a track (a post, vibe or catalog entry that carries audio).
type ID string

// Meta is the display metadata of a selectable track.
type Meta struct {
	ID       ID     `json:"id"`
	AudioURL string `json:"audio_url"` // Opaque stream URL (m3u8 manifest or plain file)
	ImageURL string `json:"image_url"` // Cover art URL
	Name     string `json:"name"`      // Track title
	Artist   string `json:"artist"`    // Display name of the owning profile
}

// ErrEmptyID is returned when a track has no identity.
var ErrEmptyID = errors.New("track id is required")

// Validate checks that the metadata identifies a track.
func (m Meta) Validate() error {
	if strings.TrimSpace(string(m.ID)) == "" {
		return ErrEmptyID
	}
	return nil
}

// Playable returns true if the metadata carries a stream URL.
func (m Meta) Playable() bool {
	return strings.TrimSpace(m.AudioURL) != ""
}

// WithAudioURL returns a copy of the metadata with the given stream URL.
func (m Meta) WithAudioURL(url string) Meta {
	m.AudioURL = url
	return m
}
