package connect

import (
	"github.com/sacraltrack/playcore/internal/app/authretry"
	"github.com/sacraltrack/playcore/internal/app/notification"
	"github.com/sacraltrack/playcore/internal/app/playback"
	"github.com/sacraltrack/playcore/internal/domain/like"
	"github.com/sacraltrack/playcore/internal/domain/track"
)

// Empty is a message without fields.
type Empty struct{}

// SessionState describes a mounted session and its media, if any.
type SessionState struct {
	playback.SessionInfo
	Media *playback.MediaSnapshot `json:"media,omitempty"`
}

// ScopeState is the full state of a playback scope.
type ScopeState struct {
	ScopeID  string            `json:"scope_id"`
	Playback playback.Snapshot `json:"playback"`
	Sessions []SessionState    `json:"sessions"`
}

type OpenScopeRequest struct {
	ScopeID string `json:"scope_id,omitempty"` // Generated when empty
}

type ScopeRequest struct {
	ScopeID string `json:"scope_id"`
}

// MountRequest mounts a track. When CatalogID is set the metadata is
// resolved from the catalog and Track is ignored.
type MountRequest struct {
	ScopeID   string     `json:"scope_id"`
	Track     track.Meta `json:"track"`
	CatalogID string     `json:"catalog_id,omitempty"`
}

type MountResponse struct {
	SessionID string     `json:"session_id"`
	Track     track.Meta `json:"track"`
}

type SessionRequest struct {
	ScopeID   string `json:"scope_id"`
	SessionID string `json:"session_id"`
}

type PlayResponse struct {
	Started bool       `json:"started"` // False when the request was ignored
	State   ScopeState `json:"state"`
}

type LikeRequest struct {
	EntityID string `json:"entity_id"`
}

type LikeResponse struct {
	EntityID string     `json:"entity_id"`
	Entry    like.Entry `json:"entry"`
}

type RetryPolicyRequest struct {
	UserAgent string `json:"user_agent"`
	Attempt   int    `json:"attempt"`
}

// RetryPolicy is an auth retry profile with durations in milliseconds.
type RetryPolicy struct {
	RedirectTimeoutMs      int64   `json:"redirect_timeout_ms"`
	SessionCheckTimeoutMs  int64   `json:"session_check_timeout_ms"`
	RetryDelayMs           int64   `json:"retry_delay_ms"`
	MaxRetries             int     `json:"max_retries"`
	ExponentialBackoffBase float64 `json:"exponential_backoff_base"`
	JitterRangeMs          int64   `json:"jitter_range_ms"`
}

type RetryPolicyResponse struct {
	Platform    authretry.PlatformInfo `json:"platform"`
	Profile     string                 `json:"profile"`
	Policy      RetryPolicy            `json:"policy"`
	ShouldRetry bool                   `json:"should_retry"`
	NextDelayMs int64                  `json:"next_delay_ms"`
}

// Notification is the message type of watch streams.
type Notification = notification.Notification
